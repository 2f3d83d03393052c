package ledger

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mock constants mirror the fixed identity of the development ledger so
// switching between mock and chain mode by configuration is obvious in
// any stored reference or status output.
const (
	mockNetwork = "mock-testnet"
	mockChainID = 12227332
	mockSigner  = "0x1234567890abcdef1234567890abcdef12345678"

	// mockRefPrefix makes mock references impossible to confuse with
	// chain transaction hashes: they are not valid hex.
	mockRefPrefix = "0xmock"
)

// Mock is the in-process, network-free ledger backend. It satisfies the
// same Client contract as the chain adapter and is safe for concurrent
// use. The failure toggles and the enumerate/purge hooks exist on the
// concrete type only and are unreachable through Client.
type Mock struct {
	mu          sync.RWMutex
	records     map[string]*AnchorRecord
	blockNumber uint64
	connected   bool
	readOnly    bool
	balance     *big.Int
}

var _ Client = (*Mock)(nil)

// NewMock creates a connected, writable mock ledger with an empty store.
func NewMock() *Mock {
	return &Mock{
		records:     make(map[string]*AnchorRecord),
		blockNumber: 1_000_000,
		connected:   true,
		balance:     big.NewInt(1_000_000_000_000_000_000), // 1 GAS in wei
	}
}

// Connected implements Client.
func (m *Mock) Connected(_ context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// NetworkInfo implements Client.
func (m *Mock) NetworkInfo(_ context.Context) ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := ConnectionInfo{
		Network:   mockNetwork,
		ChainID:   mockChainID,
		Connected: m.connected,
	}
	if m.connected {
		height := m.blockNumber
		info.LatestBlock = &height
	}
	if !m.readOnly {
		info.SignerAddress = mockSigner
		if m.connected {
			info.Balance = new(big.Int).Set(m.balance)
		}
	}
	return info
}

// StoreRecord implements Client. Every call produces a fresh synthetic
// reference and advances the synthetic block counter.
func (m *Mock) StoreRecord(_ context.Context, subjectID, digest string, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readOnly {
		return "", ErrNoSigner
	}
	if !m.connected {
		return "", ErrNotConnected
	}

	u := uuid.New()
	ref := mockRefPrefix + hex.EncodeToString(u[:])

	m.blockNumber++
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	m.records[ref] = &AnchorRecord{
		SubjectID:   subjectID,
		Digest:      digest,
		Metadata:    md,
		AnchoredAt:  time.Now().UTC(),
		Reference:   ref,
		BlockNumber: m.blockNumber,
		Signer:      mockSigner,
	}
	return ref, nil
}

// GetRecord implements Client.
func (m *Mock) GetRecord(_ context.Context, reference string) (*AnchorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return nil, ErrNotConnected
	}

	if !strings.HasPrefix(reference, "0x") {
		reference = "0x" + reference
	}
	rec, ok := m.records[reference]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// SetConnected toggles the simulated connectivity so tests can exercise
// the ErrNotConnected path.
func (m *Mock) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// SetReadOnly toggles the simulated absence of a signing key so tests
// can exercise the ErrNoSigner path.
func (m *Mock) SetReadOnly(readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = readOnly
}

// Records returns copies of all stored records. Test hook only.
func (m *Mock) Records() []*AnchorRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*AnchorRecord, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// Purge removes every stored record and returns how many were dropped.
// Test hook only; the public facade never reaches it.
func (m *Mock) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.records)
	m.records = make(map[string]*AnchorRecord)
	return n
}
