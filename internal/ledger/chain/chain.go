// Package chain implements the ledger contract against a live
// EVM-compatible network. Anchoring embeds the record envelope in the
// data field of a self-addressed, zero-value transaction; retrieval
// decodes a confirmed transaction back into an anchor record.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/labtrail/provenance/internal/ledger"
)

// anchorGasLimit covers a zero-value transfer carrying a small JSON
// payload with headroom.
const anchorGasLimit = 100_000

// Backend is the narrow slice of the Ethereum RPC surface the adapter
// uses. *ethclient.Client satisfies it; tests inject a fake.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Config holds the chain connection parameters, read once at process
// start. PrivateKey is optional: without it the adapter runs in
// read-only mode and StoreRecord fails with ErrNoSigner.
type Config struct {
	Network       string
	RPCURL        string
	ChainID       uint64
	PrivateKey    string // hex-encoded secp256k1 key, with or without 0x
	AnchorAddress string // optional anchor target; defaults to the signer itself

	ConfirmTimeout time.Duration // default 120s
	ProbeTimeout   time.Duration // default 5s
	PollInterval   time.Duration // default 2s
}

// Adapter implements ledger.Client against an EVM network.
type Adapter struct {
	backend Backend
	cfg     Config
	chainID *big.Int

	key      *ecdsa.PrivateKey // nil in read-only mode
	signer   common.Address
	anchorTo common.Address

	// nonceMu serialises nonce acquisition and transaction submission
	// for the signer across the whole process. Concurrent anchors from
	// the same account must not race on the nonce or the network will
	// reject or reorder them.
	nonceMu sync.Mutex

	poll   *rate.Limiter
	logger *zap.Logger
}

var _ ledger.Client = (*Adapter)(nil)

// New dials the configured RPC endpoint and builds the adapter.
func New(cfg Config, logger *zap.Logger) (*Adapter, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc %q: %w", cfg.RPCURL, err)
	}
	return NewWithBackend(client, cfg, logger)
}

// NewWithBackend builds the adapter over an existing backend.
func NewWithBackend(backend Backend, cfg Config, logger *zap.Logger) (*Adapter, error) {
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 120 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}

	a := &Adapter{
		backend: backend,
		cfg:     cfg,
		chainID: new(big.Int).SetUint64(cfg.ChainID),
		poll:    rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		logger:  logger,
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		a.key = key
		a.signer = crypto.PubkeyToAddress(key.PublicKey)
		a.anchorTo = a.signer
		logger.Info("ledger signer loaded", zap.String("address", a.signer.Hex()))
	} else {
		logger.Info("ledger running in read-only mode (no signing key configured)")
	}

	if cfg.AnchorAddress != "" {
		a.anchorTo = common.HexToAddress(cfg.AnchorAddress)
	}
	return a, nil
}

// Connected implements ledger.Client. The probe is bounded by
// ProbeTimeout regardless of the caller's context.
func (a *Adapter) Connected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	if _, err := a.backend.BlockNumber(ctx); err != nil {
		a.logger.Debug("connectivity probe failed", zap.Error(err))
		return false
	}
	return true
}

// NetworkInfo implements ledger.Client. Each field is filled
// best-effort; a failure to read one field never fails the call.
func (a *Adapter) NetworkInfo(ctx context.Context) ledger.ConnectionInfo {
	info := ledger.ConnectionInfo{
		Network:   a.cfg.Network,
		ChainID:   a.cfg.ChainID,
		Connected: a.Connected(ctx),
	}

	if info.Connected {
		if height, err := a.backend.BlockNumber(ctx); err == nil {
			info.LatestBlock = &height
		} else {
			a.logger.Warn("failed to read block height", zap.Error(err))
		}
	}

	if a.key != nil {
		info.SignerAddress = a.signer.Hex()
		if info.Connected {
			if bal, err := a.backend.BalanceAt(ctx, a.signer, nil); err == nil {
				info.Balance = bal
			} else {
				a.logger.Warn("failed to read signer balance", zap.Error(err))
			}
		}
	}
	return info
}

// StoreRecord implements ledger.Client. The signer check happens before
// any network call; nonce fetch and submission run under the per-signer
// mutex; the confirmation wait runs outside it, bounded by
// ConfirmTimeout.
func (a *Adapter) StoreRecord(ctx context.Context, subjectID, digest string, metadata map[string]string) (string, error) {
	if a.key == nil {
		return "", ledger.ErrNoSigner
	}
	if !a.Connected(ctx) {
		return "", ledger.ErrNotConnected
	}

	data, err := ledger.EncodeEnvelope(subjectID, digest, metadata, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("encode anchor envelope: %w", err)
	}

	a.nonceMu.Lock()
	txHash, err := a.submit(ctx, data)
	a.nonceMu.Unlock()
	if err != nil {
		return "", err
	}

	a.logger.Info("anchor transaction submitted",
		zap.String("subject_id", subjectID),
		zap.String("tx", txHash.Hex()),
	)
	return a.awaitConfirmation(ctx, txHash)
}

func (a *Adapter) submit(ctx context.Context, data []byte) (common.Hash, error) {
	nonce, err := a.backend.PendingNonceAt(ctx, a.signer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, a.anchorTo, big.NewInt(0), anchorGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("submit transaction: %w", err)
	}
	return signed.Hash(), nil
}

// awaitConfirmation polls the receipt until the transaction is mined or
// the deadline passes. Once submission has happened, cancellation
// cannot retract the transaction: the timeout error carries the hash so
// callers can re-poll the same reference instead of resubmitting.
func (a *Adapter) awaitConfirmation(ctx context.Context, txHash common.Hash) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ConfirmTimeout)
	defer cancel()

	for {
		if err := a.poll.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: transaction %s was submitted and may still confirm; re-poll, do not resubmit",
				ledger.ErrConfirmationTimeout, txHash.Hex())
		}

		receipt, err := a.backend.TransactionReceipt(ctx, txHash)
		if err != nil {
			// Not mined yet, or a transient RPC failure. Keep polling
			// until the deadline decides.
			continue
		}

		ledger.ObserveConfirmation(time.Since(start))
		if receipt.Status != types.ReceiptStatusSuccessful {
			return "", fmt.Errorf("%w: status %d for %s",
				ledger.ErrTransactionFailed, receipt.Status, txHash.Hex())
		}

		a.logger.Info("anchor transaction confirmed",
			zap.String("tx", txHash.Hex()),
			zap.Duration("took", time.Since(start)),
		)
		return txHash.Hex(), nil
	}
}

// GetRecord implements ledger.Client.
func (a *Adapter) GetRecord(ctx context.Context, reference string) (*ledger.AnchorRecord, error) {
	txHash, err := normalizeReference(reference)
	if err != nil {
		return nil, err
	}

	tx, pending, err := a.backend.TransactionByHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("fetch transaction %s: %w", txHash.Hex(), err)
	}
	if pending {
		// No block, no anchoring timestamp yet.
		return nil, fmt.Errorf("%w: transaction %s not yet mined", ledger.ErrNotFound, txHash.Hex())
	}

	env, err := ledger.DecodeEnvelope(tx.Data())
	if err != nil {
		return nil, err
	}

	receipt, err := a.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("fetch receipt %s: %w", txHash.Hex(), err)
	}
	header, err := a.backend.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch block %s: %w", receipt.BlockNumber, err)
	}

	rec := &ledger.AnchorRecord{
		SubjectID:   env.ID,
		Digest:      env.Hash,
		Metadata:    env.Metadata,
		AnchoredAt:  time.Unix(int64(header.Time), 0).UTC(),
		Reference:   txHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}
	if from, err := types.Sender(types.LatestSignerForChainID(a.chainID), tx); err == nil {
		rec.Signer = from.Hex()
	}
	return rec, nil
}

// normalizeReference turns a caller-supplied reference into a canonical
// transaction hash. Anything that is not 32 hex bytes cannot name a
// transaction on this ledger, so it maps to ErrNotFound rather than a
// fault (mock references deliberately fail this check).
func normalizeReference(reference string) (common.Hash, error) {
	ref := reference
	if !strings.HasPrefix(ref, "0x") {
		ref = "0x" + ref
	}
	b, err := hexutil.Decode(ref)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %q is not a transaction hash", ledger.ErrNotFound, reference)
	}
	return common.BytesToHash(b), nil
}
