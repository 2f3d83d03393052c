package ledger_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/labtrail/provenance/internal/ledger"
)

var ctx = context.Background()

func TestMock_roundTrip(t *testing.T) {
	m := ledger.NewMock()

	ref, err := m.StoreRecord(ctx, "exp_1", "0xabc123", map[string]string{"researcher": "kim"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ref, "0xmock") {
		t.Errorf("mock reference should carry the mock prefix, got %q", ref)
	}

	rec, err := m.GetRecord(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if rec.SubjectID != "exp_1" || rec.Digest != "0xabc123" {
		t.Errorf("record mismatch: %+v", rec)
	}
	if rec.Metadata["researcher"] != "kim" {
		t.Errorf("metadata lost: %+v", rec.Metadata)
	}
	if rec.Reference != ref {
		t.Errorf("reference: got %q, want %q", rec.Reference, ref)
	}
	if rec.AnchoredAt.IsZero() {
		t.Error("anchored_at should be assigned by the ledger")
	}
	if rec.BlockNumber <= 1_000_000 {
		t.Errorf("block counter should advance past seed, got %d", rec.BlockNumber)
	}
}

func TestMock_unknownReference(t *testing.T) {
	m := ledger.NewMock()

	_, err := m.GetRecord(ctx, "0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMock_referencesUnique(t *testing.T) {
	m := ledger.NewMock()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref, err := m.StoreRecord(ctx, "exp_1", "0xsame", nil)
		if err != nil {
			t.Fatal(err)
		}
		if seen[ref] {
			t.Fatalf("reference %q reused", ref)
		}
		seen[ref] = true
	}
}

func TestMock_readOnly(t *testing.T) {
	m := ledger.NewMock()
	m.SetReadOnly(true)

	ref, err := m.StoreRecord(ctx, "exp_1", "0xabc", nil)
	if !errors.Is(err, ledger.ErrNoSigner) {
		t.Fatalf("got %v, want ErrNoSigner", err)
	}
	if ref != "" {
		t.Errorf("no reference should be produced, got %q", ref)
	}

	m.SetReadOnly(false)
	if _, err := m.StoreRecord(ctx, "exp_1", "0xabc", nil); err != nil {
		t.Errorf("store after re-enabling signer: %v", err)
	}
}

func TestMock_disconnected(t *testing.T) {
	m := ledger.NewMock()
	ref, err := m.StoreRecord(ctx, "exp_1", "0xabc", nil)
	if err != nil {
		t.Fatal(err)
	}

	m.SetConnected(false)
	if m.Connected(ctx) {
		t.Error("Connected should report false")
	}
	if _, err := m.StoreRecord(ctx, "exp_2", "0xdef", nil); !errors.Is(err, ledger.ErrNotConnected) {
		t.Errorf("store while disconnected: got %v, want ErrNotConnected", err)
	}
	if _, err := m.GetRecord(ctx, ref); !errors.Is(err, ledger.ErrNotConnected) {
		t.Errorf("get while disconnected: got %v, want ErrNotConnected", err)
	}
}

func TestMock_networkInfo(t *testing.T) {
	m := ledger.NewMock()

	info := m.NetworkInfo(ctx)
	if !info.Connected {
		t.Error("mock should report connected by default")
	}
	if info.Network != "mock-testnet" {
		t.Errorf("network: got %q", info.Network)
	}
	if info.LatestBlock == nil || *info.LatestBlock != 1_000_000 {
		t.Errorf("latest block: got %v, want 1000000", info.LatestBlock)
	}
	if info.SignerAddress == "" || info.Balance == nil {
		t.Errorf("mock signer fields should be present: %+v", info)
	}

	m.SetReadOnly(true)
	info = m.NetworkInfo(ctx)
	if info.SignerAddress != "" || info.Balance != nil {
		t.Errorf("read-only info should omit signer fields: %+v", info)
	}
}

func TestMock_purge(t *testing.T) {
	m := ledger.NewMock()
	for i := 0; i < 3; i++ {
		if _, err := m.StoreRecord(ctx, "exp", "0xabc", nil); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(m.Records()); got != 3 {
		t.Fatalf("expected 3 records, got %d", got)
	}
	if n := m.Purge(); n != 3 {
		t.Errorf("Purge: got %d, want 3", n)
	}
	if got := len(m.Records()); got != 0 {
		t.Errorf("store should be empty after purge, has %d", got)
	}
}

func TestMock_concurrentStores(t *testing.T) {
	m := ledger.NewMock()

	const n = 50
	refs := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := m.StoreRecord(ctx, "exp", "0xabc", nil)
			if err != nil {
				t.Error(err)
				return
			}
			refs <- ref
		}()
	}
	wg.Wait()
	close(refs)

	seen := make(map[string]bool)
	for ref := range refs {
		if seen[ref] {
			t.Fatalf("reference %q produced twice under concurrency", ref)
		}
		seen[ref] = true
	}
	if len(m.Records()) != n {
		t.Errorf("expected %d records, got %d", n, len(m.Records()))
	}
}
