package ledger_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/labtrail/provenance/internal/ledger"
)

func newMockService() (*ledger.Service, *ledger.Mock) {
	m := ledger.NewMock()
	return ledger.NewService(m, ledger.ModeMock, zap.NewNop()), m
}

func TestService_storeHashesThenAnchors(t *testing.T) {
	svc, m := newMockService()
	payload := experimentPayload()

	ref, err := svc.StoreRecord(ctx, "exp_1", payload, map[string]string{"lab": "west"})
	if err != nil {
		t.Fatal(err)
	}

	want, err := svc.ComputeDigest(payload)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := svc.GetRecord(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Digest != want {
		t.Errorf("anchored digest %q should equal ComputeDigest %q", rec.Digest, want)
	}
	if rec.Metadata["lab"] != "west" {
		t.Errorf("metadata lost: %+v", rec.Metadata)
	}
	if len(m.Records()) != 1 {
		t.Errorf("expected exactly one stored record, got %d", len(m.Records()))
	}
}

func TestService_verifyAfterAnchor(t *testing.T) {
	svc, _ := newMockService()
	payload := experimentPayload()

	ref, err := svc.StoreRecord(ctx, "exp_1", payload, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Verify(ctx, payload, ref)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != ledger.OutcomeMatch {
		t.Errorf("outcome: got %q, want match", res.Outcome)
	}

	tampered := experimentPayload()
	tampered["results"].(map[string]any)["rate"] = 0.9
	res, err = svc.Verify(ctx, tampered, ref)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != ledger.OutcomeMismatch {
		t.Errorf("outcome: got %q, want mismatch", res.Outcome)
	}
}

func TestService_readOnlyStore(t *testing.T) {
	svc, m := newMockService()
	m.SetReadOnly(true)

	ref, err := svc.StoreRecord(ctx, "exp_1", experimentPayload(), nil)
	if !errors.Is(err, ledger.ErrNoSigner) {
		t.Fatalf("got %v, want ErrNoSigner", err)
	}
	if ref != "" {
		t.Errorf("no reference on read-only store, got %q", ref)
	}
}

func TestService_malformedPayload(t *testing.T) {
	svc, m := newMockService()

	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	if _, err := svc.StoreRecord(ctx, "exp_1", cyclic, nil); err == nil {
		t.Fatal("malformed payload must not anchor")
	}
	if len(m.Records()) != 0 {
		t.Error("nothing should be stored when hashing fails")
	}
}

func TestService_networkStatus(t *testing.T) {
	svc, m := newMockService()

	info := svc.NetworkStatus(ctx)
	if !info.Connected || info.LatestBlock == nil {
		t.Errorf("mock status should be connected with a height: %+v", info)
	}

	m.SetConnected(false)
	info = svc.NetworkStatus(ctx)
	if info.Connected {
		t.Error("status should reflect lost connectivity")
	}
}

func TestService_mode(t *testing.T) {
	svc, _ := newMockService()
	if svc.Mode() != ledger.ModeMock {
		t.Errorf("mode: got %q, want mock", svc.Mode())
	}
}
