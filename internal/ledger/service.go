package ledger

import (
	"context"
	"fmt"

	"github.com/labtrail/provenance/internal/hashing"
	"go.uber.org/zap"
)

// Mode selects the ledger backend.
type Mode string

const (
	// ModeMock runs against the in-process mock ledger.
	ModeMock Mode = "mock"
	// ModeChain runs against a live ledger network.
	ModeChain Mode = "chain"
)

// Service is the single stable API the rest of the system talks to. It
// is constructed exactly once at process start with the backend chosen
// from configuration, and injected into callers; re-acquiring it never
// reinitializes connections.
type Service struct {
	client   Client
	verifier *Verifier
	mode     Mode
	logger   *zap.Logger
}

// NewService wraps the chosen backend in the boundary API.
func NewService(client Client, mode Mode, logger *zap.Logger) *Service {
	return &Service{
		client:   client,
		verifier: NewVerifier(client, logger),
		mode:     mode,
		logger:   logger,
	}
}

// Mode reports which backend the service was configured with.
func (s *Service) Mode() Mode { return s.mode }

// ComputeDigest returns the canonical digest of payload. Pure and
// synchronous; no ledger interaction.
func (s *Service) ComputeDigest(payload map[string]any) (string, error) {
	return hashing.Digest(payload)
}

// StoreRecord hashes payload and anchors the digest under subjectID,
// returning the ledger reference needed for later retrieval and
// verification.
func (s *Service) StoreRecord(ctx context.Context, subjectID string, payload map[string]any, metadata map[string]string) (string, error) {
	digest, err := hashing.Digest(payload)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}

	ref, err := s.client.StoreRecord(ctx, subjectID, digest, metadata)
	recordAnchor(err)
	if err != nil {
		s.logger.Warn("anchor failed",
			zap.String("subject_id", subjectID), zap.Error(err))
		return "", err
	}

	s.logger.Info("anchored record",
		zap.String("subject_id", subjectID),
		zap.String("digest", digest),
		zap.String("reference", ref),
	)
	return ref, nil
}

// GetRecord resolves a reference to its anchor record.
func (s *Service) GetRecord(ctx context.Context, reference string) (*AnchorRecord, error) {
	rec, err := s.client.GetRecord(ctx, reference)
	recordRetrieval(err)
	return rec, err
}

// Verify reports whether payload still matches the record anchored
// under reference.
func (s *Service) Verify(ctx context.Context, payload map[string]any, reference string) (*Verification, error) {
	return s.verifier.Verify(ctx, payload, reference)
}

// Connected reports whether the ledger backend is reachable.
func (s *Service) Connected(ctx context.Context) bool {
	return s.client.Connected(ctx)
}

// NetworkStatus returns a best-effort snapshot of ledger connectivity.
func (s *Service) NetworkStatus(ctx context.Context) ConnectionInfo {
	info := s.client.NetworkInfo(ctx)
	RecordConnectivity(info.Connected)
	return info
}
