package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/labtrail/provenance/internal/hashing"
	"go.uber.org/zap"
)

// Outcome classifies a verification result.
type Outcome string

const (
	// OutcomeMatch means the current payload hashes to the anchored digest.
	OutcomeMatch Outcome = "match"
	// OutcomeMismatch means the payload diverged from the anchored
	// digest: tampering detected. This is a successful verification
	// result, not an error.
	OutcomeMismatch Outcome = "mismatch"
	// OutcomeNotFound means the reference resolves to no anchor record.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeUnreachable means the ledger could not be consulted, so no
	// statement about integrity can be made.
	OutcomeUnreachable Outcome = "unreachable"
)

// Verification is the full result of an integrity check. CurrentDigest
// is always set once the payload hashed; AnchoredDigest is set whenever
// the anchor record was retrieved.
type Verification struct {
	Outcome        Outcome `json:"outcome"`
	Reference      string  `json:"reference"`
	CurrentDigest  string  `json:"current_digest,omitempty"`
	AnchoredDigest string  `json:"anchored_digest,omitempty"`
}

// Verifier answers whether current payload data still matches what was
// anchored under a reference.
type Verifier struct {
	client Client
	logger *zap.Logger
}

// NewVerifier creates a Verifier over the given ledger backend.
func NewVerifier(client Client, logger *zap.Logger) *Verifier {
	return &Verifier{client: client, logger: logger}
}

// Verify recomputes the canonical digest of payload and compares it,
// byte for byte, against the digest anchored under reference. A
// hashing failure means a malformed payload and propagates as an error;
// every ledger-side condition is mapped to an Outcome instead.
func (v *Verifier) Verify(ctx context.Context, payload map[string]any, reference string) (*Verification, error) {
	current, err := hashing.Digest(payload)
	if err != nil {
		return nil, fmt.Errorf("hash payload: %w", err)
	}

	result := &Verification{Reference: reference, CurrentDigest: current}

	rec, err := v.client.GetRecord(ctx, reference)
	switch {
	case errors.Is(err, ErrNotFound):
		result.Outcome = OutcomeNotFound
		v.logger.Warn("verification target not found", zap.String("reference", reference))
	case errors.Is(err, ErrDecode):
		return nil, err
	case err != nil:
		result.Outcome = OutcomeUnreachable
		v.logger.Warn("ledger unreachable during verification",
			zap.String("reference", reference), zap.Error(err))
	default:
		result.AnchoredDigest = rec.Digest
		if current == rec.Digest {
			result.Outcome = OutcomeMatch
			v.logger.Info("integrity verified", zap.String("reference", reference))
		} else {
			result.Outcome = OutcomeMismatch
			v.logger.Warn("integrity check FAILED",
				zap.String("reference", reference),
				zap.String("current_digest", current),
				zap.String("anchored_digest", rec.Digest),
			)
		}
	}

	recordVerification(result.Outcome)
	return result, nil
}
