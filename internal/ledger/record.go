package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// AnchorRecord is the unit stored in the ledger. It is created exactly
// once per StoreRecord call and immutable thereafter.
type AnchorRecord struct {
	SubjectID   string            `json:"subject_id"`
	Digest      string            `json:"digest"`
	Metadata    map[string]string `json:"metadata"`
	AnchoredAt  time.Time         `json:"anchored_at"` // assigned by the ledger, not the caller
	Reference   string            `json:"reference"`
	BlockNumber uint64            `json:"block_number"`
	Signer      string            `json:"signer,omitempty"`
}

// ConnectionInfo is a transient snapshot of ledger connectivity,
// recomputed on every call and never persisted. Optional fields are nil
// when they cannot be determined.
type ConnectionInfo struct {
	Network       string   `json:"network"`
	ChainID       uint64   `json:"chain_id"`
	Connected     bool     `json:"connected"`
	LatestBlock   *uint64  `json:"latest_block,omitempty"`
	SignerAddress string   `json:"signer_address,omitempty"`
	Balance       *big.Int `json:"balance,omitempty"`
}

// Envelope is the canonical serialization embedded in a ledger
// transaction's data field. Field names and ordering are the wire
// format: changing them makes previously anchored records undecodable.
type Envelope struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	ID        string            `json:"id"`
	Hash      string            `json:"hash"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

const (
	// EnvelopeType marks transaction data as a lab anchor record.
	EnvelopeType = "lab_experiment"
	// EnvelopeVersion is the wire format version.
	EnvelopeVersion = "1.0"
)

// EncodeEnvelope serializes an anchor payload for embedding in a
// transaction data field.
func EncodeEnvelope(subjectID, digest string, metadata map[string]string, at time.Time) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return json.Marshal(Envelope{
		Type:      EnvelopeType,
		Version:   EnvelopeVersion,
		ID:        subjectID,
		Hash:      digest,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Metadata:  metadata,
	})
}

// DecodeEnvelope parses transaction data back into an anchor envelope.
// Data that is absent or does not carry the envelope marker yields
// ErrNotFound (most ledger transactions carry no anchor at all); data
// marked as an envelope but missing required fields yields ErrDecode.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: transaction carries no data", ErrNotFound)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: transaction data is not an anchor envelope", ErrNotFound)
	}
	if env.Type != EnvelopeType {
		return nil, fmt.Errorf("%w: unexpected payload type %q", ErrNotFound, env.Type)
	}
	if env.ID == "" || env.Hash == "" {
		return nil, fmt.Errorf("%w: envelope missing subject id or digest", ErrDecode)
	}
	return &env, nil
}
