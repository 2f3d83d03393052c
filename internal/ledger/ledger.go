// Package ledger anchors experiment digests to an append-only ledger and
// retrieves previously anchored records for tamper detection. Both the
// in-process Mock adapter and the chain adapter implement the Client
// interface, so behavioral drift between them is caught at compile time.
package ledger

import "context"

// Client is the contract every ledger backend implements.
type Client interface {
	// Connected reports whether the ledger network is reachable.
	// It is bounded by a short probe timeout and never reports on
	// record existence.
	Connected(ctx context.Context) bool

	// NetworkInfo returns best-effort connection details. Sub-fields
	// that cannot be determined (for example balance with no signer
	// configured) are left unset rather than failing the whole call.
	NetworkInfo(ctx context.Context) ConnectionInfo

	// StoreRecord anchors digest under subjectID and returns an opaque
	// reference sufficient to retrieve the record later. References are
	// never reused across distinct records. Fails with ErrNoSigner in
	// read-only mode and ErrNotConnected when the network is
	// unreachable; both are expected, recoverable outcomes.
	StoreRecord(ctx context.Context, subjectID, digest string, metadata map[string]string) (string, error)

	// GetRecord resolves a reference back to its AnchorRecord. An
	// unknown reference returns ErrNotFound, a valid negative result.
	// ErrDecode is returned only when the reference resolves to data
	// that exists but cannot be parsed as an anchor record.
	GetRecord(ctx context.Context, reference string) (*AnchorRecord, error)
}
