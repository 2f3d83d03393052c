package ledger

import "errors"

// ErrNotConnected means the ledger network was unreachable before any
// write was attempted.
var ErrNotConnected = errors.New("not connected to ledger network")

// ErrNoSigner means the adapter has no signing key and is running in
// read-only mode. Anchoring is unavailable; reads still work.
var ErrNoSigner = errors.New("no signing key configured (read-only mode)")

// ErrConfirmationTimeout means a transaction was submitted but the
// network did not confirm it within the deadline. The transaction may
// still land: callers should re-poll the same reference, never resubmit.
var ErrConfirmationTimeout = errors.New("transaction confirmation timed out")

// ErrTransactionFailed means the network confirmed the transaction with
// a failure status.
var ErrTransactionFailed = errors.New("transaction failed on ledger")

// ErrNotFound means a reference does not resolve to an anchor record.
// It is a valid negative result, not a fault.
var ErrNotFound = errors.New("anchor record not found")

// ErrDecode means a reference resolved to on-ledger data that carries
// the anchor envelope marker but cannot be parsed as an anchor record.
var ErrDecode = errors.New("ledger data is not a valid anchor record")
