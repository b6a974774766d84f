package ledger

import "context"

// Ledger is the interface for the append-only hash-chained transaction log.
// Both MemoryLedger and PostgresLedger implement this interface.
//
// Recording an operation is a two-step protocol: Create computes the hashes
// and links the pending transaction to the current chain tail; Append
// validates that linkage still holds and confirms the transaction. A
// transaction created before the tail advanced fails Append with a stale
// prev_hash, which is the desired behavior, not an error to retry blindly.
type Ledger interface {
	// Create builds a pending transaction for operation, hashing the
	// payload's canonical JSON encoding and linking to the chain tail
	// (or GenesisHash when the chain is empty).
	Create(ctx context.Context, operation string, payload any) (*Transaction, error)

	// Append validates tx against the current tail and confirms it.
	// On failure tx.Status becomes StatusRejected, the chain is unchanged,
	// and the returned error wraps ErrValidation.
	Append(ctx context.Context, tx *Transaction) error

	// Get returns the transaction at the given zero-based index.
	Get(ctx context.Context, index int) (*Transaction, error)

	// Len returns the number of confirmed transactions.
	Len(ctx context.Context) (int, error)

	// Verify walks the chain in order confirming linkage. It returns nil
	// for an intact chain and a *BreakError naming the first broken index
	// otherwise. Verification short-circuits on the first failure.
	Verify(ctx context.Context) error

	// Manifest returns a point-in-time snapshot of the chain head.
	Manifest(ctx context.Context) (*Manifest, error)
}
