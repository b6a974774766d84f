package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GenesisHash is the well-known previous-hash of the chain's first
// transaction. It anchors the chain; it is never the hash of anything.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// ErrValidation is returned by Append when a transaction fails validation.
// The transaction is marked rejected and discarded; the chain is unchanged.
var ErrValidation = errors.New("transaction validation failed")

// Transaction is one recorded operation plus its integrity-linking hash fields.
// Once confirmed and appended, a transaction is immutable.
type Transaction struct {
	ID         string    `json:"tx_id"`
	Timestamp  time.Time `json:"timestamp"`
	Operation  string    `json:"operation"`
	DataHash   string    `json:"data_hash"`
	PrevHash   string    `json:"prev_hash"`
	MerkleRoot string    `json:"merkle_root"`
	Status     Status    `json:"status"`
}

// Manifest is a point-in-time snapshot of the chain head. It is not itself
// a proof of correctness; Verify is.
type Manifest struct {
	ChainLength int       `json:"chain_length"`
	LatestHash  string    `json:"latest_hash"`
	GenesisHash string    `json:"genesis_hash"`
	GeneratedAt time.Time `json:"generated_at"`
}

// BreakError reports the index of the first transaction whose linkage is
// inconsistent with its predecessor.
type BreakError struct {
	Index  int
	Reason string
}

func (e *BreakError) Error() string {
	return fmt.Sprintf("hash chain broken at index %d: %s", e.Index, e.Reason)
}

// sha256Hex returns the hex-encoded SHA-256 digest of data.
func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// canonicalHash computes the content hash of a payload over its canonical
// JSON encoding. encoding/json emits map keys in sorted order and struct
// fields in declaration order, so equal payloads hash equally.
func canonicalHash(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return sha256Hex(b), nil
}

// merkleRoot reduces the leaf set pairwise, concatenating hex digests and
// re-hashing, duplicating the last digest when a level has an odd count,
// until a single digest remains. A lone leaf is still paired with itself,
// so the root of [p] is H(H(p) || H(p)). An empty set yields GenesisHash.
func merkleRoot(leaves [][]byte) string {
	if len(leaves) == 0 {
		return GenesisHash
	}
	hashes := make([]string, len(leaves))
	for i, leaf := range leaves {
		hashes[i] = sha256Hex(leaf)
	}
	for {
		var next []string
		for i := 0; i < len(hashes); i += 2 {
			left := hashes[i]
			right := left
			if i+1 < len(hashes) {
				right = hashes[i+1]
			}
			next = append(next, sha256Hex([]byte(left+right)))
		}
		hashes = next
		if len(hashes) == 1 {
			return hashes[0]
		}
	}
}

// newTransaction assembles a pending transaction for operation linked to
// prevHash. The transaction id is a digest of the operation, timestamp and
// data hash, so ids are 64 lowercase hex characters like every other hash
// in the chain.
func newTransaction(operation string, payload any, prevHash string) (*Transaction, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	dataHash := sha256Hex(b)
	return &Transaction{
		ID:         sha256Hex(fmt.Appendf(nil, "%s|%d|%s", operation, now.UnixNano(), dataHash)),
		Timestamp:  now,
		Operation:  operation,
		DataHash:   dataHash,
		PrevHash:   prevHash,
		MerkleRoot: merkleRoot([][]byte{b}),
		Status:     StatusPending,
	}, nil
}

// validate checks the structural invariants Append enforces: non-empty id
// and timestamp, and linkage to the current tail.
func validate(tx *Transaction, tailHash string) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: empty transaction id", ErrValidation)
	}
	if tx.Timestamp.IsZero() {
		return fmt.Errorf("%w: empty timestamp", ErrValidation)
	}
	if tx.PrevHash != tailHash {
		return fmt.Errorf("%w: prev_hash %s does not match chain tail %s", ErrValidation, tx.PrevHash, tailHash)
	}
	return nil
}
