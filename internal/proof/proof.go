// Package proof computes before/after content-hash proofs that an operation
// actually changed a set of files.
//
// A proof moves through two states: generated (before-hash captured) and
// finalized (after-hash captured). Finalization is a completion flag, not a
// correctness signal — a proof whose fileset did not change content is
// finalized but fails VerifyIntegrity. The two notions are kept deliberately
// distinct.
package proof

import "time"

// Proof asserts that an operation changed the content of a fileset.
type Proof struct {
	ID        string    `json:"proof_id"`
	Operation string    `json:"operation"`
	Files     []string  `json:"files"`

	// BeforeHash is the SHA-256 over the concatenated byte content of every
	// readable file in Files at generation time.
	BeforeHash string `json:"before_hash"`

	// AfterHash is empty until the proof is finalized.
	AfterHash string `json:"after_hash"`

	// SkippedFiles lists fileset members that were missing or unreadable
	// during either hashing pass and were excluded from the hash input.
	// A proof with skips is weaker evidence; callers should discount it.
	SkippedFiles []string `json:"skipped_files,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	FinalizedAt time.Time `json:"finalized_at,omitzero"`

	// Finalized records that the after-hash has been computed. It says
	// nothing about whether the hashes differ.
	Finalized bool `json:"finalized"`
}

// Stats summarises the engine's proof collection.
type Stats struct {
	// Total is the number of proofs generated.
	Total int `json:"total"`
	// Verified counts proofs passing the strict VerifyIntegrity predicate.
	Verified int `json:"verified"`
	// Pending counts proofs not yet finalized.
	Pending int `json:"pending"`
}
