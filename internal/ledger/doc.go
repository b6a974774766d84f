// Package ledger implements a hash-chained, append-only transaction log.
//
// Every transaction records the canonical SHA-256 of its payload, a merkle
// root over the payload set, and the data hash of its predecessor. The first
// transaction links to GenesisHash (64 hex zeros), so any tampering with a
// confirmed transaction is detectable via Verify.
//
// Two implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and single-process deployments.
//   - PostgresLedger: durable, for production use.
package ledger
