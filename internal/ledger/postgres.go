package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all chronosd instances sharing a database.
const advisoryLockKey = int64(7_230_115_009)

// PostgresLedger persists the hash-chained transaction log to PostgreSQL.
// It implements the Ledger interface.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by the given connection pool.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger}
}

// tailHash reads the data hash of the newest transaction, or GenesisHash
// for an empty chain.
func (l *PostgresLedger) tailHash(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}) (string, error) {
	var hash string
	err := q.QueryRow(ctx,
		"SELECT data_hash FROM chronos_transactions ORDER BY idx DESC LIMIT 1",
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("read chain tail: %w", err)
	}
	return hash, nil
}

// Create implements Ledger.
func (l *PostgresLedger) Create(ctx context.Context, operation string, payload any) (*Transaction, error) {
	tail, err := l.tailHash(ctx, l.pool)
	if err != nil {
		return nil, err
	}
	return newTransaction(operation, payload, tail)
}

// Append implements Ledger.
// It acquires a PostgreSQL advisory lock, re-reads the chain tail, validates
// the transaction's linkage, and inserts it — all within one transaction.
func (l *PostgresLedger) Append(ctx context.Context, tx *Transaction) error {
	dbtx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbtx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent appends with a transaction-scoped advisory lock.
	// The lock is released when the transaction commits or rolls back.
	if _, err := dbtx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	tail, err := l.tailHash(ctx, dbtx)
	if err != nil {
		return err
	}

	if err := validate(tx, tail); err != nil {
		tx.Status = StatusRejected
		l.logger.Warn("transaction rejected",
			zap.String("tx_id", tx.ID),
			zap.String("operation", tx.Operation),
			zap.Error(err),
		)
		return err
	}
	tx.Status = StatusConfirmed

	var idx int
	if err := dbtx.QueryRow(ctx,
		"SELECT COUNT(*) FROM chronos_transactions",
	).Scan(&idx); err != nil {
		return fmt.Errorf("count transactions: %w", err)
	}

	if _, err := dbtx.Exec(ctx,
		`INSERT INTO chronos_transactions (idx, tx_id, timestamp, operation, data_hash, prev_hash, merkle_root, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		idx, tx.ID, tx.Timestamp, tx.Operation,
		tx.DataHash, tx.PrevHash, tx.MerkleRoot, tx.Status,
	); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	l.logger.Debug("transaction confirmed",
		zap.String("tx_id", tx.ID),
		zap.String("operation", tx.Operation),
		zap.Int("idx", idx),
	)
	return nil
}

// Get implements Ledger.
func (l *PostgresLedger) Get(ctx context.Context, index int) (*Transaction, error) {
	tx := &Transaction{}
	if err := l.pool.QueryRow(ctx,
		`SELECT tx_id, timestamp, operation, data_hash, prev_hash, merkle_root, status
		 FROM chronos_transactions WHERE idx = $1`, index,
	).Scan(
		&tx.ID, &tx.Timestamp, &tx.Operation,
		&tx.DataHash, &tx.PrevHash, &tx.MerkleRoot, &tx.Status,
	); err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", index, err)
	}
	return tx, nil
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chronos_transactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// Verify implements Ledger. It streams all rows ordered by idx and validates
// the hash chain. O(n) in chain length; may be slow for very large chains.
func (l *PostgresLedger) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx,
		`SELECT idx, prev_hash, data_hash FROM chronos_transactions ORDER BY idx ASC`,
	)
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	prevDataHash := GenesisHash
	for rows.Next() {
		var idx int
		var prevHash, dataHash string
		if err := rows.Scan(&idx, &prevHash, &dataHash); err != nil {
			return fmt.Errorf("scan transaction row: %w", err)
		}
		if prevHash != prevDataHash {
			if idx == 0 {
				return &BreakError{Index: 0, Reason: "genesis transaction does not link to the genesis sentinel"}
			}
			return &BreakError{Index: idx, Reason: "prev_hash does not match predecessor data_hash"}
		}
		prevDataHash = dataHash
	}
	return rows.Err()
}

// Manifest implements Ledger.
func (l *PostgresLedger) Manifest(ctx context.Context) (*Manifest, error) {
	n, err := l.Len(ctx)
	if err != nil {
		return nil, err
	}
	tail, err := l.tailHash(ctx, l.pool)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		ChainLength: n,
		LatestHash:  tail,
		GenesisHash: GenesisHash,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
