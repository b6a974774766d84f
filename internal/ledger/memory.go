package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation. The chain
// starts empty; the first appended transaction links to GenesisHash.
type MemoryLedger struct {
	mu     sync.RWMutex
	chain  []*Transaction
	logger *zap.Logger
}

// New creates an empty MemoryLedger.
func New(logger *zap.Logger) *MemoryLedger {
	return &MemoryLedger{logger: logger}
}

// tailHash returns the data hash of the newest transaction, or GenesisHash
// for an empty chain. Callers must hold mu.
func (l *MemoryLedger) tailHash() string {
	if len(l.chain) == 0 {
		return GenesisHash
	}
	return l.chain[len(l.chain)-1].DataHash
}

// Create implements Ledger.
func (l *MemoryLedger) Create(_ context.Context, operation string, payload any) (*Transaction, error) {
	l.mu.RLock()
	tail := l.tailHash()
	l.mu.RUnlock()
	return newTransaction(operation, payload, tail)
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, tx *Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := validate(tx, l.tailHash()); err != nil {
		tx.Status = StatusRejected
		l.logger.Warn("transaction rejected",
			zap.String("tx_id", tx.ID),
			zap.String("operation", tx.Operation),
			zap.Error(err),
		)
		return err
	}

	tx.Status = StatusConfirmed
	l.chain = append(l.chain, tx)
	l.logger.Debug("transaction confirmed",
		zap.String("tx_id", tx.ID),
		zap.String("operation", tx.Operation),
		zap.Int("idx", len(l.chain)-1),
	)
	return nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, index int) (*Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.chain) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	return l.chain[index], nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain), nil
}

// Verify implements Ledger.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i, tx := range l.chain {
		if i == 0 {
			if tx.PrevHash != GenesisHash {
				return &BreakError{Index: 0, Reason: "genesis transaction does not link to the genesis sentinel"}
			}
			continue
		}
		if tx.PrevHash != l.chain[i-1].DataHash {
			return &BreakError{Index: i, Reason: "prev_hash does not match predecessor data_hash"}
		}
	}
	return nil
}

// Manifest implements Ledger.
func (l *MemoryLedger) Manifest(_ context.Context) (*Manifest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Manifest{
		ChainLength: len(l.chain),
		LatestHash:  l.tailHash(),
		GenesisHash: GenesisHash,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
