package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a proof id is unknown to the engine.
var ErrNotFound = errors.New("proof not found")

// Engine owns the proof collection. It is safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	proofs map[string]*Proof
	order  []string
	logger *zap.Logger
}

// NewEngine creates an empty proof Engine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		proofs: make(map[string]*Proof),
		logger: logger,
	}
}

// hashFileset hashes the concatenated byte content of every readable file in
// files, in order. Missing or unreadable files are excluded from the hash
// input and returned in skipped rather than failing the whole pass.
func (e *Engine) hashFileset(files []string) (string, []string) {
	h := sha256.New()
	var skipped []string
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			skipped = append(skipped, path)
			e.logger.Warn("proof fileset member skipped", zap.String("file", path), zap.Error(err))
			continue
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), skipped
}

// Generate captures the before-state of the fileset and returns a new,
// unfinalized proof for operation.
func (e *Engine) Generate(operation string, files []string) *Proof {
	beforeHash, skipped := e.hashFileset(files)

	now := time.Now().UTC()
	p := &Proof{
		ID:           sha256Hex(fmt.Appendf(nil, "%s|%d|%s", operation, now.UnixNano(), uuid.NewString())),
		Operation:    operation,
		Files:        append([]string(nil), files...),
		BeforeHash:   beforeHash,
		SkippedFiles: skipped,
		CreatedAt:    now,
	}

	e.mu.Lock()
	e.proofs[p.ID] = p
	e.order = append(e.order, p.ID)
	e.mu.Unlock()

	e.logger.Info("proof generated",
		zap.String("proof_id", p.ID),
		zap.String("operation", operation),
		zap.Int("files", len(files)),
		zap.Int("skipped", len(skipped)),
	)
	return p
}

// Finalize re-reads the fileset, stores the after-hash, and marks the proof
// finalized — unconditionally, whether or not the content changed. Whether
// the proof also verifies is VerifyIntegrity's concern.
func (e *Engine) Finalize(proofID string, files []string) error {
	afterHash, skipped := e.hashFileset(files)

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.proofs[proofID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, proofID)
	}

	p.AfterHash = afterHash
	p.FinalizedAt = time.Now().UTC()
	p.Finalized = true
	for _, s := range skipped {
		if !contains(p.SkippedFiles, s) {
			p.SkippedFiles = append(p.SkippedFiles, s)
		}
	}

	e.logger.Info("proof finalized",
		zap.String("proof_id", p.ID),
		zap.Bool("content_changed", p.BeforeHash != p.AfterHash),
	)
	return nil
}

// VerifyIntegrity reports whether the proof actually evidences a change:
// it must be finalized, its before- and after-hashes must differ, and its
// fileset must be non-empty. A finalized proof over unchanged content is
// therefore finalized but not verified.
func (e *Engine) VerifyIntegrity(proofID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.proofs[proofID]
	if !ok {
		return false
	}
	return p.Finalized && p.BeforeHash != p.AfterHash && len(p.Files) > 0
}

// Get returns the proof with the given id.
func (e *Engine) Get(proofID string) (*Proof, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.proofs[proofID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, proofID)
	}
	return p, nil
}

// List returns all proofs in generation order.
func (e *Engine) List() []*Proof {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Proof, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.proofs[id])
	}
	return out
}

// Stats summarises the proof collection. Verified applies the strict
// VerifyIntegrity predicate; Pending counts unfinalized proofs. A finalized
// proof over unchanged content is counted in neither.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{Total: len(e.order)}
	for _, p := range e.proofs {
		if !p.Finalized {
			s.Pending++
			continue
		}
		if p.BeforeHash != p.AfterHash && len(p.Files) > 0 {
			s.Verified++
		}
	}
	return s
}

// Unverified reports whether any stored proof fails VerifyIntegrity.
// An empty collection is vacuously verified.
func (e *Engine) Unverified() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.proofs {
		if !(p.Finalized && p.BeforeHash != p.AfterHash && len(p.Files) > 0) {
			return true
		}
	}
	return false
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
