package proof_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chronoslabs/chronos/internal/proof"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGenerate_capturesBeforeState(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")
	b := writeFile(t, dir, "b.txt", "beta")

	e := proof.NewEngine(zap.NewNop())
	p := e.Generate("merge_files", []string{a, b})

	if len(p.ID) != 64 {
		t.Errorf("proof id length = %d, want 64", len(p.ID))
	}
	if p.BeforeHash == "" {
		t.Error("BeforeHash is empty")
	}
	if p.AfterHash != "" {
		t.Errorf("AfterHash = %q before finalization, want empty", p.AfterHash)
	}
	if p.Finalized {
		t.Error("new proof marked finalized")
	}
	if len(p.SkippedFiles) != 0 {
		t.Errorf("SkippedFiles = %v, want none", p.SkippedFiles)
	}
}

func TestGenerate_missingFilesSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")
	ghost := filepath.Join(dir, "ghost.txt")

	e := proof.NewEngine(zap.NewNop())
	p := e.Generate("remove_duplicates", []string{a, ghost})

	if len(p.SkippedFiles) != 1 || p.SkippedFiles[0] != ghost {
		t.Errorf("SkippedFiles = %v, want [%s]", p.SkippedFiles, ghost)
	}

	// The skipped file contributed nothing: hash equals a proof over just a.
	only := e.Generate("remove_duplicates", []string{a})
	if p.BeforeHash != only.BeforeHash {
		t.Error("skipped file altered the before-hash")
	}
}

func TestFinalize_changedContentVerifies(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")

	e := proof.NewEngine(zap.NewNop())
	p := e.Generate("rewrite", []string{a})

	writeFile(t, dir, "a.txt", "alpha v2")
	if err := e.Finalize(p.ID, []string{a}); err != nil {
		t.Fatal(err)
	}

	if !p.Finalized {
		t.Error("proof not marked finalized")
	}
	if p.AfterHash == p.BeforeHash {
		t.Error("after-hash equals before-hash despite content change")
	}
	if !e.VerifyIntegrity(p.ID) {
		t.Error("VerifyIntegrity = false for a changed, finalized proof")
	}
}

func TestFinalize_unchangedContentFinalizedButNotVerified(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")

	e := proof.NewEngine(zap.NewNop())
	p := e.Generate("noop", []string{a})

	if err := e.Finalize(p.ID, []string{a}); err != nil {
		t.Fatal(err)
	}

	if !p.Finalized {
		t.Error("unchanged proof must still be finalized")
	}
	if e.VerifyIntegrity(p.ID) {
		t.Error("VerifyIntegrity = true for unchanged content")
	}
}

func TestVerifyIntegrity_emptyFileset(t *testing.T) {
	e := proof.NewEngine(zap.NewNop())
	p := e.Generate("empty", nil)
	if err := e.Finalize(p.ID, nil); err != nil {
		t.Fatal(err)
	}
	if e.VerifyIntegrity(p.ID) {
		t.Error("VerifyIntegrity = true for empty fileset")
	}
}

func TestFinalize_unknownProof(t *testing.T) {
	e := proof.NewEngine(zap.NewNop())
	if err := e.Finalize("no-such-proof", nil); !errors.Is(err, proof.ErrNotFound) {
		t.Errorf("Finalize(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")
	b := writeFile(t, dir, "b.txt", "beta")

	e := proof.NewEngine(zap.NewNop())

	changed := e.Generate("rewrite", []string{a})
	writeFile(t, dir, "a.txt", "alpha v2")
	if err := e.Finalize(changed.ID, []string{a}); err != nil {
		t.Fatal(err)
	}

	unchanged := e.Generate("noop", []string{b})
	if err := e.Finalize(unchanged.ID, []string{b}); err != nil {
		t.Fatal(err)
	}

	e.Generate("pending", []string{b})

	s := e.Stats()
	if s.Total != 3 {
		t.Errorf("Total = %d, want 3", s.Total)
	}
	if s.Verified != 1 {
		t.Errorf("Verified = %d, want 1", s.Verified)
	}
	if s.Pending != 1 {
		t.Errorf("Pending = %d, want 1", s.Pending)
	}
}

func TestUnverified(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")

	e := proof.NewEngine(zap.NewNop())
	if e.Unverified() {
		t.Error("empty collection reported unverified proofs")
	}

	p := e.Generate("rewrite", []string{a})
	if !e.Unverified() {
		t.Error("pending proof not reported as unverified")
	}

	writeFile(t, dir, "a.txt", "alpha v2")
	if err := e.Finalize(p.ID, []string{a}); err != nil {
		t.Fatal(err)
	}
	if e.Unverified() {
		t.Error("verified collection reported unverified proofs")
	}
}
