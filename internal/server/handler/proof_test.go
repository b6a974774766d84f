package handler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chronoslabs/chronos/internal/proof"
	"github.com/chronoslabs/chronos/internal/server/handler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func setupProofRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handler.NewProofHandler(proof.NewEngine(zap.NewNop()), zap.NewNop())
	v1 := r.Group("/api/v1")
	h.Register(v1, passthroughAuth())
	return r
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProofLifecycle_createFinalizeVerify(t *testing.T) {
	router := setupProofRouter(t)
	dir := t.TempDir()
	path := writeTempFile(t, dir, "notes.md", "before")

	body := fmt.Sprintf(`{"operation":"consolidate","files":[%q]}`, path)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/proofs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created map[string]any
	json.Unmarshal(w.Body.Bytes(), &created) //nolint:errcheck
	id := created["proof_id"].(string)

	// Change the file, then finalize.
	writeTempFile(t, dir, "notes.md", "after")

	req = httptest.NewRequest(http.MethodPost, "/api/v1/proofs/"+id+"/finalize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("finalize: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var finalized map[string]any
	json.Unmarshal(w.Body.Bytes(), &finalized) //nolint:errcheck
	if finalized["finalized"] != true {
		t.Error("expected finalized=true")
	}
	if finalized["before_hash"] == finalized["after_hash"] {
		t.Error("expected before/after hashes to differ")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/proofs/"+id+"/verify", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var verified map[string]any
	json.Unmarshal(w.Body.Bytes(), &verified) //nolint:errcheck
	if verified["verified"] != true {
		t.Errorf("expected verified=true, got %v", verified["verified"])
	}
}

func TestProofVerify_unchangedContentNotVerified(t *testing.T) {
	router := setupProofRouter(t)
	dir := t.TempDir()
	path := writeTempFile(t, dir, "notes.md", "same")

	body := fmt.Sprintf(`{"operation":"noop","files":[%q]}`, path)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/proofs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var created map[string]any
	json.Unmarshal(w.Body.Bytes(), &created) //nolint:errcheck
	id := created["proof_id"].(string)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/proofs/"+id+"/finalize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/proofs/"+id+"/verify", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var verified map[string]any
	json.Unmarshal(w.Body.Bytes(), &verified) //nolint:errcheck
	if verified["verified"] != false {
		t.Errorf("unchanged content: expected verified=false, got %v", verified["verified"])
	}
}

func TestProofFinalize_404_unknownID(t *testing.T) {
	router := setupProofRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/proofs/nope/finalize", strings.NewReader(`{"files":[]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestProofCreate_400_missingOperation(t *testing.T) {
	router := setupProofRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/proofs", strings.NewReader(`{"files":["a.md"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestProofList_includesStats(t *testing.T) {
	router := setupProofRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/proofs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if _, ok := resp["stats"]; !ok {
		t.Error("expected stats in the list response")
	}
}
