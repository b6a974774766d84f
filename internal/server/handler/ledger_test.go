package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chronoslabs/chronos/internal/ledger"
	"github.com/chronoslabs/chronos/internal/proof"
	"github.com/chronoslabs/chronos/internal/server/handler"
	"github.com/chronoslabs/chronos/internal/temporal"
	"github.com/chronoslabs/chronos/internal/verifier"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func setupLedgerRouter(t *testing.T) (*gin.Engine, *ledger.MemoryLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	chain := ledger.New(zap.NewNop())
	coord := temporal.NewCoordinator(zap.NewNop())
	proofs := proof.NewEngine(zap.NewNop())
	v := verifier.New(chain, coord, proofs, zap.NewNop())

	h := handler.NewLedgerHandler(chain, v, zap.NewNop())
	v1 := r.Group("/api/v1")
	h.Register(v1, passthroughAuth())
	return r, chain
}

// passthroughAuth skips token checks; RequireToken with a nil issuer does
// the same, this just makes the intent explicit in tests.
func passthroughAuth() gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}

func recordBody() string {
	return `{"type":"memory_update","operation":"consolidate","agent":"agent_a","files":["a.md"]}`
}

func TestLedgerOverview_200_empty(t *testing.T) {
	router, _ := setupLedgerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if n := int(resp["transactions"].(float64)); n != 0 {
		t.Errorf("expected 0 transactions, got %d", n)
	}
	if resp["latest_hash"] != ledger.GenesisHash {
		t.Errorf("expected genesis tail on empty chain, got %v", resp["latest_hash"])
	}
}

func TestLedgerRecord_201_advancesChain(t *testing.T) {
	router, chain := setupLedgerRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ledger/record", strings.NewReader(recordBody()))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if resp["tx_id"] == "" || resp["tx_id"] == nil {
		t.Error("expected a tx_id in the response")
	}

	n, _ := chain.Len(req.Context())
	if n != 1 {
		t.Errorf("chain length = %d, want 1", n)
	}
}

func TestLedgerRecord_400_missingFields(t *testing.T) {
	router, _ := setupLedgerRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ledger/record", strings.NewReader(`{"type":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLedgerVerify_200_intact(t *testing.T) {
	router, _ := setupLedgerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/verify", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if resp["valid"] != true {
		t.Errorf("expected valid=true, got %v", resp["valid"])
	}
}

func TestLedgerVerify_reportsBreakIndex(t *testing.T) {
	router, chain := setupLedgerRouter(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	for i := 0; i < 3; i++ {
		tx, err := chain.Create(ctx, "op", map[string]string{"k": "v"})
		if err != nil {
			t.Fatal(err)
		}
		if err := chain.Append(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}
	tx, _ := chain.Get(ctx, 1)
	tx.PrevHash = "deadbeef"

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/verify", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if resp["valid"] != false {
		t.Fatalf("expected valid=false, got %v", resp["valid"])
	}
	if idx := int(resp["break_index"].(float64)); idx != 1 {
		t.Errorf("break_index = %d, want 1", idx)
	}
}

func TestLedgerGetTransaction_404(t *testing.T) {
	router, _ := setupLedgerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/transactions/999", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestLedgerGetTransaction_400_invalidIdx(t *testing.T) {
	router, _ := setupLedgerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/transactions/abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
