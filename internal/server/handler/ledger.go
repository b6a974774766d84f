// Package handler exposes the chronosd HTTP API over the integrity core.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/chronoslabs/chronos/internal/ledger"
	"github.com/chronoslabs/chronos/internal/verifier"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LedgerHandler exposes the hash-chain ledger: read endpoints plus the
// record endpoint that routes through the verifier facade.
type LedgerHandler struct {
	ledger   ledger.Ledger
	verifier *verifier.Verifier
	logger   *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(l ledger.Ledger, v *verifier.Verifier, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, verifier: v, logger: logger}
}

// Register mounts the ledger routes on the given router group. The record
// endpoint additionally passes through auth.
func (h *LedgerHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	lg := rg.Group("/ledger")
	{
		lg.GET("", h.Overview)
		lg.GET("/verify", h.Verify)
		lg.GET("/manifest", h.Manifest)
		lg.GET("/transactions/:idx", h.GetTransaction)
		lg.POST("/record", auth, h.Record)
	}
}

// Overview handles GET /ledger — returns the chain length and current tip.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}

	manifest, err := h.ledger.Manifest(ctx)
	if err != nil {
		h.logger.Error("ledger Manifest", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger tip"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": count,
		"latest_hash":  manifest.LatestHash,
	})
}

// Verify handles GET /ledger/verify — walks the chain and reports integrity,
// including the index of the first break when one exists.
func (h *LedgerHandler) Verify(c *gin.Context) {
	err := h.ledger.Verify(c.Request.Context())
	if err != nil {
		h.logger.Warn("chain integrity check failed", zap.Error(err))
		resp := gin.H{"valid": false, "error": err.Error()}
		var breakErr *ledger.BreakError
		if errors.As(err, &breakErr) {
			resp["break_index"] = breakErr.Index
		}
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// Manifest handles GET /ledger/manifest — returns a point-in-time snapshot
// of the chain head.
func (h *LedgerHandler) Manifest(c *gin.Context) {
	manifest, err := h.ledger.Manifest(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger Manifest", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build manifest"})
		return
	}
	c.JSON(http.StatusOK, manifest)
}

// GetTransaction handles GET /ledger/transactions/:idx.
func (h *LedgerHandler) GetTransaction(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	tx, err := h.ledger.Get(c.Request.Context(), idx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, tx)
}

// recordRequest is the payload for POST /ledger/record.
type recordRequest struct {
	Type      string            `json:"type" binding:"required"`
	Files     []string          `json:"files"`
	Operation string            `json:"operation" binding:"required"`
	Agent     string            `json:"agent" binding:"required"`
	Metadata  map[string]string `json:"metadata"`
}

// Record handles POST /ledger/record — records an operation through the
// verifier facade. A rejected transaction is a 409, not a 500: the chain is
// intact, the caller's linkage was stale.
func (h *LedgerHandler) Record(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txID := h.verifier.RecordEvent(c.Request.Context(), verifier.EventRecord{
		Type:      req.Type,
		Files:     req.Files,
		Operation: req.Operation,
		Agent:     req.Agent,
		Metadata:  req.Metadata,
	})
	RecordTransaction(txID != "")
	if txID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "transaction rejected"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"tx_id": txID})
}
