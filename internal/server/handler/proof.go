package handler

import (
	"errors"
	"net/http"

	"github.com/chronoslabs/chronos/internal/proof"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProofHandler exposes the proof engine.
type ProofHandler struct {
	engine *proof.Engine
	logger *zap.Logger
}

// NewProofHandler creates a new ProofHandler.
func NewProofHandler(engine *proof.Engine, logger *zap.Logger) *ProofHandler {
	return &ProofHandler{engine: engine, logger: logger}
}

// Register mounts the proof routes on the given router group.
func (h *ProofHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	pg := rg.Group("/proofs")
	{
		pg.GET("", h.List)
		pg.GET("/:id", h.Get)
		pg.GET("/:id/verify", h.Verify)
		pg.POST("", auth, h.Create)
		pg.POST("/:id/finalize", auth, h.Finalize)
	}
}

// proofRequest is the payload for POST /proofs and POST /proofs/:id/finalize.
type proofRequest struct {
	Operation string   `json:"operation"`
	Files     []string `json:"files"`
}

// Create handles POST /proofs — captures the fileset's before-state.
func (h *ProofHandler) Create(c *gin.Context) {
	var req proofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Operation == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operation is required"})
		return
	}

	p := h.engine.Generate(req.Operation, req.Files)
	RecordProofGenerated()
	c.JSON(http.StatusCreated, p)
}

// Finalize handles POST /proofs/:id/finalize — captures the after-state.
func (h *ProofHandler) Finalize(c *gin.Context) {
	var req proofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.engine.Finalize(id, req.Files); err != nil {
		if errors.Is(err, proof.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "proof not found"})
			return
		}
		h.logger.Error("finalize proof", zap.String("proof_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to finalize proof"})
		return
	}
	RecordProofFinalized()

	p, err := h.engine.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "proof not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// Verify handles GET /proofs/:id/verify — applies the strict verification
// predicate. A finalized proof over unchanged content reports verified=false.
func (h *ProofHandler) Verify(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.engine.Get(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "proof not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": h.engine.VerifyIntegrity(id)})
}

// Get handles GET /proofs/:id.
func (h *ProofHandler) Get(c *gin.Context) {
	p, err := h.engine.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "proof not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// List handles GET /proofs — all proofs in generation order plus stats.
func (h *ProofHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"proofs": h.engine.List(),
		"stats":  h.engine.Stats(),
	})
}
