package handler

import (
	"net/http"

	"github.com/chronoslabs/chronos/internal/verifier"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReportHandler exposes the system-wide integrity check and the
// consolidation report.
type ReportHandler struct {
	verifier *verifier.Verifier
	logger   *zap.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(v *verifier.Verifier, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{verifier: v, logger: logger}
}

// Register mounts the report routes on the given router group.
func (h *ReportHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/integrity", h.Integrity)
	rg.GET("/report", h.Report)
}

// Integrity handles GET /integrity — runs the four integrity checks. The
// response is always 200; a broken system is a finding, not a server error.
func (h *ReportHandler) Integrity(c *gin.Context) {
	c.JSON(http.StatusOK, h.verifier.VerifyIntegrity(c.Request.Context()))
}

// Report handles GET /report — assembles the consolidation report snapshot.
func (h *ReportHandler) Report(c *gin.Context) {
	report, err := h.verifier.GenerateReport(c.Request.Context())
	if err != nil {
		h.logger.Error("generate report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate report"})
		return
	}
	c.JSON(http.StatusOK, report)
}
