package handler

import (
	"net/http"

	"github.com/chronoslabs/chronos/internal/temporal"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TemporalHandler exposes the event timeline and coordination endpoints.
type TemporalHandler struct {
	coord  *temporal.Coordinator
	logger *zap.Logger
}

// NewTemporalHandler creates a new TemporalHandler.
func NewTemporalHandler(coord *temporal.Coordinator, logger *zap.Logger) *TemporalHandler {
	return &TemporalHandler{coord: coord, logger: logger}
}

// Register mounts the temporal routes on the given router group.
func (h *TemporalHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.GET("/timeline", h.Timeline)
	rg.POST("/events", auth, h.RegisterEvent)
	rg.POST("/coordinate", auth, h.Coordinate)
}

// Timeline handles GET /timeline[?agent=] — the full sequence-ordered
// timeline, or one agent's events.
func (h *TemporalHandler) Timeline(c *gin.Context) {
	events := h.coord.Timeline(c.Query("agent"))
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// eventRequest is the payload for POST /events.
type eventRequest struct {
	Kind    temporal.Kind    `json:"kind" binding:"required"`
	Agent   string           `json:"agent" binding:"required"`
	Payload temporal.Payload `json:"payload"`
}

// RegisterEvent handles POST /events — registers an event on behalf of an
// external agent and returns its id.
func (h *TemporalHandler) RegisterEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := h.coord.RegisterEvent(req.Kind, req.Agent, req.Payload)
	RecordEventKind(string(req.Kind))
	c.JSON(http.StatusCreated, gin.H{"event_id": id})
}

// coordinateRequest is the payload for POST /coordinate.
type coordinateRequest struct {
	Operation string   `json:"operation" binding:"required"`
	Agents    []string `json:"agents" binding:"required,min=1"`
}

// Coordinate handles POST /coordinate — opens a coordination window for the
// named agent set. The window closes before the response is written; over
// HTTP the value of the call is the serialisation point and the recorded
// start/complete events, not a held lock.
func (h *TemporalHandler) Coordinate(c *gin.Context) {
	var req coordinateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok := h.coord.Coordinate(c.Request.Context(), req.Operation, req.Agents, nil)
	RecordCoordination(ok)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{
			"coordinated": false,
			"error":       "one or more agents are locked; retry later",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"coordinated": true})
}
