package temporal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkFunc is the coordinated work a caller performs while the agent locks
// are held. The coordinator awaits it between lock acquisition and release
// and imposes no timing contract on it.
type WorkFunc func(ctx context.Context) error

// Coordinator owns the event timeline, the sequence counter, and the agent
// lock table. All mutation goes through its mutex, so sequence allocation
// and lock transitions stay atomic relative to each other.
type Coordinator struct {
	mu     sync.Mutex
	events []*Event
	seq    int
	locks  map[string]bool
	logger *zap.Logger
}

// NewCoordinator creates a Coordinator with an empty timeline and no locks held.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	return &Coordinator{
		locks:  make(map[string]bool),
		logger: logger,
	}
}

// RegisterEvent appends an event to the timeline, allocating the next
// sequence number from the single global counter, and returns the event id.
// It never fails.
func (c *Coordinator) RegisterEvent(kind Kind, agent string, payload Payload) string {
	c.mu.Lock()
	c.seq++
	ev := &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Agent:     agent,
		Payload:   payload,
		Sequence:  c.seq,
	}
	c.events = append(c.events, ev)
	c.mu.Unlock()

	c.logger.Debug("temporal event registered",
		zap.String("event_id", ev.ID),
		zap.String("kind", string(kind)),
		zap.String("agent", agent),
		zap.Int("sequence", ev.Sequence),
	)
	return ev.ID
}

// Coordinate serialises operation across the named agents.
//
// Lock acquisition is all-or-nothing: if any agent in the set is already
// locked the attempt is rejected immediately, no lock is taken, and false is
// returned — the caller may retry later. On acquisition the coordinator
// emits a coordination_start event, awaits work (which may be nil), then
// releases every lock and emits coordination_complete. Locks are released on
// every exit path, including a failing or panicking work function.
func (c *Coordinator) Coordinate(ctx context.Context, operation string, agents []string, work WorkFunc) bool {
	coordinationID := uuid.NewString()

	c.mu.Lock()
	for _, agent := range agents {
		if c.locks[agent] {
			c.mu.Unlock()
			c.logger.Warn("coordination rejected: agent locked",
				zap.String("operation", operation),
				zap.String("agent", agent),
			)
			return false
		}
	}
	for _, agent := range agents {
		c.locks[agent] = true
	}
	c.mu.Unlock()

	// Safety net: releasing twice is harmless, never releasing is not.
	defer c.release(agents)

	c.RegisterEvent(KindCoordinationStart, SystemAgent, Payload{
		CoordinationID: coordinationID,
		Operation:      operation,
		Agents:         agents,
	})

	if work != nil {
		if err := work(ctx); err != nil {
			c.logger.Error("coordinated work failed",
				zap.String("operation", operation),
				zap.String("coordination_id", coordinationID),
				zap.Error(err),
			)
			return false
		}
	}

	c.release(agents)
	c.RegisterEvent(KindCoordinationComplete, SystemAgent, Payload{
		CoordinationID: coordinationID,
		Operation:      operation,
		Outcome:        "success",
	})

	c.logger.Info("coordination completed",
		zap.String("operation", operation),
		zap.String("coordination_id", coordinationID),
		zap.Strings("agents", agents),
	)
	return true
}

func (c *Coordinator) release(agents []string) {
	c.mu.Lock()
	for _, agent := range agents {
		c.locks[agent] = false
	}
	c.mu.Unlock()
}

// Locked reports whether the named agent currently holds a coordination lock.
func (c *Coordinator) Locked(agent string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locks[agent]
}

// Timeline returns the events registered for one agent, or the full timeline
// ordered by sequence number when agent is empty. Events are appended in
// sequence order, so the slice is already sorted.
func (c *Coordinator) Timeline(agent string) []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if agent == "" {
		out := make([]*Event, len(c.events))
		copy(out, c.events)
		return out
	}
	var out []*Event
	for _, ev := range c.events {
		if ev.Agent == agent {
			out = append(out, ev)
		}
	}
	return out
}

// EventCount returns the number of registered events.
func (c *Coordinator) EventCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
