// Package temporal assigns a single strictly-ordered timeline to events from
// cooperating agents and serialises named operations with per-agent locks.
package temporal

import "time"

// Kind is the closed set of temporal event kinds. Payload fields are typed
// per kind rather than dispatched on free-form strings.
type Kind string

const (
	KindCoordinationStart    Kind = "coordination_start"
	KindCoordinationComplete Kind = "coordination_complete"
	KindPhaseStart           Kind = "phase_start"
	KindPhaseComplete        Kind = "phase_complete"
	KindOperation            Kind = "operation"
)

// SystemAgent is the originating agent recorded on events the coordinator
// emits itself, as opposed to events registered on behalf of callers.
const SystemAgent = "chronos"

// Payload carries the structured data attached to an event. Only the fields
// relevant to the event's Kind are populated.
type Payload struct {
	CoordinationID string            `json:"coordination_id,omitempty"`
	Operation      string            `json:"operation,omitempty"`
	Agents         []string          `json:"agents,omitempty"`
	Phase          string            `json:"phase,omitempty"`
	Outcome        string            `json:"outcome,omitempty"`
	Detail         map[string]string `json:"detail,omitempty"`
}

// Event is one logged, sequence-numbered occurrence attributed to an agent.
// Sequence numbers are dense (1..N) and assigned by a single authority no
// matter which agent registers the event.
type Event struct {
	ID        string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Agent     string    `json:"agent"`
	Payload   Payload   `json:"payload"`
	Sequence  int       `json:"sequence"`
}
