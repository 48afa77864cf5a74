package events

import "time"

// Lifecycle event types published to the alert event stream.
const (
	TypeCreated       = "alert.created"
	TypeEscalated     = "alert.escalated"
	TypeResponseAdded = "alert.response_added"
	TypeResolved      = "alert.resolved"
	TypeCancelled     = "alert.cancelled"
	TypeAutoResolved  = "alert.auto_resolved"
)

// Event is one alert lifecycle change, keyed by alert so a partitioned
// consumer sees a single alert's events in order.
type Event struct {
	Type            string    `json:"type"`
	AlertID         string    `json:"alert_id"`
	OriginatorID    int64     `json:"originator_id"`
	ActorID         int64     `json:"actor_id,omitempty"`
	Kind            string    `json:"kind,omitempty"`
	Priority        string    `json:"priority,omitempty"`
	Status          string    `json:"status,omitempty"`
	EscalationLevel int       `json:"escalation_level,omitempty"`
	Note            string    `json:"note,omitempty"`
	At              time.Time `json:"at"`
}
