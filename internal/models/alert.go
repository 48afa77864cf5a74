package models

import (
	"time"
)

// AlertKind classifies the emergency signal raised by the originator.
type AlertKind string

const (
	KindNotFeelingWell AlertKind = "not_feeling_well"
	KindNeedHelp       AlertKind = "need_help"
	KindWantToTalk     AlertKind = "want_to_talk"
)

// Valid reports whether k is one of the known alert kinds.
func (k AlertKind) Valid() bool {
	switch k {
	case KindNotFeelingWell, KindNeedHelp, KindWantToTalk:
		return true
	}
	return false
}

// InitialPriority returns the priority a fresh alert of this kind starts with.
func (k AlertKind) InitialPriority() Priority {
	switch k {
	case KindNotFeelingWell:
		return PriorityHigh
	case KindNeedHelp:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// AlertStatus is the lifecycle state of an alert. Resolved and cancelled are terminal.
type AlertStatus string

const (
	StatusActive    AlertStatus = "active"
	StatusResolved  AlertStatus = "resolved"
	StatusCancelled AlertStatus = "cancelled"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// NextPriority returns the next step on the escalation ladder. Critical stays critical.
func NextPriority(p Priority) Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	case PriorityHigh:
		return PriorityCritical
	}
	return p
}

// ExpectedPriorityBeforeLevel returns the priority an alert is expected to carry
// just before escalating to the given level. The ladder only bumps priority when
// the current value matches, so a manual override is never double-applied.
func ExpectedPriorityBeforeLevel(level int) Priority {
	switch level {
	case 1:
		return PriorityLow
	case 2:
		return PriorityMedium
	case 3:
		return PriorityHigh
	}
	return ""
}

const (
	MaxEscalationLevel   = 3
	MaxAlertMessageLen   = 500
	MaxResponseTextLen   = 300
	OverdueAfter         = 30 * time.Minute
	AutoResolveAfter     = 24 * time.Hour
	AutoResolveNote      = "auto-resolved"
	ResponderRewardScore = 20
)

// Location is an optional free-form position attached to an alert.
type Location struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   string   `json:"address,omitempty"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Country   string   `json:"country,omitempty"`
}

// Alert is a single emergency signal and its full lifecycle record. Alerts are
// never deleted; they only move through status changes.
type Alert struct {
	ID              string      `json:"id"`
	OriginatorID    int64       `json:"originator_id"`
	Kind            AlertKind   `json:"kind"`
	Message         string      `json:"message,omitempty"`
	Location        Location    `json:"location,omitempty"`
	Status          AlertStatus `json:"status"`
	Priority        Priority    `json:"priority"`
	EscalationLevel int         `json:"escalation_level"`
	LastEscalatedAt *time.Time  `json:"last_escalated_at,omitempty"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy      *int64      `json:"resolved_by,omitempty"`
	ResolutionNote  string      `json:"resolution_note,omitempty"`
	IsTestAlert     bool        `json:"is_test_alert"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	Responses        []Response        `json:"responses,omitempty"`
	NotifiedContacts []NotifiedContact `json:"notified_contacts,omitempty"`
}

// Response is one trusted-contact reply to an alert. Append-only; a contact may
// respond more than once.
type Response struct {
	ID               string     `json:"id"`
	AlertID          string     `json:"alert_id"`
	ResponderID      int64      `json:"responder_id"`
	Text             string     `json:"text"`
	Type             string     `json:"type"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
	RespondedAt      time.Time  `json:"responded_at"`
}

const (
	ResponseTypeText  = "text"
	ResponseTypeCall  = "call"
	ResponseTypeVisit = "visit"
)

// ValidResponseType reports whether t is a known response type.
func ValidResponseType(t string) bool {
	return t == ResponseTypeText || t == ResponseTypeCall || t == ResponseTypeVisit
}

// NotifiedContact records one delivery attempt to a contact within a fan-out
// round. At most one entry exists per (alert, contact, round).
type NotifiedContact struct {
	AlertID    string    `json:"alert_id"`
	ContactID  int64     `json:"contact_id"`
	Round      int       `json:"round"`
	Method     string    `json:"method"`
	NotifiedAt time.Time `json:"notified_at"`
}

// ResponseCount is derived from the loaded responses, never stored.
func (a *Alert) ResponseCount() int {
	return len(a.Responses)
}

// TimeElapsed returns how long the alert has existed as of now.
func (a *Alert) TimeElapsed(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}

// IsOverdue reports whether the alert is active, unanswered, and older than the
// 30-minute response window.
func (a *Alert) IsOverdue(now time.Time) bool {
	return a.Status == StatusActive &&
		a.ResponseCount() == 0 &&
		a.TimeElapsed(now) > OverdueAfter
}

// HasResponseFrom reports whether userID appears among the loaded responses.
func (a *Alert) HasResponseFrom(userID int64) bool {
	for _, r := range a.Responses {
		if r.ResponderID == userID {
			return true
		}
	}
	return false
}
