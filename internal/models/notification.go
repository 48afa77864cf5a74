package models

import "time"

// Delivery statuses for a notification record.
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// NotificationRecord is one row per (alert, contact, round) tracking the
// outcome of a single delivery attempt through the external channel.
type NotificationRecord struct {
	ID        string     `json:"id"`
	AlertID   string     `json:"alert_id"`
	ContactID int64      `json:"contact_id"`
	Round     int        `json:"round"`
	Method    string     `json:"method"`
	Status    string     `json:"status"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// AlertStats is the aggregate view over an originator's alerts for a trailing
// window. All fields are derived at query time.
type AlertStats struct {
	TotalAlerts       int     `json:"total_alerts"`
	ActiveAlerts      int     `json:"active_alerts"`
	ResolvedAlerts    int     `json:"resolved_alerts"`
	CancelledAlerts   int     `json:"cancelled_alerts"`
	ResponseRate      float64 `json:"response_rate"`
	AvgResolveMinutes float64 `json:"avg_resolve_minutes"`
}
