package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"emergency-service/internal/models"
)

const alertColumns = `id, originator_id, kind, message, latitude, longitude, address, city, state, country,
	status, priority, escalation_level, last_escalated_at, resolved_at, resolved_by, resolution_note,
	is_test_alert, created_at, updated_at`

// Listings order by severity first, newest first within a severity.
const alertOrder = `ORDER BY CASE priority
	WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END DESC,
	created_at DESC`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var a models.Alert
	err := row.Scan(
		&a.ID, &a.OriginatorID, &a.Kind, &a.Message,
		&a.Location.Latitude, &a.Location.Longitude,
		&a.Location.Address, &a.Location.City, &a.Location.State, &a.Location.Country,
		&a.Status, &a.Priority, &a.EscalationLevel, &a.LastEscalatedAt,
		&a.ResolvedAt, &a.ResolvedBy, &a.ResolutionNote,
		&a.IsTestAlert, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAlert inserts a new alert record.
func (d *DB) CreateAlert(ctx context.Context, a *models.Alert) error {
	query := `
	INSERT INTO alerts (` + alertColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := d.Pool.Exec(ctx, query,
		a.ID, a.OriginatorID, a.Kind, a.Message,
		a.Location.Latitude, a.Location.Longitude,
		a.Location.Address, a.Location.City, a.Location.State, a.Location.Country,
		a.Status, a.Priority, a.EscalationLevel, a.LastEscalatedAt,
		a.ResolvedAt, a.ResolvedBy, a.ResolutionNote,
		a.IsTestAlert, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert fetches one alert with its responses and notified-contact history.
func (d *DB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}

	if a.Responses, err = d.responsesForAlert(ctx, id); err != nil {
		return nil, err
	}
	if a.NotifiedContacts, err = d.notifiedContactsForAlert(ctx, id); err != nil {
		return nil, err
	}
	return a, nil
}

func (d *DB) responsesForAlert(ctx context.Context, alertID string) ([]models.Response, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT id, alert_id, responder_id, text, response_type, estimated_arrival, responded_at
	FROM alert_responses WHERE alert_id = $1 ORDER BY responded_at`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get responses for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var list []models.Response
	for rows.Next() {
		var r models.Response
		if err := rows.Scan(&r.ID, &r.AlertID, &r.ResponderID, &r.Text, &r.Type, &r.EstimatedArrival, &r.RespondedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

func (d *DB) notifiedContactsForAlert(ctx context.Context, alertID string) ([]models.NotifiedContact, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT alert_id, contact_id, round, method, notified_at
	FROM alert_notified_contacts WHERE alert_id = $1 ORDER BY round, notified_at`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notified contacts for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var list []models.NotifiedContact
	for rows.Next() {
		var n models.NotifiedContact
		if err := rows.Scan(&n.AlertID, &n.ContactID, &n.Round, &n.Method, &n.NotifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notified contact: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// ListAlerts returns non-test alerts originated by any of the given users,
// optionally filtered by status, severity-ordered.
func (d *DB) ListAlerts(ctx context.Context, originatorIDs []int64, status string, limit, offset int) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
	WHERE originator_id = ANY($1) AND is_test_alert = FALSE`
	args := []interface{}{originatorIDs}
	if status != "" && status != "all" {
		query += ` AND status = $2 ` + alertOrder + ` LIMIT $3 OFFSET $4`
		args = append(args, status, limit, offset)
	} else {
		query += ` ` + alertOrder + ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var list []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// UpdateStatusIfActive moves an alert out of the active state. The WHERE clause
// makes the transition a compare-and-set: a second resolve, or a resolve racing
// a cancel, updates zero rows and returns false. The resolution fields are
// written only on the resolved transition; a cancelled alert carries none.
func (d *DB) UpdateStatusIfActive(ctx context.Context, id string, status models.AlertStatus, resolvedBy *int64, note string, at time.Time) (bool, error) {
	query := `
	UPDATE alerts
	SET status = $2,
	    resolved_at = CASE WHEN $2 = 'resolved' THEN $3 END,
	    resolved_by = CASE WHEN $2 = 'resolved' THEN $4 END,
	    resolution_note = CASE WHEN $2 = 'resolved' THEN $5 ELSE '' END,
	    updated_at = $3
	WHERE id = $1 AND status = 'active'`
	tag, err := d.Pool.Exec(ctx, query, id, status, at, resolvedBy, note)
	if err != nil {
		return false, fmt.Errorf("failed to update alert %s status: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// EscalateAlert raises escalation level and priority in one conditional update.
// Keyed on both status and the level observed by the caller so overlapping
// sweeps cannot double-escalate.
func (d *DB) EscalateAlert(ctx context.Context, id string, fromLevel, toLevel int, priority models.Priority, at time.Time) (bool, error) {
	query := `
	UPDATE alerts
	SET escalation_level = $3, priority = $4, last_escalated_at = $5, updated_at = $5
	WHERE id = $1 AND status = 'active' AND escalation_level = $2`
	tag, err := d.Pool.Exec(ctx, query, id, fromLevel, toLevel, priority, at)
	if err != nil {
		return false, fmt.Errorf("failed to escalate alert %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// AppendResponse inserts a response only while the alert is still active.
// Returns false when the alert went terminal between the caller's read and the
// insert. FOR UPDATE takes the alert's row lock, so a resolve or cancel
// committing concurrently cannot slip between the status check and the insert.
func (d *DB) AppendResponse(ctx context.Context, r *models.Response) (bool, error) {
	query := `
	INSERT INTO alert_responses (id, alert_id, responder_id, text, response_type, estimated_arrival, responded_at)
	SELECT $1, $2, $3, $4, $5, $6, $7
	FROM alerts WHERE id = $2 AND status = 'active'
	FOR UPDATE`
	tag, err := d.Pool.Exec(ctx, query, r.ID, r.AlertID, r.ResponderID, r.Text, r.Type, r.EstimatedArrival, r.RespondedAt)
	if err != nil {
		return false, fmt.Errorf("failed to append response to alert %s: %w", r.AlertID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountResponses returns the number of responses recorded for an alert.
func (d *DB) CountResponses(ctx context.Context, alertID string) (int, error) {
	var n int
	err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM alert_responses WHERE alert_id = $1`, alertID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count responses for alert %s: %w", alertID, err)
	}
	return n, nil
}

// OverdueAlerts returns active non-test alerts created before overdueBefore
// that have no responses, are below the escalation cap, and were not already
// escalated since notEscalatedSince.
func (d *DB) OverdueAlerts(ctx context.Context, overdueBefore, notEscalatedSince time.Time) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts a
	WHERE status = 'active'
	  AND is_test_alert = FALSE
	  AND created_at < $1
	  AND escalation_level < $2
	  AND (last_escalated_at IS NULL OR last_escalated_at < $3)
	  AND NOT EXISTS (SELECT 1 FROM alert_responses r WHERE r.alert_id = a.id)
	ORDER BY created_at`
	rows, err := d.Pool.Query(ctx, query, overdueBefore, models.MaxEscalationLevel, notEscalatedSince)
	if err != nil {
		return nil, fmt.Errorf("failed to get overdue alerts: %w", err)
	}
	defer rows.Close()

	var list []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan overdue alert: %w", err)
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// StaleActiveAlerts returns every non-test alert still active past the
// auto-resolve ceiling, regardless of escalation or response state.
func (d *DB) StaleActiveAlerts(ctx context.Context, cutoff time.Time) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
	WHERE status = 'active' AND is_test_alert = FALSE AND created_at < $1
	ORDER BY created_at`
	rows, err := d.Pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get stale alerts: %w", err)
	}
	defer rows.Close()

	var list []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale alert: %w", err)
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// Stats aggregates an originator's non-test alerts since the given time.
func (d *DB) Stats(ctx context.Context, originatorID int64, since time.Time) (models.AlertStats, error) {
	var s models.AlertStats
	query := `
	SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE status = 'active'),
		COUNT(*) FILTER (WHERE status = 'resolved'),
		COUNT(*) FILTER (WHERE status = 'cancelled'),
		COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 60) FILTER (WHERE status = 'resolved'), 0)
	FROM alerts
	WHERE originator_id = $1 AND created_at >= $2 AND is_test_alert = FALSE`
	err := d.Pool.QueryRow(ctx, query, originatorID, since).Scan(
		&s.TotalAlerts, &s.ActiveAlerts, &s.ResolvedAlerts, &s.CancelledAlerts, &s.AvgResolveMinutes,
	)
	if err != nil {
		return s, fmt.Errorf("failed to get alert stats for user %d: %w", originatorID, err)
	}
	if s.TotalAlerts > 0 {
		s.ResponseRate = float64(s.ResolvedAlerts) / float64(s.TotalAlerts)
	}
	return s, nil
}
