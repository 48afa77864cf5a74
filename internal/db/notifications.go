package db

import (
	"context"
	"fmt"
	"time"

	"emergency-service/internal/models"
)

// ReserveNotifiedContact claims the (alert, contact, round) slot. The unique
// key plus ON CONFLICT DO NOTHING makes the claim atomic: exactly one caller
// wins per round, and a terminal alert accepts no new entries.
func (d *DB) ReserveNotifiedContact(ctx context.Context, alertID string, contactID int64, round int, method string, at time.Time) (bool, error) {
	query := `
	INSERT INTO alert_notified_contacts (alert_id, contact_id, round, method, notified_at)
	SELECT $1, $2, $3, $4, $5
	WHERE EXISTS (SELECT 1 FROM alerts WHERE id = $1 AND status = 'active')
	ON CONFLICT (alert_id, contact_id, round) DO NOTHING`
	tag, err := d.Pool.Exec(ctx, query, alertID, contactID, round, method, at)
	if err != nil {
		return false, fmt.Errorf("failed to reserve notified contact %d for alert %s: %w", contactID, alertID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateNotificationRecord inserts a delivery record in pending state.
func (d *DB) CreateNotificationRecord(ctx context.Context, n *models.NotificationRecord) error {
	query := `
	INSERT INTO notification_records (id, alert_id, contact_id, round, method, status, last_error, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := d.Pool.Exec(ctx, query, n.ID, n.AlertID, n.ContactID, n.Round, n.Method, n.Status, n.LastError, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification record: %w", err)
	}
	return nil
}

// UpdateNotificationRecordStatus finalizes a delivery record after the send
// attempt.
func (d *DB) UpdateNotificationRecordStatus(ctx context.Context, id, status, lastError string, sentAt time.Time) error {
	query := `
	UPDATE notification_records
	SET status = $2, last_error = $3,
	    sent_at = CASE WHEN $2 = 'sent' THEN $4 ELSE sent_at END
	WHERE id = $1`
	tag, err := d.Pool.Exec(ctx, query, id, status, lastError, sentAt)
	if err != nil {
		return fmt.Errorf("failed to update notification record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no notification record updated for id %s", id)
	}
	return nil
}

// NotificationRecordsForAlert returns all delivery records for an alert,
// oldest round first.
func (d *DB) NotificationRecordsForAlert(ctx context.Context, alertID string) ([]models.NotificationRecord, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT id, alert_id, contact_id, round, method, status, last_error, created_at, sent_at
	FROM notification_records
	WHERE alert_id = $1
	ORDER BY round, created_at`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification records for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var list []models.NotificationRecord
	for rows.Next() {
		var n models.NotificationRecord
		if err := rows.Scan(&n.ID, &n.AlertID, &n.ContactID, &n.Round, &n.Method, &n.Status, &n.LastError, &n.CreatedAt, &n.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification record: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}
