package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("record not found")

type DB struct {
	Pool *pgxpool.Pool
}

func New(dsn string) (*DB, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

// Migrate bootstraps the schema. Statements are idempotent so startup can run
// this unconditionally.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			originator_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			address TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			priority TEXT NOT NULL,
			escalation_level INT NOT NULL DEFAULT 0,
			last_escalated_at TIMESTAMPTZ,
			resolved_at TIMESTAMPTZ,
			resolved_by BIGINT,
			resolution_note TEXT NOT NULL DEFAULT '',
			is_test_alert BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_originator ON alerts (originator_id, status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status_created ON alerts (status, created_at)`,
		`CREATE TABLE IF NOT EXISTS alert_responses (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL REFERENCES alerts(id),
			responder_id BIGINT NOT NULL,
			text TEXT NOT NULL,
			response_type TEXT NOT NULL DEFAULT 'text',
			estimated_arrival TIMESTAMPTZ,
			responded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_alert ON alert_responses (alert_id, responded_at)`,
		`CREATE TABLE IF NOT EXISTS alert_notified_contacts (
			alert_id TEXT NOT NULL REFERENCES alerts(id),
			contact_id BIGINT NOT NULL,
			round INT NOT NULL,
			method TEXT NOT NULL DEFAULT 'push',
			notified_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (alert_id, contact_id, round)
		)`,
		`CREATE TABLE IF NOT EXISTS trust_circle_members (
			owner_id BIGINT NOT NULL,
			member_id BIGINT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			relationship TEXT NOT NULL DEFAULT 'other',
			is_emergency_contact BOOLEAN NOT NULL DEFAULT TRUE,
			preferred_method TEXT NOT NULL DEFAULT 'push',
			telegram_chat_id BIGINT NOT NULL DEFAULT 0,
			added_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner_id, member_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_circle_member ON trust_circle_members (member_id) WHERE is_emergency_contact`,
		`CREATE TABLE IF NOT EXISTS notification_records (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL REFERENCES alerts(id),
			contact_id BIGINT NOT NULL,
			round INT NOT NULL,
			method TEXT NOT NULL DEFAULT 'push',
			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			sent_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_records_alert ON notification_records (alert_id, round)`,
	}

	for _, stmt := range stmts {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}
