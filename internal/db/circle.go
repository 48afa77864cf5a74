package db

import (
	"context"
	"fmt"

	"emergency-service/internal/models"
)

// EmergencyContacts returns the owner's trust-circle members flagged as
// emergency contacts, in the order they were added. Membership is read fresh on
// every call; this engine never writes the table.
func (d *DB) EmergencyContacts(ctx context.Context, ownerID int64) ([]models.ContactRef, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT member_id, name, phone, relationship, preferred_method, telegram_chat_id
	FROM trust_circle_members
	WHERE owner_id = $1 AND is_emergency_contact
	ORDER BY added_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get emergency contacts for user %d: %w", ownerID, err)
	}
	defer rows.Close()

	var contacts []models.ContactRef
	for rows.Next() {
		var c models.ContactRef
		if err := rows.Scan(&c.UserID, &c.Name, &c.Phone, &c.Relationship, &c.Method, &c.TelegramChatID); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// CirclesContaining returns the owners whose trust circles list memberID as an
// emergency contact. Used to decide which alerts a viewer may see.
func (d *DB) CirclesContaining(ctx context.Context, memberID int64) ([]int64, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT owner_id FROM trust_circle_members
	WHERE member_id = $1 AND is_emergency_contact`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get circles containing user %d: %w", memberID, err)
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan circle owner: %w", err)
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}
