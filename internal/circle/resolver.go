package circle

import (
	"context"

	"emergency-service/internal/db"
	"emergency-service/internal/models"
)

// Resolver answers who is eligible to receive a user's emergency
// notifications. Implementations must reflect current membership at call time:
// the escalation sweep re-resolves every round, so results are never cached.
type Resolver interface {
	// EmergencyContacts returns the ordered eligible contacts for an
	// originator. An empty slice (not an error) means nobody to notify.
	EmergencyContacts(ctx context.Context, originatorID int64) ([]models.ContactRef, error)

	// CirclesContaining returns the originators whose circles list userID as
	// an emergency contact.
	CirclesContaining(ctx context.Context, userID int64) ([]int64, error)
}

// DBResolver reads membership straight from the store on every call.
type DBResolver struct {
	DB *db.DB
}

func NewDBResolver(d *db.DB) *DBResolver {
	return &DBResolver{DB: d}
}

func (r *DBResolver) EmergencyContacts(ctx context.Context, originatorID int64) ([]models.ContactRef, error) {
	return r.DB.EmergencyContacts(ctx, originatorID)
}

func (r *DBResolver) CirclesContaining(ctx context.Context, userID int64) ([]int64, error) {
	return r.DB.CirclesContaining(ctx, userID)
}

// Contains reports whether userID appears in the resolved contact set.
func Contains(contacts []models.ContactRef, userID int64) bool {
	for _, c := range contacts {
		if c.UserID == userID {
			return true
		}
	}
	return false
}
