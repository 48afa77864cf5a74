package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"emergency-service/internal/logging"
	"emergency-service/internal/models"
)

// Channel is the external delivery capability. Transport retries and backoff
// are the channel's own business; a failure here is recorded, not retried
// within the round.
type Channel interface {
	Deliver(ctx context.Context, contact models.ContactRef, message string, urgency models.Priority) error
}

// Store is the slice of the alert store the dispatcher needs.
type Store interface {
	ReserveNotifiedContact(ctx context.Context, alertID string, contactID int64, round int, method string, at time.Time) (bool, error)
	CreateNotificationRecord(ctx context.Context, n *models.NotificationRecord) error
	UpdateNotificationRecordStatus(ctx context.Context, id, status, lastError string, sentAt time.Time) error
}

// Outcome is the per-contact result of one fan-out round.
type Outcome struct {
	ContactID int64  `json:"contact_id"`
	Method    string `json:"method"`
	Attempted bool   `json:"attempted"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Attempted counts the outcomes where a delivery attempt was actually made.
func Attempted(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Attempted {
			n++
		}
	}
	return n
}

// Dispatcher fans one alert out to a contact set, at most one attempt per
// contact per round.
type Dispatcher struct {
	store       Store
	channels    map[string]Channel
	sendTimeout time.Duration
	logger      *logging.Logger
	now         func() time.Time
}

func New(store Store, channels map[string]Channel, sendTimeout time.Duration, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		channels:    channels,
		sendTimeout: sendTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// FanOut delivers the alert to every contact concurrently and returns once
// each one has an outcome. Test alerts never reach a channel. The store
// reservation makes the round exactly-once per contact even when FanOut is
// invoked twice concurrently for the same round.
func (d *Dispatcher) FanOut(ctx context.Context, alert *models.Alert, contacts []models.ContactRef, round int) []Outcome {
	if alert.IsTestAlert {
		d.logger.Infof("Test alert %s: skipping fan-out to %d contacts", alert.ID, len(contacts))
		return nil
	}

	outcomes := make([]Outcome, len(contacts))
	var wg sync.WaitGroup
	for i, c := range contacts {
		wg.Add(1)
		go func(i int, c models.ContactRef) {
			defer wg.Done()
			outcomes[i] = d.notifyOne(ctx, alert, c, round)
		}(i, c)
	}
	wg.Wait()

	d.logger.Infof("Alert %s round %d: %d/%d contacts notified", alert.ID, round, Attempted(outcomes), len(contacts))
	return outcomes
}

func (d *Dispatcher) notifyOne(ctx context.Context, alert *models.Alert, contact models.ContactRef, round int) Outcome {
	method := contact.Method
	if _, ok := d.channels[method]; !ok {
		method = models.MethodPush
	}
	out := Outcome{ContactID: contact.UserID, Method: method}

	// Claim the (contact, round) slot before sending. The entry is written for
	// attempted sends, not just successes, so a channel outage cannot turn into
	// a retry storm within the round.
	reserved, err := d.store.ReserveNotifiedContact(ctx, alert.ID, contact.UserID, round, method, d.now())
	if err != nil {
		out.Error = err.Error()
		d.logger.Errorf("Reserve contact %d for alert %s round %d failed: %v", contact.UserID, alert.ID, round, err)
		return out
	}
	if !reserved {
		d.logger.Debugf("Contact %d already notified for alert %s round %d", contact.UserID, alert.ID, round)
		return out
	}
	out.Attempted = true

	rec := &models.NotificationRecord{
		ID:        uuid.New().String(),
		AlertID:   alert.ID,
		ContactID: contact.UserID,
		Round:     round,
		Method:    method,
		Status:    models.DeliveryPending,
		CreatedAt: d.now(),
	}
	if err := d.store.CreateNotificationRecord(ctx, rec); err != nil {
		d.logger.Errorf("Create notification record for alert %s failed: %v", alert.ID, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	status := models.DeliverySent
	errText := ""
	if err := d.channels[method].Deliver(sendCtx, contact, Message(alert), alert.Priority); err != nil {
		status = models.DeliveryFailed
		errText = err.Error()
		out.Error = errText
		d.logger.Errorf("Deliver to contact %d via %s for alert %s failed: %v", contact.UserID, method, alert.ID, err)
	} else {
		out.Delivered = true
	}

	if err := d.store.UpdateNotificationRecordStatus(ctx, rec.ID, status, errText, d.now()); err != nil {
		d.logger.Errorf("Update notification record %s failed: %v", rec.ID, err)
	}
	return out
}

// Message composes the notification text for an alert.
func Message(alert *models.Alert) string {
	var b strings.Builder
	switch alert.Kind {
	case models.KindNotFeelingWell:
		b.WriteString("Emergency: a member of your trust circle is not feeling well.")
	case models.KindNeedHelp:
		b.WriteString("Emergency: a member of your trust circle needs help.")
	default:
		b.WriteString("A member of your trust circle wants to talk.")
	}
	if alert.Message != "" {
		fmt.Fprintf(&b, "\n%q", alert.Message)
	}
	if alert.Location.Address != "" {
		fmt.Fprintf(&b, "\nLocation: %s", alert.Location.Address)
		if alert.Location.City != "" {
			fmt.Fprintf(&b, ", %s", alert.Location.City)
		}
	}
	if alert.EscalationLevel > 0 {
		fmt.Fprintf(&b, "\nStill unanswered, escalation level %d. Priority: %s.", alert.EscalationLevel, alert.Priority)
	}
	return b.String()
}
