package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"emergency-service/internal/circle"
	"emergency-service/internal/db"
	"emergency-service/internal/dispatch"
	"emergency-service/internal/events"
	"emergency-service/internal/logging"
	"emergency-service/internal/models"
)

// Store is the durable alert store the service mutates. All mutating calls are
// conditional on the alert still being active, which is what serializes
// concurrent operations on one alert.
type Store interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, originatorIDs []int64, status string, limit, offset int) ([]models.Alert, error)
	UpdateStatusIfActive(ctx context.Context, id string, status models.AlertStatus, resolvedBy *int64, note string, at time.Time) (bool, error)
	AppendResponse(ctx context.Context, r *models.Response) (bool, error)
	CountResponses(ctx context.Context, alertID string) (int, error)
	NotificationRecordsForAlert(ctx context.Context, alertID string) ([]models.NotificationRecord, error)
	Stats(ctx context.Context, originatorID int64, since time.Time) (models.AlertStats, error)
}

// Gate is the admission control on alert creation.
type Gate interface {
	Allow(ctx context.Context, originatorID int64) error
}

// Dispatcher fans an alert out to a contact set for one round.
type Dispatcher interface {
	FanOut(ctx context.Context, alert *models.Alert, contacts []models.ContactRef, round int) []dispatch.Outcome
}

// Rewards credits a responder. Best-effort side effect.
type Rewards interface {
	Award(ctx context.Context, userID int64, reason string, amount int) error
}

// Notifier delivers a courtesy message to a user. Best-effort side effect.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, message string) error
}

// Events receives lifecycle events. Implementations must not block or fail the
// calling operation.
type Events interface {
	Publish(ctx context.Context, evt events.Event)
}

// fanOutBudget bounds the creation fan-out as a whole; per-send timeouts are
// the dispatcher's concern.
const fanOutBudget = time.Minute

// Service owns the alert lifecycle: creation through the gate, the
// active→resolved/cancelled state machine, response recording, and the
// side effects around them.
type Service struct {
	store      Store
	circle     circle.Resolver
	gate       Gate
	dispatcher Dispatcher
	rewards    Rewards
	notifier   Notifier
	events     Events
	logger     *logging.Logger
	now        func() time.Time
}

func NewService(store Store, resolver circle.Resolver, gate Gate, dispatcher Dispatcher,
	rewards Rewards, notifier Notifier, ev Events, logger *logging.Logger) *Service {
	return &Service{
		store:      store,
		circle:     resolver,
		gate:       gate,
		dispatcher: dispatcher,
		rewards:    rewards,
		notifier:   notifier,
		events:     ev,
		logger:     logger,
		now:        time.Now,
	}
}

// Create admits, persists, and fans out a new alert. Returns the alert and how
// many contacts got a delivery attempt. When the trust circle has no eligible
// members the alert is still created and ErrNoEmergencyContacts is returned
// alongside it so the caller can tell the originator nobody was notified.
func (s *Service) Create(ctx context.Context, originatorID int64, kind models.AlertKind, message string, loc models.Location) (*models.Alert, int, error) {
	if !kind.Valid() {
		return nil, 0, ErrInvalidKind
	}
	if err := s.gate.Allow(ctx, originatorID); err != nil {
		return nil, 0, err
	}

	contacts, err := s.circle.EmergencyContacts(ctx, originatorID)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve emergency contacts: %w", err)
	}

	now := s.now()
	alert := &models.Alert{
		ID:           uuid.New().String(),
		OriginatorID: originatorID,
		Kind:         kind,
		Message:      truncate(strings.TrimSpace(message), models.MaxAlertMessageLen),
		Location:     loc,
		Status:       models.StatusActive,
		Priority:     kind.InitialPriority(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAlert(ctx, alert); err != nil {
		return nil, 0, fmt.Errorf("create alert: %w", err)
	}

	s.events.Publish(ctx, s.event(events.TypeCreated, alert, originatorID))
	s.logger.Infof("Alert %s created by user %d (kind=%s priority=%s contacts=%d)",
		alert.ID, originatorID, kind, alert.Priority, len(contacts))

	if len(contacts) == 0 {
		return alert, 0, ErrNoEmergencyContacts
	}

	// The fan-out must survive the originator's request context: a client
	// dropping right after the insert would otherwise fail every round-0 send
	// while the reservations stay claimed until the first escalation.
	fanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fanOutBudget)
	defer cancel()
	outcomes := s.dispatcher.FanOut(fanCtx, alert, contacts, 0)
	return alert, dispatch.Attempted(outcomes), nil
}

// CreateTest creates a test alert. It follows the normal lifecycle but never
// fans out and is excluded from circle listings and sweeps.
func (s *Service) CreateTest(ctx context.Context, originatorID int64) (*models.Alert, error) {
	now := s.now()
	alert := &models.Alert{
		ID:           uuid.New().String(),
		OriginatorID: originatorID,
		Kind:         models.KindWantToTalk,
		Message:      "This is a test alert to check the emergency system",
		Status:       models.StatusActive,
		Priority:     models.PriorityLow,
		IsTestAlert:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("create test alert: %w", err)
	}
	s.logger.Infof("Test alert %s created by user %d", alert.ID, originatorID)
	return alert, nil
}

// Get returns one alert after checking the viewer is the originator or a
// current emergency contact of the originator.
func (s *Service) Get(ctx context.Context, alertID string, viewerID int64) (*models.Alert, error) {
	alert, err := s.getAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.OriginatorID != viewerID {
		contacts, err := s.circle.EmergencyContacts(ctx, alert.OriginatorID)
		if err != nil {
			return nil, fmt.Errorf("resolve emergency contacts: %w", err)
		}
		if !circle.Contains(contacts, viewerID) {
			return nil, ErrNotTrustCircleMember
		}
	}
	return alert, nil
}

// ListForCircle returns alerts visible to the viewer: their own plus alerts
// from originators whose trust circles list the viewer as an emergency
// contact. Visibility follows the originator's circle, not the viewer's.
func (s *Service) ListForCircle(ctx context.Context, viewerID int64, status string, limit, offset int) ([]models.Alert, error) {
	owners, err := s.circle.CirclesContaining(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("resolve circles for user %d: %w", viewerID, err)
	}
	originators := append(owners, viewerID)
	return s.store.ListAlerts(ctx, originators, status, limit, offset)
}

// ListMine returns the user's own non-test alerts.
func (s *Service) ListMine(ctx context.Context, userID int64, status string, limit, offset int) ([]models.Alert, error) {
	return s.store.ListAlerts(ctx, []int64{userID}, status, limit, offset)
}

// RecordResponse appends a trusted-contact response and returns the new
// response count. Membership is re-checked against the resolver at call time,
// not against the notified-contact snapshot. The reward and originator
// notification are best-effort: their failure never unwinds the response.
func (s *Service) RecordResponse(ctx context.Context, alertID string, responderID int64, text, responseType string, eta *time.Time) (int, error) {
	if responseType == "" {
		responseType = models.ResponseTypeText
	}
	if !models.ValidResponseType(responseType) {
		return 0, ErrInvalidResponseType
	}

	alert, err := s.getAlert(ctx, alertID)
	if err != nil {
		return 0, err
	}
	if alert.Status != models.StatusActive {
		return 0, ErrInvalidTransition
	}
	if responderID == alert.OriginatorID {
		return 0, ErrSelfResponse
	}

	contacts, err := s.circle.EmergencyContacts(ctx, alert.OriginatorID)
	if err != nil {
		return 0, fmt.Errorf("resolve emergency contacts: %w", err)
	}
	if !circle.Contains(contacts, responderID) {
		return 0, ErrNotTrustCircleMember
	}

	resp := &models.Response{
		ID:               uuid.New().String(),
		AlertID:          alertID,
		ResponderID:      responderID,
		Text:             truncate(strings.TrimSpace(text), models.MaxResponseTextLen),
		Type:             responseType,
		EstimatedArrival: eta,
		RespondedAt:      s.now(),
	}
	ok, err := s.store.AppendResponse(ctx, resp)
	if err != nil {
		return 0, fmt.Errorf("append response: %w", err)
	}
	if !ok {
		// The alert went terminal between the read above and the insert.
		return 0, ErrInvalidTransition
	}

	if err := s.rewards.Award(ctx, responderID, "emergency_helped", models.ResponderRewardScore); err != nil {
		s.logger.Errorf("Award points to responder %d for alert %s failed: %v", responderID, alertID, err)
	}
	if err := s.notifier.NotifyUser(ctx, alert.OriginatorID, responseMessage(resp.Text)); err != nil {
		s.logger.Errorf("Notify originator %d of response to alert %s failed: %v", alert.OriginatorID, alertID, err)
	}
	s.events.Publish(ctx, s.event(events.TypeResponseAdded, alert, responderID))

	count, err := s.store.CountResponses(ctx, alertID)
	if err != nil {
		s.logger.Errorf("Count responses for alert %s failed: %v", alertID, err)
		count = alert.ResponseCount() + 1
	}
	s.logger.Infof("Response recorded on alert %s by user %d (count=%d)", alertID, responderID, count)
	return count, nil
}

// Resolve closes an alert at the originator's request.
func (s *Service) Resolve(ctx context.Context, alertID string, requesterID int64, note string) error {
	return s.finish(ctx, alertID, requesterID, models.StatusResolved, strings.TrimSpace(note), events.TypeResolved)
}

// Cancel withdraws an alert. Same authorization and transition rules as
// Resolve, different terminal state.
func (s *Service) Cancel(ctx context.Context, alertID string, requesterID int64) error {
	return s.finish(ctx, alertID, requesterID, models.StatusCancelled, "", events.TypeCancelled)
}

func (s *Service) finish(ctx context.Context, alertID string, requesterID int64, status models.AlertStatus, note, eventType string) error {
	alert, err := s.getAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.OriginatorID != requesterID {
		return ErrNotOriginator
	}

	ok, err := s.store.UpdateStatusIfActive(ctx, alertID, status, &requesterID, note, s.now())
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if !ok {
		return ErrInvalidTransition
	}

	alert.Status = status
	s.events.Publish(ctx, s.event(eventType, alert, requesterID))
	s.logger.Infof("Alert %s %s by user %d", alertID, status, requesterID)
	return nil
}

// AutoResolve closes a stale alert on behalf of the escalation sweep.
// Idempotent: an alert already terminal is a no-op, not an error.
func (s *Service) AutoResolve(ctx context.Context, alertID string) error {
	alert, err := s.getAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.Status != models.StatusActive {
		return nil
	}
	if alert.IsTestAlert {
		// The sweep never touches test alerts; they stay open until the
		// originator closes them.
		return nil
	}

	ok, err := s.store.UpdateStatusIfActive(ctx, alertID, models.StatusResolved, nil, models.AutoResolveNote, s.now())
	if err != nil {
		return fmt.Errorf("auto-resolve alert: %w", err)
	}
	if !ok {
		// Lost the race to a concurrent resolve/cancel; that is fine.
		return nil
	}

	alert.Status = models.StatusResolved
	alert.ResolutionNote = models.AutoResolveNote
	s.events.Publish(ctx, s.event(events.TypeAutoResolved, alert, 0))
	s.logger.Infof("Alert %s auto-resolved after ceiling", alertID)
	return nil
}

// Deliveries returns the per-contact delivery attempts for an alert. Only the
// originator may see who was reached and how.
func (s *Service) Deliveries(ctx context.Context, alertID string, viewerID int64) ([]models.NotificationRecord, error) {
	alert, err := s.getAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.OriginatorID != viewerID {
		return nil, ErrNotOriginator
	}
	return s.store.NotificationRecordsForAlert(ctx, alertID)
}

// Stats aggregates the user's alerts over a trailing number of days.
func (s *Service) Stats(ctx context.Context, userID int64, days int) (models.AlertStats, error) {
	if days <= 0 {
		days = 30
	}
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	return s.store.Stats(ctx, userID, since)
}

func (s *Service) getAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("get alert %s: %w", alertID, err)
	}
	return alert, nil
}

func (s *Service) event(eventType string, alert *models.Alert, actorID int64) events.Event {
	return events.Event{
		Type:            eventType,
		AlertID:         alert.ID,
		OriginatorID:    alert.OriginatorID,
		ActorID:         actorID,
		Kind:            string(alert.Kind),
		Priority:        string(alert.Priority),
		Status:          string(alert.Status),
		EscalationLevel: alert.EscalationLevel,
		Note:            alert.ResolutionNote,
		At:              s.now(),
	}
}

func responseMessage(text string) string {
	if len(text) > 50 {
		text = text[:50] + "..."
	}
	return fmt.Sprintf("Someone responded to your emergency alert: %q", text)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
