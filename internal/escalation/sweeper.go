package escalation

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"emergency-service/internal/circle"
	"emergency-service/internal/dispatch"
	"emergency-service/internal/events"
	"emergency-service/internal/logging"
	"emergency-service/internal/models"
)

// Store is the slice of the alert store the sweep needs.
type Store interface {
	OverdueAlerts(ctx context.Context, overdueBefore, notEscalatedSince time.Time) ([]models.Alert, error)
	StaleActiveAlerts(ctx context.Context, cutoff time.Time) ([]models.Alert, error)
	EscalateAlert(ctx context.Context, id string, fromLevel, toLevel int, priority models.Priority, at time.Time) (bool, error)
}

// Dispatcher fans an escalated alert out for its new round.
type Dispatcher interface {
	FanOut(ctx context.Context, alert *models.Alert, contacts []models.ContactRef, round int) []dispatch.Outcome
}

// Resolver closes stale alerts on the sweep's behalf.
type Resolver interface {
	AutoResolve(ctx context.Context, alertID string) error
}

// Events receives escalation events.
type Events interface {
	Publish(ctx context.Context, evt events.Event)
}

// Config controls the sweep's time thresholds.
type Config struct {
	// Schedule is a cron spec, e.g. "@every 1m".
	Schedule string
	// OverdueAfter is how long an unanswered alert waits before escalation.
	OverdueAfter time.Duration
	// EscalationEvery is the minimum gap between two escalations of one alert.
	EscalationEvery time.Duration
	// AutoResolveAfter is the ceiling past which active alerts are closed.
	AutoResolveAfter time.Duration
}

// Sweeper periodically escalates unanswered alerts and auto-resolves stale
// ones. It holds no state of its own: every mutation is a conditional store
// update, so overlapping sweeps are no-ops rather than double escalations.
type Sweeper struct {
	store      Store
	circle     circle.Resolver
	dispatcher Dispatcher
	resolver   Resolver
	events     Events
	cfg        Config
	logger     *logging.Logger
	cron       *cron.Cron
	now        func() time.Time
}

func NewSweeper(store Store, resolver circle.Resolver, dispatcher Dispatcher, alertResolver Resolver,
	ev Events, cfg Config, logger *logging.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		circle:     resolver,
		dispatcher: dispatcher,
		resolver:   alertResolver,
		events:     ev,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Start registers the sweep on its cron schedule and begins ticking.
func (s *Sweeper) Start() error {
	s.cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Infof("Escalation sweep scheduled (%s)", s.cfg.Schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep runs one pass: escalate overdue alerts, then auto-resolve anything
// active past the ceiling. Failures on one alert are logged and never abort
// the pass for the others.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	overdue, err := s.store.OverdueAlerts(ctx, now.Add(-s.cfg.OverdueAfter), now.Add(-s.cfg.EscalationEvery))
	if err != nil {
		s.logger.Errorf("Overdue scan failed: %v", err)
	} else {
		for i := range overdue {
			if err := s.escalate(ctx, &overdue[i]); err != nil {
				s.logger.Errorf("Escalate alert %s failed: %v", overdue[i].ID, err)
			}
		}
	}

	stale, err := s.store.StaleActiveAlerts(ctx, now.Add(-s.cfg.AutoResolveAfter))
	if err != nil {
		s.logger.Errorf("Stale scan failed: %v", err)
		return
	}
	for _, a := range stale {
		if err := s.resolver.AutoResolve(ctx, a.ID); err != nil {
			s.logger.Errorf("Auto-resolve alert %s failed: %v", a.ID, err)
		}
	}
}

// escalate raises one alert a level and re-notifies its circle as a new
// round. Priority only moves when the current value matches the ladder's
// expectation for the new level, so a manual override is never stepped on.
func (s *Sweeper) escalate(ctx context.Context, alert *models.Alert) error {
	if alert.EscalationLevel >= models.MaxEscalationLevel {
		return nil
	}
	newLevel := alert.EscalationLevel + 1

	newPriority := alert.Priority
	if alert.Priority == models.ExpectedPriorityBeforeLevel(newLevel) {
		newPriority = models.NextPriority(alert.Priority)
	}

	now := s.now()
	ok, err := s.store.EscalateAlert(ctx, alert.ID, alert.EscalationLevel, newLevel, newPriority, now)
	if err != nil {
		return err
	}
	if !ok {
		// Another sweep got there first, or the alert went terminal.
		return nil
	}

	alert.EscalationLevel = newLevel
	alert.Priority = newPriority
	alert.LastEscalatedAt = &now

	// Membership is re-resolved fresh each round; the circle may have changed
	// since the previous fan-out.
	contacts, err := s.circle.EmergencyContacts(ctx, alert.OriginatorID)
	if err != nil {
		return err
	}
	s.dispatcher.FanOut(ctx, alert, contacts, newLevel)

	s.events.Publish(ctx, events.Event{
		Type:            events.TypeEscalated,
		AlertID:         alert.ID,
		OriginatorID:    alert.OriginatorID,
		Kind:            string(alert.Kind),
		Priority:        string(alert.Priority),
		Status:          string(alert.Status),
		EscalationLevel: newLevel,
		At:              now,
	})
	s.logger.Infof("Alert %s escalated to level %d (priority=%s, %d contacts)",
		alert.ID, newLevel, newPriority, len(contacts))
	return nil
}
