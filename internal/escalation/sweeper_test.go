package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergency-service/internal/dispatch"
	"emergency-service/internal/events"
	"emergency-service/internal/logging"
	"emergency-service/internal/models"
)

type sweepStore struct {
	mu      sync.Mutex
	overdue []models.Alert
	stale   []models.Alert

	escalations  []escalationCall
	escalateOK   bool
	escalateErrs map[string]error
}

type escalationCall struct {
	alertID   string
	fromLevel int
	toLevel   int
	priority  models.Priority
}

func newSweepStore() *sweepStore {
	return &sweepStore{escalateOK: true, escalateErrs: make(map[string]error)}
}

func (s *sweepStore) OverdueAlerts(_ context.Context, _, _ time.Time) ([]models.Alert, error) {
	return s.overdue, nil
}

func (s *sweepStore) StaleActiveAlerts(_ context.Context, _ time.Time) ([]models.Alert, error) {
	return s.stale, nil
}

func (s *sweepStore) EscalateAlert(_ context.Context, id string, fromLevel, toLevel int, priority models.Priority, _ time.Time) (bool, error) {
	if err := s.escalateErrs[id]; err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.escalateOK {
		return false, nil
	}
	s.escalations = append(s.escalations, escalationCall{id, fromLevel, toLevel, priority})
	return true, nil
}

type sweepResolver struct {
	contacts map[int64][]models.ContactRef
}

func (r *sweepResolver) EmergencyContacts(_ context.Context, originatorID int64) ([]models.ContactRef, error) {
	return r.contacts[originatorID], nil
}

func (r *sweepResolver) CirclesContaining(context.Context, int64) ([]int64, error) {
	return nil, nil
}

type sweepDispatcher struct {
	mu     sync.Mutex
	rounds []int
	counts []int
}

func (d *sweepDispatcher) FanOut(_ context.Context, _ *models.Alert, contacts []models.ContactRef, round int) []dispatch.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rounds = append(d.rounds, round)
	d.counts = append(d.counts, len(contacts))
	return nil
}

type autoResolver struct {
	mu       sync.Mutex
	resolved []string
	err      error
}

func (r *autoResolver) AutoResolve(_ context.Context, alertID string) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, alertID)
	return nil
}

type sweepEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *sweepEvents) Publish(_ context.Context, evt events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func newTestSweeper(store *sweepStore, resolver *sweepResolver, d *sweepDispatcher, ar *autoResolver, ev *sweepEvents) *Sweeper {
	cfg := Config{
		Schedule:         "@every 1m",
		OverdueAfter:     30 * time.Minute,
		EscalationEvery:  30 * time.Minute,
		AutoResolveAfter: 24 * time.Hour,
	}
	logger := logging.New(logging.Config{Level: "error"})
	return NewSweeper(store, resolver, d, ar, ev, cfg, logger)
}

func overdueAlert(id string, level int, priority models.Priority) models.Alert {
	return models.Alert{
		ID:              id,
		OriginatorID:    1,
		Kind:            models.KindNeedHelp,
		Status:          models.StatusActive,
		Priority:        priority,
		EscalationLevel: level,
		CreatedAt:       time.Now().Add(-time.Hour),
	}
}

func TestSweepEscalatesOverdueAlert(t *testing.T) {
	store := newSweepStore()
	store.overdue = []models.Alert{overdueAlert("a1", 0, models.PriorityMedium)}
	resolver := &sweepResolver{contacts: map[int64][]models.ContactRef{
		1: {{UserID: 2}, {UserID: 3}},
	}}
	d := &sweepDispatcher{}
	ar := &autoResolver{}
	ev := &sweepEvents{}

	newTestSweeper(store, resolver, d, ar, ev).Sweep(context.Background())

	require.Len(t, store.escalations, 1)
	assert.Equal(t, escalationCall{"a1", 0, 1, models.PriorityMedium}, store.escalations[0])
	assert.Equal(t, []int{1}, d.rounds)
	assert.Equal(t, []int{2}, d.counts)
	require.Len(t, ev.events, 1)
	assert.Equal(t, events.TypeEscalated, ev.events[0].Type)
	assert.Equal(t, 1, ev.events[0].EscalationLevel)
}

func TestEscalationLadderBumpsMatchingPriority(t *testing.T) {
	cases := []struct {
		name     string
		level    int
		priority models.Priority
		want     models.Priority
	}{
		{"low bumps to medium at level 1", 0, models.PriorityLow, models.PriorityMedium},
		{"medium stays at level 1", 0, models.PriorityMedium, models.PriorityMedium},
		{"high stays at level 1", 0, models.PriorityHigh, models.PriorityHigh},
		{"medium bumps to high at level 2", 1, models.PriorityMedium, models.PriorityHigh},
		{"high bumps to critical at level 3", 2, models.PriorityHigh, models.PriorityCritical},
		{"critical stays at level 3", 2, models.PriorityCritical, models.PriorityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newSweepStore()
			store.overdue = []models.Alert{overdueAlert("a1", tc.level, tc.priority)}
			resolver := &sweepResolver{contacts: map[int64][]models.ContactRef{1: {{UserID: 2}}}}

			newTestSweeper(store, resolver, &sweepDispatcher{}, &autoResolver{}, &sweepEvents{}).Sweep(context.Background())

			require.Len(t, store.escalations, 1)
			assert.Equal(t, tc.want, store.escalations[0].priority)
			assert.Equal(t, tc.level+1, store.escalations[0].toLevel)
		})
	}
}

func TestEscalationStopsAtMaxLevel(t *testing.T) {
	store := newSweepStore()
	store.overdue = []models.Alert{overdueAlert("a1", models.MaxEscalationLevel, models.PriorityCritical)}
	d := &sweepDispatcher{}

	newTestSweeper(store, &sweepResolver{contacts: map[int64][]models.ContactRef{}}, d, &autoResolver{}, &sweepEvents{}).Sweep(context.Background())

	assert.Empty(t, store.escalations)
	assert.Empty(t, d.rounds)
}

func TestEscalationCASLoserIsNoOp(t *testing.T) {
	store := newSweepStore()
	store.escalateOK = false
	store.overdue = []models.Alert{overdueAlert("a1", 0, models.PriorityLow)}
	d := &sweepDispatcher{}
	ev := &sweepEvents{}

	newTestSweeper(store, &sweepResolver{contacts: map[int64][]models.ContactRef{}}, d, &autoResolver{}, ev).Sweep(context.Background())

	assert.Empty(t, d.rounds)
	assert.Empty(t, ev.events)
}

func TestSweepAutoResolvesStaleAlerts(t *testing.T) {
	store := newSweepStore()
	store.stale = []models.Alert{
		overdueAlert("old-1", 3, models.PriorityCritical),
		overdueAlert("old-2", 0, models.PriorityLow),
	}
	ar := &autoResolver{}

	newTestSweeper(store, &sweepResolver{contacts: map[int64][]models.ContactRef{}}, &sweepDispatcher{}, ar, &sweepEvents{}).Sweep(context.Background())

	assert.Equal(t, []string{"old-1", "old-2"}, ar.resolved)
}

func TestSweepIsolatesPerAlertFailures(t *testing.T) {
	store := newSweepStore()
	store.overdue = []models.Alert{
		overdueAlert("bad", 0, models.PriorityLow),
		overdueAlert("good", 0, models.PriorityLow),
	}
	store.escalateErrs["bad"] = errors.New("db timeout")
	resolver := &sweepResolver{contacts: map[int64][]models.ContactRef{1: {{UserID: 2}}}}
	d := &sweepDispatcher{}

	newTestSweeper(store, resolver, d, &autoResolver{}, &sweepEvents{}).Sweep(context.Background())

	// The failing alert did not stop the healthy one from escalating.
	require.Len(t, store.escalations, 1)
	assert.Equal(t, "good", store.escalations[0].alertID)
	assert.Equal(t, []int{1}, d.rounds)
}
