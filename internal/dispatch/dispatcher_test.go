package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergency-service/internal/logging"
	"emergency-service/internal/models"
)

type memStore struct {
	mu       sync.Mutex
	reserved map[string]bool
	records  map[string]*models.NotificationRecord

	reserveErr error
}

func newMemStore() *memStore {
	return &memStore{
		reserved: make(map[string]bool),
		records:  make(map[string]*models.NotificationRecord),
	}
}

func (m *memStore) ReserveNotifiedContact(_ context.Context, alertID string, contactID int64, round int, _ string, _ time.Time) (bool, error) {
	if m.reserveErr != nil {
		return false, m.reserveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%d/%d", alertID, contactID, round)
	if m.reserved[key] {
		return false, nil
	}
	m.reserved[key] = true
	return true, nil
}

func (m *memStore) CreateNotificationRecord(_ context.Context, n *models.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.records[n.ID] = &cp
	return nil
}

func (m *memStore) UpdateNotificationRecordStatus(_ context.Context, id, status, lastError string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.Status = status
		rec.LastError = lastError
		if status == models.DeliverySent {
			rec.SentAt = &sentAt
		}
	}
	return nil
}

func (m *memStore) statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Status)
	}
	return out
}

type stubChannel struct {
	mu    sync.Mutex
	sends int
	err   error
	delay time.Duration
}

func (s *stubChannel) Deliver(ctx context.Context, _ models.ContactRef, _ string, _ models.Priority) error {
	s.mu.Lock()
	s.sends++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.err
}

func (s *stubChannel) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error"})
}

func activeAlert() *models.Alert {
	return &models.Alert{
		ID:           "alert-1",
		OriginatorID: 1,
		Kind:         models.KindNeedHelp,
		Status:       models.StatusActive,
		Priority:     models.PriorityMedium,
		CreatedAt:    time.Now(),
	}
}

func TestFanOutNotifiesEveryContact(t *testing.T) {
	store := newMemStore()
	push := &stubChannel{}
	d := New(store, map[string]Channel{models.MethodPush: push}, time.Second, testLogger())

	contacts := []models.ContactRef{
		{UserID: 2, Method: models.MethodPush},
		{UserID: 3, Method: models.MethodPush},
		{UserID: 4, Method: models.MethodPush},
	}
	outcomes := d.FanOut(context.Background(), activeAlert(), contacts, 0)

	require.Len(t, outcomes, 3)
	assert.Equal(t, 3, Attempted(outcomes))
	assert.Equal(t, 3, push.sendCount())
	for _, o := range outcomes {
		assert.True(t, o.Delivered)
	}
}

func TestFanOutDedupesWithinRound(t *testing.T) {
	store := newMemStore()
	push := &stubChannel{}
	d := New(store, map[string]Channel{models.MethodPush: push}, time.Second, testLogger())

	alert := activeAlert()
	contacts := []models.ContactRef{{UserID: 2, Method: models.MethodPush}}

	first := d.FanOut(context.Background(), alert, contacts, 0)
	second := d.FanOut(context.Background(), alert, contacts, 0)

	assert.Equal(t, 1, Attempted(first))
	assert.Equal(t, 0, Attempted(second))
	assert.Equal(t, 1, push.sendCount())

	// A later escalation round is a fresh slot.
	third := d.FanOut(context.Background(), alert, contacts, 1)
	assert.Equal(t, 1, Attempted(third))
	assert.Equal(t, 2, push.sendCount())
}

func TestFanOutConcurrentDoubleInvoke(t *testing.T) {
	store := newMemStore()
	push := &stubChannel{}
	d := New(store, map[string]Channel{models.MethodPush: push}, time.Second, testLogger())

	alert := activeAlert()
	contacts := []models.ContactRef{
		{UserID: 2, Method: models.MethodPush},
		{UserID: 3, Method: models.MethodPush},
	}

	var wg sync.WaitGroup
	results := make([][]Outcome, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.FanOut(context.Background(), alert, contacts, 0)
		}(i)
	}
	wg.Wait()

	// Exactly one attempt per contact across both invocations.
	assert.Equal(t, 2, Attempted(results[0])+Attempted(results[1]))
	assert.Equal(t, 2, push.sendCount())
}

func TestFanOutFailedSendStaysReserved(t *testing.T) {
	store := newMemStore()
	push := &stubChannel{err: errors.New("gateway unreachable")}
	d := New(store, map[string]Channel{models.MethodPush: push}, time.Second, testLogger())

	alert := activeAlert()
	contacts := []models.ContactRef{{UserID: 2, Method: models.MethodPush}}

	outcomes := d.FanOut(context.Background(), alert, contacts, 0)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Attempted)
	assert.False(t, outcomes[0].Delivered)
	assert.Contains(t, outcomes[0].Error, "gateway unreachable")
	assert.Equal(t, []string{models.DeliveryFailed}, store.statuses())

	// The failed attempt still consumed the slot, no retry storm.
	again := d.FanOut(context.Background(), alert, contacts, 0)
	assert.Equal(t, 0, Attempted(again))
	assert.Equal(t, 1, push.sendCount())
}

func TestFanOutTestAlertShortCircuits(t *testing.T) {
	store := newMemStore()
	push := &stubChannel{}
	d := New(store, map[string]Channel{models.MethodPush: push}, time.Second, testLogger())

	alert := activeAlert()
	alert.IsTestAlert = true
	outcomes := d.FanOut(context.Background(), alert, []models.ContactRef{{UserID: 2}}, 0)

	assert.Nil(t, outcomes)
	assert.Equal(t, 0, push.sendCount())
	assert.Empty(t, store.reserved)
}

func TestFanOutUnknownMethodFallsBackToPush(t *testing.T) {
	store := newMemStore()
	push := &stubChannel{}
	d := New(store, map[string]Channel{models.MethodPush: push}, time.Second, testLogger())

	outcomes := d.FanOut(context.Background(), activeAlert(), []models.ContactRef{{UserID: 2, Method: "pigeon"}}, 0)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.MethodPush, outcomes[0].Method)
	assert.True(t, outcomes[0].Delivered)
}

func TestFanOutSlowChannelBoundedByTimeout(t *testing.T) {
	store := newMemStore()
	slow := &stubChannel{delay: 5 * time.Second}
	d := New(store, map[string]Channel{models.MethodPush: slow}, 50*time.Millisecond, testLogger())

	start := time.Now()
	outcomes := d.FanOut(context.Background(), activeAlert(), []models.ContactRef{{UserID: 2, Method: models.MethodPush}}, 0)
	elapsed := time.Since(start)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Attempted)
	assert.False(t, outcomes[0].Delivered)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestFanOutReserveErrorIsNotAttempted(t *testing.T) {
	store := newMemStore()
	store.reserveErr = errors.New("db down")
	push := &stubChannel{}
	d := New(store, map[string]Channel{models.MethodPush: push}, time.Second, testLogger())

	outcomes := d.FanOut(context.Background(), activeAlert(), []models.ContactRef{{UserID: 2, Method: models.MethodPush}}, 0)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Attempted)
	assert.Equal(t, 0, push.sendCount())
}

func TestMessageComposition(t *testing.T) {
	alert := activeAlert()
	alert.Message = "fell in the kitchen"
	alert.Location = models.Location{Address: "12 Rose Lane", City: "Pune"}

	msg := Message(alert)
	assert.Contains(t, msg, "needs help")
	assert.Contains(t, msg, `"fell in the kitchen"`)
	assert.Contains(t, msg, "12 Rose Lane, Pune")
	assert.NotContains(t, msg, "escalation")

	alert.EscalationLevel = 2
	alert.Priority = models.PriorityHigh
	msg = Message(alert)
	assert.Contains(t, msg, "escalation level 2")
	assert.Contains(t, msg, "high")
}
