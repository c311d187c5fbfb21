package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/octobees/prospect-bridge/internal/entity"
	"github.com/octobees/prospect-bridge/internal/repository"
)

// memoryStore is an in-memory prospect queue with the same transition rules as the database.
type memoryStore struct {
	mu           sync.Mutex
	rows         map[int64]*entity.Prospect
	dueErr       error
	incrementErr map[int64]error
}

func newMemoryStore(prospects ...entity.Prospect) *memoryStore {
	s := &memoryStore{rows: make(map[int64]*entity.Prospect), incrementErr: make(map[int64]error)}
	for i := range prospects {
		p := prospects[i]
		if p.Status == "" {
			p.Status = entity.StatusPending
		}
		s.rows[p.ID] = &p
	}
	return s
}

func (s *memoryStore) DueProspects(ctx context.Context, now time.Time) ([]entity.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	var out []entity.Prospect
	for id := int64(1); id <= int64(len(s.rows)); id++ {
		p, ok := s.rows[id]
		if ok && p.Status == entity.StatusPending && !p.SendAt.After(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memoryStore) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.incrementErr[id]; err != nil {
		return 0, err
	}
	p, ok := s.rows[id]
	if !ok {
		return 0, repository.ErrProspectNotFound
	}
	p.Attempts++
	return p.Attempts, nil
}

func (s *memoryStore) MarkSent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.rows[id]
	if p.Status != entity.StatusPending {
		return fmt.Errorf("mark prospect %d sent: %w", id, repository.ErrInvalidTransition)
	}
	now := time.Now()
	p.Status = entity.StatusSent
	p.SentAt = &now
	return nil
}

func (s *memoryStore) MarkFailed(ctx context.Context, id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.rows[id]
	if p.Status != entity.StatusPending {
		return fmt.Errorf("mark prospect %d failed: %w", id, repository.ErrInvalidTransition)
	}
	p.Status = entity.StatusFailed
	p.LastError = &message
	return nil
}

func (s *memoryStore) get(id int64) entity.Prospect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

type sendCall struct {
	Email    string
	Campaign string
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sendCall
	fail  map[string]error
	block chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, p entity.Prospect, campaignID string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{Email: p.Email, Campaign: campaignID})
	return f.fail[p.Email]
}

func (f *fakeSender) count(email string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Email == email {
			n++
		}
	}
	return n
}

// tickRunning reports whether a tick holds the dispatcher lock without starting one.
func tickRunning(d *Dispatcher) bool {
	if d.running.TryLock() {
		d.running.Unlock()
		return false
	}
	return true
}

func strPtr(s string) *string { return &s }

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDispatcher_TickSendsDueProspects(t *testing.T) {
	store := newMemoryStore(
		entity.Prospect{ID: 1, Email: "routed@example.com", CampaignID: strPtr("100"), SendAt: baseTime.Add(-time.Hour)},
		entity.Prospect{ID: 2, Email: "default@example.com", SendAt: baseTime},
		entity.Prospect{ID: 3, Email: "future@example.com", SendAt: baseTime.Add(time.Minute)},
	)
	sender := &fakeSender{}
	d := NewDispatcher(store, sender, "42", 3, nil, WithNow(func() time.Time { return baseTime }))

	summary, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickSummary{Due: 2, Sent: 2}, summary)
	assert.Equal(t, []sendCall{
		{Email: "routed@example.com", Campaign: "100"},
		{Email: "default@example.com", Campaign: "42"},
	}, sender.calls)

	assert.Equal(t, entity.StatusSent, store.get(1).Status)
	assert.NotNil(t, store.get(1).SentAt)
	assert.Equal(t, 1, store.get(1).Attempts)
	assert.Equal(t, entity.StatusPending, store.get(3).Status)
	assert.Equal(t, 0, store.get(3).Attempts)
}

func TestDispatcher_RetriesUntilMaxAttempts(t *testing.T) {
	store := newMemoryStore(entity.Prospect{ID: 1, Email: "flaky@example.com", SendAt: baseTime})
	sender := &fakeSender{fail: map[string]error{"flaky@example.com": errors.New("mailshake api error 500: down")}}
	d := NewDispatcher(store, sender, "42", 3, nil, WithNow(func() time.Time { return baseTime }))
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		summary, err := d.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, TickSummary{Due: 1, Retrying: 1}, summary)
		p := store.get(1)
		assert.Equal(t, entity.StatusPending, p.Status, "tick %d", i)
		assert.Equal(t, i, p.Attempts)
		assert.Nil(t, p.LastError)
	}

	summary, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickSummary{Due: 1, Failed: 1}, summary)

	p := store.get(1)
	assert.Equal(t, entity.StatusFailed, p.Status)
	assert.Equal(t, 3, p.Attempts)
	require.NotNil(t, p.LastError)
	assert.Equal(t, "mailshake api error 500: down", *p.LastError)
	assert.Equal(t, 3, sender.count("flaky@example.com"), "attempts equal delivery invocations")

	summary, err = d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickSummary{}, summary, "failed prospects are never due again")
}

func TestDispatcher_RecoversAfterFailure(t *testing.T) {
	store := newMemoryStore(entity.Prospect{ID: 1, Email: "a@example.com", SendAt: baseTime})
	sender := &fakeSender{fail: map[string]error{"a@example.com": errors.New("timeout")}}
	d := NewDispatcher(store, sender, "42", 3, nil, WithNow(func() time.Time { return baseTime }))

	_, err := d.Tick(context.Background())
	require.NoError(t, err)
	delete(sender.fail, "a@example.com")

	summary, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	p := store.get(1)
	assert.Equal(t, entity.StatusSent, p.Status)
	assert.Equal(t, 2, p.Attempts)
}

func TestDispatcher_ExhaustedRowFailsWithoutDelivery(t *testing.T) {
	store := newMemoryStore(
		entity.Prospect{ID: 1, Email: "crashed@example.com", Attempts: 3, SendAt: baseTime},
		entity.Prospect{ID: 2, Email: "lowered@example.com", Attempts: 5, SendAt: baseTime},
		entity.Prospect{ID: 3, Email: "fresh@example.com", Attempts: 2, SendAt: baseTime},
	)
	sender := &fakeSender{}
	d := NewDispatcher(store, sender, "42", 3, nil, WithNow(func() time.Time { return baseTime }))

	summary, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickSummary{Due: 3, Sent: 1, Failed: 2}, summary)

	assert.Equal(t, 0, sender.count("crashed@example.com"))
	assert.Equal(t, 0, sender.count("lowered@example.com"))
	assert.Equal(t, 1, sender.count("fresh@example.com"))

	crashed := store.get(1)
	assert.Equal(t, entity.StatusFailed, crashed.Status)
	assert.Equal(t, 3, crashed.Attempts)
	require.NotNil(t, crashed.LastError)
	assert.Contains(t, *crashed.LastError, "attempts exhausted")

	assert.Equal(t, entity.StatusFailed, store.get(2).Status)
	assert.Equal(t, 5, store.get(2).Attempts)

	fresh := store.get(3)
	assert.Equal(t, entity.StatusSent, fresh.Status)
	assert.Equal(t, 3, fresh.Attempts)
}

func TestDispatcher_IncrementFailureSkipsDelivery(t *testing.T) {
	store := newMemoryStore(
		entity.Prospect{ID: 1, Email: "stuck@example.com", SendAt: baseTime},
		entity.Prospect{ID: 2, Email: "ok@example.com", SendAt: baseTime},
	)
	store.incrementErr[1] = errors.New("deadlock detected")
	core, logs := observer.New(zap.ErrorLevel)
	sender := &fakeSender{}
	d := NewDispatcher(store, sender, "42", 3, zap.New(core), WithNow(func() time.Time { return baseTime }))

	summary, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickSummary{Due: 2, Sent: 1, Skipped: 1}, summary)
	assert.Equal(t, 0, sender.count("stuck@example.com"))
	assert.Equal(t, entity.StatusPending, store.get(1).Status)
	assert.Equal(t, 1, logs.FilterMessage("could not record attempt, skipping prospect").Len())
}

func TestDispatcher_DueQueryError(t *testing.T) {
	store := newMemoryStore()
	store.dueErr = errors.New("connection refused")
	d := NewDispatcher(store, &fakeSender{}, "42", 3, nil)

	_, err := d.Tick(context.Background())
	assert.ErrorIs(t, err, store.dueErr)
}

func TestDispatcher_InvalidTransitionIsLogged(t *testing.T) {
	store := newMemoryStore(entity.Prospect{ID: 1, Email: "a@example.com", SendAt: baseTime})
	core, logs := observer.New(zap.WarnLevel)
	sender := &fakeSender{}
	d := NewDispatcher(store, sender, "42", 3, zap.New(core), WithNow(func() time.Time { return baseTime }))

	// a concurrent writer finalises the row between snapshot and mark
	due, err := store.DueProspects(context.Background(), baseTime)
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(context.Background(), 1, "manual"))

	assert.Equal(t, outcomeSkipped, d.process(context.Background(), due[0]))
	assert.Equal(t, entity.StatusFailed, store.get(1).Status)
	assert.Equal(t, 1, logs.FilterMessage("prospect no longer pending").Len())
}

func TestDispatcher_RejectsOverlappingTicks(t *testing.T) {
	store := newMemoryStore(entity.Prospect{ID: 1, Email: "slow@example.com", SendAt: baseTime})
	sender := &fakeSender{block: make(chan struct{})}
	d := NewDispatcher(store, sender, "42", 3, nil, WithNow(func() time.Time { return baseTime }))

	done := make(chan TickSummary)
	go func() {
		summary, _ := d.Tick(context.Background())
		done <- summary
	}()

	require.Eventually(t, func() bool {
		return tickRunning(d)
	}, time.Second, 5*time.Millisecond)

	_, err := d.Tick(context.Background())
	assert.ErrorIs(t, err, ErrTickInProgress)

	close(sender.block)
	summary := <-done
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, sender.count("slow@example.com"))
}

func TestNewDispatcher_DefaultMaxAttempts(t *testing.T) {
	d := NewDispatcher(newMemoryStore(), &fakeSender{}, " 42 ", 0, nil)
	assert.Equal(t, defaultMaxAttempts, d.maxAttempts)
	assert.Equal(t, "42", d.defaultCampaign)
}
