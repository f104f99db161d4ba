package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studtime/studtime/internal/models"
)

type dispatcherStub struct {
	mu       sync.Mutex
	failures int
	sent     []string
}

func (d *dispatcherStub) Dispatch(ctx context.Context, n models.PendingNotification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return errors.New("transport unavailable")
	}
	d.sent = append(d.sent, n.ID)
	return nil
}

func (d *dispatcherStub) sentIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

type sentMarkerStub struct {
	mu     sync.Mutex
	marked []string
	err    error
}

func (s *sentMarkerStub) MarkSent(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.marked = append(s.marked, id)
	return nil
}

func (s *sentMarkerStub) markedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.marked...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatchPoolDeliversAndMarks(t *testing.T) {
	dispatcher := &dispatcherStub{}
	store := &sentMarkerStub{}
	pool := NewDispatchPool(dispatcher, store, DispatchPoolConfig{Workers: 2})
	pool.Start(context.Background())
	defer pool.Stop()

	require.NoError(t, pool.Enqueue(models.PendingNotification{ID: "n1"}))
	require.NoError(t, pool.Enqueue(models.PendingNotification{ID: "n2"}))

	waitFor(t, func() bool { return len(store.markedIDs()) == 2 })
	assert.ElementsMatch(t, []string{"n1", "n2"}, dispatcher.sentIDs())
	assert.ElementsMatch(t, []string{"n1", "n2"}, store.markedIDs())
}

func TestDispatchPoolRetriesTransientFailure(t *testing.T) {
	dispatcher := &dispatcherStub{failures: 1}
	store := &sentMarkerStub{}
	pool := NewDispatchPool(dispatcher, store, DispatchPoolConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	})
	pool.Start(context.Background())
	defer pool.Stop()

	require.NoError(t, pool.Enqueue(models.PendingNotification{ID: "n1"}))

	waitFor(t, func() bool { return len(store.markedIDs()) == 1 })
	assert.Equal(t, []string{"n1"}, store.markedIDs())
}

func TestDispatchPoolMarkFailureStillDelivers(t *testing.T) {
	dispatcher := &dispatcherStub{}
	store := &sentMarkerStub{err: errors.New("db down")}
	pool := NewDispatchPool(dispatcher, store, DispatchPoolConfig{Workers: 1})
	pool.Start(context.Background())
	defer pool.Stop()

	require.NoError(t, pool.Enqueue(models.PendingNotification{ID: "n1"}))

	waitFor(t, func() bool { return len(dispatcher.sentIDs()) == 1 })
	assert.Empty(t, store.markedIDs())
}

func TestDispatchPoolEnqueueBeforeStart(t *testing.T) {
	pool := NewDispatchPool(&dispatcherStub{}, &sentMarkerStub{}, DispatchPoolConfig{})
	err := pool.Enqueue(models.PendingNotification{ID: "n1"})
	assert.ErrorIs(t, err, errPoolStopped)
}
