package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memQueue struct {
	mu      sync.Mutex
	items   [][]byte
	onEmpty func()
}

func (q *memQueue) Dequeue(_ context.Context, _ time.Duration) ([]byte, error) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		if q.onEmpty != nil {
			q.onEmpty()
		}
		return nil, ErrEmpty
	}
	raw := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()
	return raw, nil
}

type memStore struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (s *memStore) Save(_ context.Context, id string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[id] = raw
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	updates map[string][]Update
}

func (s *recordingSink) UpdateStatus(_ context.Context, id string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = make(map[string][]Update)
	}
	s.updates[id] = append(s.updates[id], u)
	return nil
}

func (s *recordingSink) For(id string) []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[id]
}

type memControl struct {
	mu   sync.Mutex
	msgs []*Control
}

func (c *memControl) Push(msg *Control) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *memControl) PollControl(context.Context) (*Control, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return nil, nil
	}
	msg := c.msgs[0]
	c.msgs = c.msgs[1:]
	return msg, nil
}

type runnerFunc func(ctx context.Context, t Task) error

func (f runnerFunc) Run(ctx context.Context, t Task) error { return f(ctx, t) }

type harness struct {
	queue   *memQueue
	store   *memStore
	sink    *recordingSink
	control *memControl
}

// runWorker drains raws through a worker and returns once the queue is empty.
func runWorker(t *testing.T, runner Runner, setup func(h *harness), raws ...string) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := &harness{queue: &memQueue{onEmpty: cancel}, store: &memStore{}, sink: &recordingSink{}, control: &memControl{}}
	for _, raw := range raws {
		h.queue.items = append(h.queue.items, []byte(raw))
	}
	if setup != nil {
		setup(h)
	}

	w := NewWorker(h.queue, h.store, h.sink, runner,
		WithLogger(zaptest.NewLogger(t)),
		WithSite("banco_estado"),
		WithPollInterval(time.Millisecond),
		WithControl(h.control),
	)
	require.NoError(t, w.Run(ctx))
	return h
}

func TestWorker_RunsTasksInOrder(t *testing.T) {
	var seen []string
	runner := runnerFunc(func(_ context.Context, tk Task) error {
		seen = append(seen, tk.ID)
		return nil
	})

	h := runWorker(t, runner, nil,
		`{"id":"t-1","data":{"rut":"1-9","password":"x"}}`,
		`{"id":"t-2","site":"banco_estado"}`,
	)

	assert.Equal(t, []string{"t-1", "t-2"}, seen)
	assert.Contains(t, h.store.saved, "t-1")
	assert.JSONEq(t, `{"id":"t-2","site":"banco_estado"}`, string(h.store.saved["t-2"]))
}

func TestWorker_SkipsForeignAndMalformedTasks(t *testing.T) {
	var seen []string
	runner := runnerFunc(func(_ context.Context, tk Task) error {
		seen = append(seen, tk.ID)
		return nil
	})

	h := runWorker(t, runner, nil,
		`{"id":"other","site":"banco_chile"}`,
		`{broken`,
		`{"site":"banco_estado"}`,
		`{"id":"mine"}`,
	)

	assert.Equal(t, []string{"mine"}, seen)
	assert.NotContains(t, h.store.saved, "other")
	assert.Empty(t, h.sink.For("other"), "foreign tasks get no status change")
}

func TestWorker_RunnerErrorDoesNotStopLoop(t *testing.T) {
	calls := 0
	runner := runnerFunc(func(context.Context, Task) error {
		calls++
		return errors.New("boom")
	})

	runWorker(t, runner, nil, `{"id":"a"}`, `{"id":"b"}`)
	assert.Equal(t, 2, calls)
}

func TestWorker_CancelBeforeStart(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, tk Task) error {
		t.Fatalf("cancelled task %s must not run", tk.ID)
		return nil
	})

	h := runWorker(t, runner, func(h *harness) {
		h.control.Push(&Control{Action: ActionCancel, ID: "t-1"})
	}, `{"id":"t-1"}`)

	updates := h.sink.For("t-1")
	require.Len(t, updates, 1)
	assert.Equal(t, StatusCancelled, updates[0].Status)
}

func TestWorker_CancelWhileRunning(t *testing.T) {
	var h *harness
	var runErr error
	runner := runnerFunc(func(ctx context.Context, tk Task) error {
		if tk.ID != "t-1" {
			return nil
		}
		h.control.Push(&Control{Action: "pause", ID: "t-1"})
		h.control.Push(&Control{Action: ActionCancel, ID: "t-2"})
		h.control.Push(&Control{Action: ActionCancel, ID: "t-1"})

		select {
		case <-ctx.Done():
			runErr = ctx.Err()
		case <-time.After(2 * time.Second):
			runErr = errors.New("not cancelled")
		}
		return runErr
	})

	var ran []string
	wrapped := runnerFunc(func(ctx context.Context, tk Task) error {
		ran = append(ran, tk.ID)
		return runner(ctx, tk)
	})

	h = runWorker(t, wrapped, func(hh *harness) { h = hh }, `{"id":"t-1"}`, `{"id":"t-2"}`)

	assert.ErrorIs(t, runErr, context.Canceled)
	assert.Equal(t, []string{"t-1"}, ran, "t-2 was cancelled while queued")
	require.Len(t, h.sink.For("t-2"), 1)
	assert.Equal(t, StatusCancelled, h.sink.For("t-2")[0].Status)
}

func TestWorker_ForgetsStaleCancels(t *testing.T) {
	ctx := context.Background()
	control := &memControl{}
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	w := NewWorker(&memQueue{}, &memStore{}, &recordingSink{}, runnerFunc(func(context.Context, Task) error { return nil }),
		WithLogger(zaptest.NewLogger(t)),
		WithControl(control),
		WithCancelTTL(time.Hour),
	)
	w.now = func() time.Time { return now }

	control.Push(&Control{Action: ActionCancel, ID: "old"})
	w.drainControl(ctx)

	now = now.Add(30 * time.Minute)
	control.Push(&Control{Action: ActionCancel, ID: "recent"})
	w.drainControl(ctx)

	now = now.Add(45 * time.Minute)
	w.drainControl(ctx)

	assert.False(t, w.takeCancelled("old"), "older than the TTL")
	assert.True(t, w.takeCancelled("recent"))
	assert.Empty(t, w.cancelled)
}

func TestLogSink(t *testing.T) {
	sink := LogSink{Log: zaptest.NewLogger(t)}
	assert.NoError(t, sink.UpdateStatus(context.Background(), "t", Update{Status: StatusProcessing, Progress: 10}))
	assert.NoError(t, LogSink{}.UpdateStatus(context.Background(), "t", Update{Status: StatusFailed}))
}
