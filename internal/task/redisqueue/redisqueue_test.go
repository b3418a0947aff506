package redisqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/grez-lucas/bancoestado-scraper/internal/task"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestQueue(t *testing.T, opts ...Option) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := New(rdb, append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	q.now = func() time.Time { return fixedNow }
	return q, mr
}

func TestQueue_Dequeue(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, err := mr.Lpush("scraper:queue", `{"id":"first"}`)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, []byte(`{"id":"second"}`)))

	raw, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"first"}`, string(raw))

	raw, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"second"}`, string(raw))
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.Dequeue(context.Background(), time.Second)
	assert.ErrorIs(t, err, task.ErrEmpty)
}

func TestQueue_DequeueConnectionError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	q := New(rdb, WithLogger(zaptest.NewLogger(t)))

	_, err := q.Dequeue(context.Background(), time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, task.ErrEmpty)
}

func TestQueue_SaveAndUpdateStatus(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	raw := `{"id":"t-1","user_id":7,"site":"banco_estado","status":"pending","data":{"rut":"1-9"}}`
	require.NoError(t, q.Save(ctx, "t-1", []byte(raw)))
	assert.JSONEq(t, raw, mr.HGet("scraper:tasks:t-1", "data"))

	require.NoError(t, q.UpdateStatus(ctx, "t-1", task.Update{
		Status:   task.StatusProcessing,
		Message:  "Extrayendo cuentas",
		Progress: 40,
	}))

	rec, err := q.Record(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "processing", rec["status"])
	assert.Equal(t, "Extrayendo cuentas", rec["message"])
	assert.EqualValues(t, 40, rec["progress"])
	assert.Equal(t, fixedNow.Format(time.RFC3339), rec["updated_at"])
	assert.EqualValues(t, 7, rec["user_id"], "unknown fields survive")
	assert.Equal(t, map[string]any{"rut": "1-9"}, rec["data"])
	assert.NotContains(t, rec, "result")

	require.NoError(t, q.UpdateStatus(ctx, "t-1", task.Update{
		Status:   task.StatusCompleted,
		Progress: 100,
		Result:   map[string]any{"success": true, "total_accounts": 2},
	}))

	rec, err = q.Record(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", rec["status"])
	assert.Equal(t, "Extrayendo cuentas", rec["message"], "empty message keeps the previous one")
	assert.Equal(t, map[string]any{"success": true, "total_accounts": float64(2)}, rec["result"])
}

func TestQueue_UpdateStatusUnknownTask(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.UpdateStatus(ctx, "ghost", task.Update{
		Status: task.StatusFailed,
		Error:  "login failed",
	}))

	rec, err := q.Record(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", rec["id"])
	assert.Equal(t, "failed", rec["status"])
	assert.Equal(t, "login failed", rec["error"])
}

func TestQueue_UpdateStatusCorruptRecord(t *testing.T) {
	q, mr := newTestQueue(t)
	mr.HSet("scraper:tasks:bad", "data", "{nope")

	err := q.UpdateStatus(context.Background(), "bad", task.Update{Status: task.StatusFailed})
	assert.Error(t, err)
}

func TestQueue_RecordMissing(t *testing.T) {
	q, _ := newTestQueue(t)

	rec, err := q.Record(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestQueue_PollControl(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	c, err := q.PollControl(ctx)
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, q.Cancel(ctx, "t-1"))
	_, err = mr.Lpush("scraper:control", "garbage")
	require.NoError(t, err)
	require.NoError(t, q.Cancel(ctx, "t-2"))

	c, err = q.PollControl(ctx)
	require.NoError(t, err)
	assert.Equal(t, &task.Control{Action: task.ActionCancel, ID: "t-1"}, c)

	c, err = q.PollControl(ctx)
	require.NoError(t, err)
	assert.Equal(t, &task.Control{}, c, "malformed messages come back empty")

	c, err = q.PollControl(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t-2", c.ID)
}

func TestQueue_CustomKeys(t *testing.T) {
	q, mr := newTestQueue(t, WithKeys(Keys{Queue: "q", TaskPrefix: "jobs:"}))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, []byte(`{"id":"x"}`)))
	require.NoError(t, q.Save(ctx, "x", []byte(`{"id":"x"}`)))
	require.NoError(t, q.Cancel(ctx, "x"))

	assert.True(t, mr.Exists("q"))
	assert.True(t, mr.Exists("jobs:x"))
	assert.True(t, mr.Exists("scraper:control"), "unset keys keep their default")
}

func TestQueue_DrivesWorker(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, []byte(`{"id":"w-1","site":"banco_estado","data":{}}`)))
	require.NoError(t, q.Enqueue(ctx, []byte(`{"id":"w-2","data":{}}`)))
	require.NoError(t, q.Cancel(ctx, "w-2"))

	var ran []string
	runner := runnerFunc(func(ctx context.Context, tk task.Task) error {
		ran = append(ran, tk.ID)
		return q.UpdateStatus(ctx, tk.ID, task.Update{Status: task.StatusCompleted, Progress: 100})
	})

	w := task.NewWorker(q, q, q, runner,
		task.WithLogger(zaptest.NewLogger(t)),
		task.WithSite("banco_estado"),
		task.WithPollInterval(20*time.Millisecond),
		task.WithControl(q),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		rec, err := q.Record(context.Background(), "w-2")
		return err == nil && rec != nil && rec["status"] == "cancelled"
	}, 3*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"w-1"}, ran)
	rec, err := q.Record(context.Background(), "w-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", rec["status"])
}

type runnerFunc func(ctx context.Context, t task.Task) error

func (f runnerFunc) Run(ctx context.Context, t task.Task) error { return f(ctx, t) }
