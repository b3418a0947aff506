// Package redisqueue implements the task queue, task store and control
// channel on Redis, using the key layout the backend writes to:
//
//	scraper:queue        list of task JSON, consumed with BLPOP
//	scraper:tasks:{id}   hash whose "data" field holds the task record
//	scraper:control      list of control messages, consumed with RPOP
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/task"
)

const dataField = "data"

// maxUpdateRetries bounds optimistic retries when the record changes under
// a status update.
const maxUpdateRetries = 3

type Keys struct {
	Queue      string
	TaskPrefix string
	Control    string
}

func DefaultKeys() Keys {
	return Keys{
		Queue:      "scraper:queue",
		TaskPrefix: "scraper:tasks:",
		Control:    "scraper:control",
	}
}

// Queue implements task.Queue, task.Store, task.StatusSink and
// task.ControlSource.
type Queue struct {
	rdb  redis.UniversalClient
	keys Keys
	log  *zap.Logger
	now  func() time.Time
}

var (
	_ task.Queue         = (*Queue)(nil)
	_ task.Store         = (*Queue)(nil)
	_ task.StatusSink    = (*Queue)(nil)
	_ task.ControlSource = (*Queue)(nil)
)

type Option func(*Queue)

// WithKeys overrides the non-empty fields of DefaultKeys.
func WithKeys(k Keys) Option {
	return func(q *Queue) {
		if k.Queue != "" {
			q.keys.Queue = k.Queue
		}
		if k.TaskPrefix != "" {
			q.keys.TaskPrefix = k.TaskPrefix
		}
		if k.Control != "" {
			q.keys.Control = k.Control
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(q *Queue) {
		if log != nil {
			q.log = log
		}
	}
}

func New(rdb redis.UniversalClient, opts ...Option) *Queue {
	q := &Queue{rdb: rdb, keys: DefaultKeys(), log: zap.L(), now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Connect opens a client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrapf(err, "redisqueue: ping %s", addr)
	}
	return rdb, nil
}

func (q *Queue) taskKey(id string) string {
	return q.keys.TaskPrefix + id
}

// Dequeue waits up to timeout for the next task. It returns task.ErrEmpty
// when none arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) ([]byte, error) {
	// BLPOP counts whole seconds.
	if timeout < time.Second {
		timeout = time.Second
	}
	res, err := q.rdb.BLPop(ctx, timeout, q.keys.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, task.ErrEmpty
	}
	if err != nil {
		return nil, eris.Wrap(err, "redisqueue: blpop")
	}
	if len(res) != 2 {
		return nil, eris.Errorf("redisqueue: unexpected blpop reply of %d items", len(res))
	}
	return []byte(res[1]), nil
}

// Enqueue appends a raw task to the queue.
func (q *Queue) Enqueue(ctx context.Context, raw []byte) error {
	return eris.Wrap(q.rdb.RPush(ctx, q.keys.Queue, raw).Err(), "redisqueue: rpush")
}

// Save stores the task record as received.
func (q *Queue) Save(ctx context.Context, id string, raw []byte) error {
	return eris.Wrap(q.rdb.HSet(ctx, q.taskKey(id), dataField, raw).Err(), "redisqueue: save task")
}

// Record returns the stored task record, or nil when there is none.
func (q *Queue) Record(ctx context.Context, id string) (map[string]any, error) {
	raw, err := q.rdb.HGet(ctx, q.taskKey(id), dataField).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "redisqueue: read task")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, eris.Wrap(err, "redisqueue: decode task")
	}
	return rec, nil
}

// UpdateStatus merges u into the stored record, keeping every field it does
// not know about. The read-modify-write runs under WATCH.
func (q *Queue) UpdateStatus(ctx context.Context, id string, u task.Update) error {
	key := q.taskKey(id)

	txf := func(tx *redis.Tx) error {
		rec := map[string]any{"id": id}
		raw, err := tx.HGet(ctx, key, dataField).Result()
		switch {
		case errors.Is(err, redis.Nil):
			q.log.Warn("redisqueue: status for unknown task", zap.String("task_id", id))
		case err != nil:
			return err
		default:
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return eris.Wrap(err, "decode task")
			}
		}

		apply(rec, u, q.now())
		updated, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "encode task")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, dataField, updated)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := q.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return eris.Wrapf(err, "redisqueue: update task %s", id)
	}
	return eris.Errorf("redisqueue: update task %s: record kept changing", id)
}

func apply(rec map[string]any, u task.Update, now time.Time) {
	rec["status"] = string(u.Status)
	rec["progress"] = u.Progress
	rec["updated_at"] = now.Format(time.RFC3339)
	if u.Message != "" {
		rec["message"] = u.Message
	}
	if u.Error != "" {
		rec["error"] = u.Error
	}
	if u.Result != nil {
		rec["result"] = u.Result
	}
}

// PollControl pops the oldest control message. Malformed messages are
// dropped.
func (q *Queue) PollControl(ctx context.Context) (*task.Control, error) {
	raw, err := q.rdb.RPop(ctx, q.keys.Control).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "redisqueue: rpop control")
	}

	var c task.Control
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		q.log.Warn("redisqueue: dropping malformed control message", zap.Error(err))
		return &task.Control{}, nil
	}
	return &c, nil
}

// Cancel asks the workers to cancel task id.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	raw, err := json.Marshal(task.Control{Action: task.ActionCancel, ID: id})
	if err != nil {
		return eris.Wrap(err, "redisqueue: encode control")
	}
	return eris.Wrap(q.rdb.LPush(ctx, q.keys.Control, raw).Err(), "redisqueue: lpush control")
}
