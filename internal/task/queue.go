package task

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrEmpty is returned by Dequeue when nothing arrived within the timeout.
var ErrEmpty = errors.New("task: queue empty")

// Queue hands out raw queued tasks.
type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Store keeps the record of every accepted task.
type Store interface {
	Save(ctx context.Context, id string, raw []byte) error
}

// StatusSink receives the status updates of running tasks.
type StatusSink interface {
	UpdateStatus(ctx context.Context, id string, u Update) error
}

// ControlSource yields pending control messages, or nil when there is none.
type ControlSource interface {
	PollControl(ctx context.Context) (*Control, error)
}

// LogSink reports updates to a logger only. It serves one-off runs that have
// no task store.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) UpdateStatus(_ context.Context, id string, u Update) error {
	log := s.Log
	if log == nil {
		log = zap.L()
	}
	log.Info("task: status",
		zap.String("task_id", id),
		zap.String("status", string(u.Status)),
		zap.String("message", u.Message),
		zap.Int("progress", u.Progress),
		zap.String("error", u.Error),
	)
	return nil
}
