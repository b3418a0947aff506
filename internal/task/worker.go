package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner executes one task and reports its progress on its own.
type Runner interface {
	Run(ctx context.Context, t Task) error
}

// Worker is the dequeue loop: it takes one task at a time, skips tasks for
// other sites and cancels the running task when a cancel control arrives.
//
// Control messages are consumed, so a worker assumes it is the only reader of
// its control source. Cancels for tasks it is not running are remembered for
// the cancel TTL, then forgotten.
type Worker struct {
	queue   Queue
	store   Store
	status  StatusSink
	control ControlSource
	runner  Runner
	site    string
	poll    time.Duration
	log     *zap.Logger

	mu        sync.Mutex
	cancelled map[string]time.Time
	cancelTTL time.Duration
	now       func() time.Time
}

type WorkerOption func(*Worker)

func WithLogger(log *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if log != nil {
			w.log = log
		}
	}
}

// WithSite sets the site this worker serves.
func WithSite(site string) WorkerOption {
	return func(w *Worker) { w.site = site }
}

// WithPollInterval sets both the dequeue timeout and the control poll period.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.poll = d
		}
	}
}

// WithCancelTTL sets how long a cancel for a task that has not started yet
// is remembered.
func WithCancelTTL(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.cancelTTL = d
		}
	}
}

func WithControl(c ControlSource) WorkerOption {
	return func(w *Worker) { w.control = c }
}

func NewWorker(queue Queue, store Store, status StatusSink, runner Runner, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:     queue,
		store:     store,
		status:    status,
		runner:    runner,
		poll:      time.Second,
		log:       zap.L(),
		cancelled: make(map[string]time.Time),
		cancelTTL: time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is done. Queue errors are logged and retried after
// one poll interval.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker: started", zap.String("site", w.site), zap.Duration("poll", w.poll))
	defer w.log.Info("worker: stopped")

	for ctx.Err() == nil {
		w.drainControl(ctx)

		raw, err := w.queue.Dequeue(ctx, w.poll)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.log.Warn("worker: dequeue failed", zap.Error(err))
			w.pause(ctx)
			continue
		}
		w.handle(ctx, raw)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, raw []byte) {
	t, err := Decode(raw)
	if err != nil {
		w.log.Warn("worker: dropping malformed task", zap.Error(err))
		return
	}
	log := w.log.With(zap.String("task_id", t.ID))

	if !t.ForSite(w.site) {
		log.Info("worker: task is for another site", zap.String("task_site", t.Site))
		return
	}
	if err := w.store.Save(ctx, t.ID, raw); err != nil {
		log.Warn("worker: could not save task", zap.Error(err))
	}

	if w.takeCancelled(t.ID) {
		log.Info("worker: task cancelled before start")
		w.report(ctx, t.ID, Update{Status: StatusCancelled, Message: "Tarea cancelada por el usuario"})
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go w.watch(runCtx, t.ID, cancel, done)

	start := time.Now()
	err = w.runner.Run(runCtx, t)
	cancel()
	<-done
	w.forget(t.ID)

	if err != nil {
		log.Warn("worker: task finished with error", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	log.Info("worker: task completed", zap.Duration("elapsed", time.Since(start)))
}

// watch polls the control source while id runs and cancels it on request.
func (w *Worker) watch(ctx context.Context, id string, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	if w.control == nil {
		return
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if w.consumeControl(ctx, id) {
			w.log.Info("worker: cancelling running task", zap.String("task_id", id))
			cancel()
			return
		}
	}
}

func (w *Worker) drainControl(ctx context.Context) {
	w.consumeControl(ctx, "")
	w.pruneCancelled()
}

// consumeControl reads every pending control message. It reports whether one
// cancels running; cancels for other tasks are remembered.
func (w *Worker) consumeControl(ctx context.Context, running string) bool {
	if w.control == nil {
		return false
	}
	for {
		c, err := w.control.PollControl(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Debug("worker: control poll failed", zap.Error(err))
			}
			return false
		}
		if c == nil {
			return false
		}
		if c.Action != ActionCancel || c.ID == "" {
			w.log.Debug("worker: ignoring control", zap.String("action", c.Action))
			continue
		}
		if running != "" && c.ID == running {
			return true
		}
		w.mu.Lock()
		w.cancelled[c.ID] = w.now()
		w.mu.Unlock()
	}
}

func (w *Worker) takeCancelled(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.cancelled[id]; ok {
		delete(w.cancelled, id)
		return true
	}
	return false
}

func (w *Worker) forget(id string) {
	w.mu.Lock()
	delete(w.cancelled, id)
	w.mu.Unlock()
}

func (w *Worker) pruneCancelled() {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := w.now().Add(-w.cancelTTL)
	for id, at := range w.cancelled {
		if at.Before(cutoff) {
			delete(w.cancelled, id)
			w.log.Debug("worker: forgetting stale cancel", zap.String("task_id", id))
		}
	}
}

func (w *Worker) report(ctx context.Context, id string, u Update) {
	if err := w.status.UpdateStatus(context.WithoutCancel(ctx), id, u); err != nil {
		w.log.Warn("worker: status update failed", zap.String("task_id", id), zap.Error(err))
	}
}

func (w *Worker) pause(ctx context.Context) {
	t := time.NewTimer(w.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
