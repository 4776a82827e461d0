package job

import (
	"context"
	"log/slog"
	"time"
)

type config struct {
	registry   *taskRegistry
	queues     map[string]int
	logger     *slog.Logger
	schedules  []scheduleConfig
	maxWorkers int
	jobTimeout time.Duration
	workers    bool
}

func newConfig() *config {
	return &config{
		registry:   newTaskRegistry(),
		queues:     make(map[string]int),
		jobTimeout: defaultJobTimeout,
		workers:    true,
	}
}

type scheduleConfig struct {
	handler  func(context.Context) error
	name     string
	schedule string
}

// Option configures the job manager.
type Option func(*config)

// WithTask registers a task handler. The payload type P is inferred from
// the Handle method signature.
//
//	func (t *BulkSend) Name() string { return "bulk_send" }
//	func (t *BulkSend) Handle(ctx context.Context, p BulkSendPayload) error
//
//	job.WithTask(delivery.NewBulkSendTask(...))
func WithTask[P any, T interface {
	Name() string
	Handle(context.Context, P) error
}](task T) Option {
	return func(c *config) {
		c.registry.register(task.Name(), newTaskWrapper[P, T](task))
	}
}

// WithScheduledTask registers a periodic task. Schedule returns a
// five-field cron expression.
func WithScheduledTask[T interface {
	Name() string
	Schedule() string
	Handle(context.Context) error
}](task T) Option {
	return func(c *config) {
		c.schedules = append(c.schedules, scheduleConfig{
			name:     task.Name(),
			schedule: task.Schedule(),
			handler:  task.Handle,
		})
	}
}

// WithQueue configures a named queue with the given number of workers.
func WithQueue(name string, workers int) Option {
	return func(c *config) {
		if workers > 0 {
			c.queues[name] = workers
		}
	}
}

// WithLogger sets the logger for job processing.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxWorkers sets the worker count of the default queue.
func WithMaxWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithJobTimeout bounds a single job run. A negative value disables the
// timeout; bulk runs over large sheets need minutes, not River's 1m default.
func WithJobTimeout(d time.Duration) Option {
	return func(c *config) {
		if d != 0 {
			c.jobTimeout = d
		}
	}
}

// WithoutWorkers builds an insert-only manager. The API process uses it when
// a separate worker process executes jobs.
func WithoutWorkers() Option {
	return func(c *config) {
		c.workers = false
	}
}
