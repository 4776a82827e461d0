// Package job runs background tasks on River over the application's
// PostgreSQL pool: async bulk runs, scheduled sends and the attachment
// purge cron.
//
// Tasks are plain types with Name and Handle methods; payloads travel as
// JSON inside a single River job kind and are decoded into the handler's
// payload type.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"github.com/robfig/cron/v3"

	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
)

const (
	defaultMaxWorkers = 10
	defaultJobTimeout = time.Hour
	taskKind          = "quickmailer:task"
)

// Manager enqueues jobs and, unless built WithoutWorkers, executes them.
type Manager struct {
	pool     *pgxpool.Pool
	client   *river.Client[pgx.Tx]
	registry *taskRegistry
	logger   *slog.Logger
	workers  bool

	mu      sync.Mutex
	started bool
}

// NewManager creates the River client. Jobs may be enqueued before Start.
func NewManager(pool *pgxpool.Pool, opts ...Option) (*Manager, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}

	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewNope()
	}

	riverCfg := &river.Config{Logger: cfg.logger}
	if cfg.workers {
		if err := configureWorkers(riverCfg, cfg); err != nil {
			return nil, err
		}
	}

	client, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		return nil, fmt.Errorf("job: create client: %w", err)
	}

	return &Manager{
		pool:     pool,
		client:   client,
		registry: cfg.registry,
		logger:   cfg.logger,
		workers:  cfg.workers,
	}, nil
}

func configureWorkers(rc *river.Config, cfg *config) error {
	maxWorkers := cfg.maxWorkers
	if maxWorkers == 0 {
		maxWorkers = defaultMaxWorkers
	}
	rc.Queues = map[string]river.QueueConfig{river.QueueDefault: {MaxWorkers: maxWorkers}}
	for name, n := range cfg.queues {
		rc.Queues[name] = river.QueueConfig{MaxWorkers: n}
	}
	rc.JobTimeout = cfg.jobTimeout

	for _, sched := range cfg.schedules {
		schedule, err := parseCronSchedule(sched.schedule)
		if err != nil {
			return fmt.Errorf("job: invalid cron schedule %q: %w", sched.schedule, err)
		}
		name := sched.name
		rc.PeriodicJobs = append(rc.PeriodicJobs, river.NewPeriodicJob(
			schedule,
			func() (river.JobArgs, *river.InsertOpts) {
				return &taskArgs{TaskName: name}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		))
		cfg.registry.register(name, scheduledTask(sched.handler))
	}

	rc.Workers = river.NewWorkers()
	river.AddWorker(rc.Workers, &taskWorker{registry: cfg.registry, logger: cfg.logger})
	return nil
}

// Start begins processing jobs. It is a no-op for insert-only managers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	if m.workers {
		if err := m.client.Start(ctx); err != nil {
			return fmt.Errorf("job: start client: %w", err)
		}
	}

	m.started = true
	m.logger.Info("job manager started",
		slog.Bool("workers", m.workers),
		slog.Int("tasks", len(m.registry.names())),
	)
	return nil
}

// Stop waits for running jobs to finish or ctx to expire.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return ErrNotStarted
	}
	if m.workers {
		if err := m.client.Stop(ctx); err != nil {
			return fmt.Errorf("job: stop client: %w", err)
		}
	}

	m.started = false
	m.logger.Info("job manager stopped")
	return nil
}

// Enqueue inserts a job and returns its ID.
func (m *Manager) Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) (int64, error) {
	if err := m.known(name); err != nil {
		return 0, err
	}
	args, insertOpts, err := buildJobArgs(name, payload, opts...)
	if err != nil {
		return 0, err
	}
	res, err := m.client.Insert(ctx, args, insertOpts)
	if err != nil {
		return 0, fmt.Errorf("job: enqueue: %w", err)
	}
	return res.Job.ID, nil
}

// EnqueueTx inserts a job that becomes visible when tx commits.
func (m *Manager) EnqueueTx(ctx context.Context, tx pgx.Tx, name string, payload any, opts ...EnqueueOption) (int64, error) {
	if err := m.known(name); err != nil {
		return 0, err
	}
	args, insertOpts, err := buildJobArgs(name, payload, opts...)
	if err != nil {
		return 0, err
	}
	res, err := m.client.InsertTx(ctx, tx, args, insertOpts)
	if err != nil {
		return 0, fmt.Errorf("job: enqueue tx: %w", err)
	}
	return res.Job.ID, nil
}

// Cancel cancels a job. A running job sees its context cancelled; a queued
// or scheduled one never starts. The returned state is the job's state
// after the request.
func (m *Manager) Cancel(ctx context.Context, jobID int64) (rivertype.JobState, error) {
	row, err := m.client.JobCancel(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("job: cancel %d: %w", jobID, err)
	}
	return row.State, nil
}

// known rejects unregistered task names. Insert-only managers cannot know
// the worker's registry and accept every name.
func (m *Manager) known(name string) error {
	if !m.workers {
		return nil
	}
	if _, ok := m.registry.get(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return nil
}

// Healthcheck reports whether the manager runs and the pool answers.
func Healthcheck(m *Manager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if m == nil {
			return errors.Join(ErrHealthcheckFailed, errors.New("manager is nil"))
		}
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if !started {
			return errors.Join(ErrHealthcheckFailed, ErrNotStarted)
		}
		if err := m.pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Migrate applies River's own schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), &rivermigrate.Config{Logger: log})
	if err != nil {
		return errors.Join(ErrMigrate, err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return errors.Join(ErrMigrate, err)
	}
	for _, v := range res.Versions {
		log.InfoContext(ctx, "queue migration applied", slog.Int("version", v.Version))
	}
	return nil
}

// taskArgs is the single River job kind carrying every task.
type taskArgs struct {
	TaskName string          `json:"task_name"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

func (taskArgs) Kind() string { return taskKind }

type taskWorker struct {
	river.WorkerDefaults[taskArgs]
	registry *taskRegistry
	logger   *slog.Logger
}

func (w *taskWorker) Work(ctx context.Context, job *river.Job[taskArgs]) error {
	executor, ok := w.registry.get(job.Args.TaskName)
	if !ok {
		// Retrying cannot make an unknown task known.
		return river.JobCancel(fmt.Errorf("%w: %s", ErrUnknownTask, job.Args.TaskName))
	}

	log := w.logger.With(
		slog.String("task", job.Args.TaskName),
		slog.Int64("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
	)
	log.DebugContext(ctx, "executing task")

	if err := executor.Execute(WithJobID(ctx, job.ID), job.Args.Payload); err != nil {
		log.ErrorContext(ctx, "task failed", slog.Any("error", err))
		if errors.Is(err, ErrInvalidPayload) {
			return river.JobCancel(err)
		}
		return err
	}

	log.DebugContext(ctx, "task completed")
	return nil
}

type cronSchedule struct {
	schedule cron.Schedule
}

func (c cronSchedule) Next(current time.Time) time.Time {
	return c.schedule.Next(current)
}

func parseCronSchedule(expr string) (river.PeriodicSchedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return cronSchedule{schedule: schedule}, nil
}
