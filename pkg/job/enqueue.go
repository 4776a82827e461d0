package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/riverqueue/river"
)

type enqueueConfig struct {
	scheduledAt time.Time
	queue       string
	tags        []string
	maxAttempts int
}

// EnqueueOption configures a single enqueue call.
type EnqueueOption func(*enqueueConfig)

// InQueue routes the job to a named queue.
func InQueue(name string) EnqueueOption {
	return func(c *enqueueConfig) {
		if name != "" {
			c.queue = name
		}
	}
}

// ScheduledAt holds the job until t. Scheduled sends use it.
func ScheduledAt(t time.Time) EnqueueOption {
	return func(c *enqueueConfig) {
		c.scheduledAt = t
	}
}

// MaxAttempts caps retries. Delivery jobs use 1 so recipients are never
// mailed twice by a retry.
func MaxAttempts(n int) EnqueueOption {
	return func(c *enqueueConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// Tags adds metadata tags to the job.
func Tags(tags ...string) EnqueueOption {
	return func(c *enqueueConfig) {
		c.tags = append(c.tags, tags...)
	}
}

// buildJobArgs wraps the task name and JSON payload into River args.
func buildJobArgs(name string, payload any, opts ...EnqueueOption) (*taskArgs, *river.InsertOpts, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return nil, nil, fmt.Errorf("job: marshal payload: %w", err)
		}
	}

	c := &enqueueConfig{}
	for _, opt := range opts {
		opt(c)
	}

	return &taskArgs{TaskName: name, Payload: raw}, &river.InsertOpts{
		Queue:       c.queue,
		ScheduledAt: c.scheduledAt,
		MaxAttempts: c.maxAttempts,
		Tags:        c.tags,
	}, nil
}
