package job

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
)

// taskExecutor runs a job from its raw JSON payload.
type taskExecutor interface {
	Execute(ctx context.Context, payload json.RawMessage) error
}

// taskRegistry maps task names to executors. It is filled by options
// before the Manager exists and only read afterwards.
type taskRegistry struct {
	executors map[string]taskExecutor
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{executors: map[string]taskExecutor{}}
}

func (r *taskRegistry) register(name string, e taskExecutor) { r.executors[name] = e }

func (r *taskRegistry) get(name string) (taskExecutor, bool) {
	e, ok := r.executors[name]
	return e, ok
}

func (r *taskRegistry) names() []string {
	return slices.Sorted(maps.Keys(r.executors))
}

// typedTask decodes the payload into P before calling Handle.
type typedTask[P any, T interface {
	Name() string
	Handle(context.Context, P) error
}] struct {
	task T
}

func newTaskWrapper[P any, T interface {
	Name() string
	Handle(context.Context, P) error
}](task T) *typedTask[P, T] {
	return &typedTask[P, T]{task: task}
}

func (t *typedTask[P, T]) Execute(ctx context.Context, raw json.RawMessage) error {
	var p P
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return errors.Join(ErrInvalidPayload, err)
		}
	}
	return t.task.Handle(ctx, p)
}

// scheduledTask adapts a periodic handler that takes no payload.
type scheduledTask func(context.Context) error

func (f scheduledTask) Execute(ctx context.Context, _ json.RawMessage) error {
	return f(ctx)
}

type jobIDKey struct{}

// WithJobID stores the running job's ID in ctx.
func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobID returns the ID of the job executing with ctx.
func JobID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(jobIDKey{}).(int64)
	return id, ok
}
