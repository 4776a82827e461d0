package job

import "errors"

var (
	// ErrUnknownTask is returned when a job names a task that is not registered.
	ErrUnknownTask = errors.New("job: unknown task")

	// ErrInvalidPayload is returned when a payload does not decode into the task's type.
	ErrInvalidPayload = errors.New("job: invalid payload")

	ErrAlreadyStarted = errors.New("job: already started")
	ErrNotStarted     = errors.New("job: not started")

	// ErrPoolRequired is returned when the manager is built without a pool.
	ErrPoolRequired = errors.New("job: pool is required")

	// ErrHealthcheckFailed is returned by Healthcheck.
	ErrHealthcheckFailed = errors.New("job: healthcheck failed")

	// ErrMigrate is returned when the River schema cannot be applied.
	ErrMigrate = errors.New("job: failed to migrate queue schema")
)
