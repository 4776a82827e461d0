package redis

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("redis: empty connection URL")
	ErrFailedToParseURL   = errors.New("redis: failed to parse connection URL")
	ErrConnectionFailed   = errors.New("redis: failed to establish connection")
	ErrHealthcheckFailed  = errors.New("redis: healthcheck failed")

	// ErrLockNotAcquired is returned when another holder keeps the lock
	// for longer than the caller is willing to wait.
	ErrLockNotAcquired = errors.New("redis: lock not acquired")
)
