package lock

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context ended
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Locker serializes work per key. The returned unlock func is safe to call
// more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// ApplicationKey is the lock key for one application
func ApplicationKey(applicationID string) string {
	return "lock:application:" + applicationID
}
