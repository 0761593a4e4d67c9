package creature

import "errors"

var (
	// ErrNotFound reports an unknown entity id.
	ErrNotFound = errors.New("entity not found")
	// ErrNotAvailable reports an entity whose status did not match the expected one.
	ErrNotAvailable = errors.New("entity not available")
	// ErrLockHolderMismatch reports an operation by a session that does not hold the lock.
	ErrLockHolderMismatch = errors.New("lock holder mismatch")
	// ErrInvalidTransition reports a status change outside the capture state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicateID reports an insert that would reuse an id.
	ErrDuplicateID = errors.New("duplicate entity id")
)

// Reason maps registry and capture errors to the reason strings sent to clients.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrNotAvailable):
		return "NotAvailable"
	case errors.Is(err, ErrLockHolderMismatch):
		return "LockHolderMismatch"
	default:
		return "Internal"
	}
}
