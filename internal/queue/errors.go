package queue

import "errors"

var (
	// ErrJobNotFound is returned when a job id does not exist in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotPending is returned when an operation requires a pending job,
	// e.g. cancelling a job that has already been claimed.
	ErrJobNotPending = errors.New("job is not pending")

	// ErrJobNotFailed is returned when a manual retry targets a job that is
	// not in the failed state.
	ErrJobNotFailed = errors.New("job is not failed")

	// ErrInvalidTransition is returned on a status change the lifecycle does
	// not allow, such as completing a job that was never claimed.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrNoHandler is recorded on jobs whose type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for job type")
)

// PermanentError wraps a handler error that must not be retried regardless
// of the remaining attempt budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks a handler error as non-retryable.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
