package queue

import "time"

// maxBackoffShift bounds the exponent so the delay computation cannot
// overflow a time.Duration.
const maxBackoffShift = 16

// Outcome is the next state decided for a job after a reported failure.
type Outcome struct {
	Status Status
	// Delay before the job becomes due again. Zero unless Status is pending.
	Delay time.Duration
}

// Decide maps a failure report to the job's next state. attempts is the
// value already incremented by the claim step. Pure function so the retry
// policy is testable without a store.
func Decide(attempts, maxAttempts int, retry bool, base time.Duration) Outcome {
	if !retry || attempts >= maxAttempts {
		return Outcome{Status: StatusFailed}
	}

	if base <= 0 {
		base = DefaultBackoffBase
	}

	shift := attempts
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	return Outcome{
		Status: StatusPending,
		Delay:  base * (1 << shift),
	}
}
