// Package scheduler is the delayed-job queue behind reservation expiry and
// payment reminders. Delivery is at-least-once: handlers must be idempotent.
package scheduler

import (
	"context"
	"errors"
	"time"
)

// JobKind selects the worker a job is dispatched to.
type JobKind string

const (
	KindExpiry   JobKind = "reservation:expire"
	KindReminder JobKind = "reservation:remind"
)

// Job is one firing of a scheduled check for a reservation.
type Job struct {
	ID            string
	Kind          JobKind
	ReservationID string
	FireAt        time.Time
	// Attempt is 1 on first delivery and grows with each retry.
	Attempt int
}

// Outcome is how a handler finished a job it did not fail.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
)

// Handler processes a job. A nil error acks it. Any other error is transient
// and retried with backoff, unless it wraps ErrPermanent.
type Handler interface {
	Handle(ctx context.Context, job Job) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) (Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, job Job) (Outcome, error) { return f(ctx, job) }

// ErrPermanent marks failures that retrying cannot fix; the job is
// dead-lettered immediately.
var ErrPermanent = errors.New("permanent job failure")

// DeadLetter is a job that exhausted its attempts and needs an operator.
type DeadLetter struct {
	Job       Job       `json:"job"`
	LastError string    `json:"lastError"`
	FailedAt  time.Time `json:"failedAt"`
}

// Scheduler accepts fire-at jobs and dispatches them to registered handlers.
type Scheduler interface {
	// ScheduleAt enqueues a job for the reservation. Scheduling the same kind
	// for the same reservation again while the first is still held by the
	// backend is a no-op that returns the existing job id and created=false.
	ScheduleAt(ctx context.Context, kind JobKind, reservationID string, fireAt time.Time) (id string, created bool, err error)
	// Cancel removes a queued job. Unknown or already-run jobs are not an error.
	Cancel(ctx context.Context, jobID string) error
	// Handle registers the worker for a kind. Call before Start.
	Handle(kind JobKind, h Handler)
	// Start begins dispatching. It fails fast when the backend is unreachable.
	Start(ctx context.Context) error
	Shutdown()
	DeadLetters(ctx context.Context) ([]DeadLetter, error)
}

// Observer receives job results, e.g. for metrics.
type Observer interface {
	JobFinished(kind string, outcome string)
	JobFailed(kind string, deadLettered bool)
}

type nopObserver struct{}

func (nopObserver) JobFinished(string, string) {}
func (nopObserver) JobFailed(string, bool)     {}

// RetryPolicy bounds redelivery of failed jobs.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Minute}
}

// Delay is the wait before the retry that follows failed attempt n (1-based):
// BaseDelay * 2^(n-1), capped at MaxDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// JobID is deterministic per kind and reservation so duplicate scheduling collapses.
func JobID(kind JobKind, reservationID string) string {
	return string(kind) + ":" + reservationID
}
