package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dojohq/crm-automation/internal/domain"
)

// Sentinel errors for the engine's store layer.
var (
	// ErrAlreadyEnrolled is returned by CreateEnrollment when an active
	// enrollment already exists for the same (sequence, recipient) tuple.
	ErrAlreadyEnrolled = errors.New("recipient already actively enrolled")

	// ErrEnrollmentNotFound is returned when an enrollment id does not exist.
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	// ErrRecipientNotFound is returned when a lead or student id does not
	// resolve to a row.
	ErrRecipientNotFound = errors.New("recipient not found")
)

// SequenceStore is the engine's read view of sequences and steps.
type SequenceStore interface {
	// ListActiveByTrigger returns all active sequences for a trigger type.
	ListActiveByTrigger(ctx context.Context, trigger domain.TriggerType) ([]domain.Sequence, error)

	// FirstStep returns the step with the lowest step_order, or nil if the
	// sequence has no steps.
	FirstStep(ctx context.Context, sequenceID uuid.UUID) (*domain.Step, error)

	// GetStep returns a single step by id, or nil if it no longer exists.
	GetStep(ctx context.Context, stepID uuid.UUID) (*domain.Step, error)

	// NextStep returns the step following afterOrder in the sequence, or
	// nil when afterOrder is the last step.
	NextStep(ctx context.Context, sequenceID uuid.UUID, afterOrder int) (*domain.Step, error)

	// RefreshCounters recomputes the sequence's enrollment and completion
	// counters from the enrollments table.
	RefreshCounters(ctx context.Context, sequenceID uuid.UUID) error
}

// EnrollmentStore owns the enrollment rows, the engine's only shared
// mutable state.
type EnrollmentStore interface {
	// Get returns a single enrollment. Returns ErrEnrollmentNotFound if it
	// doesn't exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error)

	// Create inserts a new active enrollment. Returns ErrAlreadyEnrolled
	// when an active enrollment already exists for the tuple.
	Create(ctx context.Context, e *domain.Enrollment) error

	// HasActive reports whether an active enrollment exists for the tuple.
	HasActive(ctx context.Context, sequenceID uuid.UUID, rt domain.RecipientType, recipientID uuid.UUID) (bool, error)

	// ClaimDue atomically claims up to limit due enrollments by pushing
	// their next_execution_at into the future, so concurrent schedulers
	// never process the same row twice. Claimed rows are returned in
	// next_execution_at order.
	ClaimDue(ctx context.Context, limit int, now time.Time, leaseFor time.Duration) ([]domain.Enrollment, error)

	// Advance moves the enrollment to a new current step and due time,
	// resetting its attempt counter.
	Advance(ctx context.Context, id uuid.UUID, stepID uuid.UUID, nextExecutionAt time.Time) error

	// Complete marks the enrollment completed.
	Complete(ctx context.Context, id uuid.UUID, completedAt time.Time) error

	// RecordFailure increments the attempt counter and makes the enrollment
	// due again at retryAt. When the counter reaches maxAttempts the row
	// moves to dead_letter instead. Returns the resulting status.
	RecordFailure(ctx context.Context, id uuid.UUID, retryAt time.Time, maxAttempts int) (domain.EnrollmentStatus, error)

	// Requeue resets a dead_letter enrollment to active with a zero attempt
	// counter, due immediately.
	Requeue(ctx context.Context, id uuid.UUID, now time.Time) error

	// LogStep appends a step execution record for audit.
	LogStep(ctx context.Context, rec *domain.StepExecutionRecord) error
}

// RecipientStore reads leads and students. The engine never writes them.
type RecipientStore interface {
	// Get returns the recipient for dispatch and variable substitution.
	// Returns ErrRecipientNotFound for unknown ids.
	Get(ctx context.Context, rt domain.RecipientType, id uuid.UUID) (*domain.Recipient, error)
}

// SettingsSource provides the business settings snapshot used for
// variable substitution. settings.Cache satisfies it.
type SettingsSource interface {
	Get(ctx context.Context) (domain.BusinessSettings, error)
}

// Dispatcher sends outbound messages. Fire-and-forget: the state machine
// never awaits delivery receipts.
type Dispatcher interface {
	SendSMS(ctx context.Context, toPhone, body string) error
	SendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error
}
