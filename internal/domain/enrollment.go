package domain

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentStatus enumerates the lifecycle states of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive     EnrollmentStatus = "active"
	EnrollmentCompleted  EnrollmentStatus = "completed"
	EnrollmentDeadLetter EnrollmentStatus = "dead_letter"
)

// Enrollment is one recipient's traversal of one sequence. At most one
// active enrollment may exist per (SequenceID, EnrolledType, EnrolledID).
type Enrollment struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	SequenceID      uuid.UUID        `json:"sequence_id" db:"sequence_id"`
	EnrolledType    RecipientType    `json:"enrolled_type" db:"enrolled_type"`
	EnrolledID      uuid.UUID        `json:"enrolled_id" db:"enrolled_id"`
	CurrentStepID   *uuid.UUID       `json:"current_step_id" db:"current_step_id"`
	Status          EnrollmentStatus `json:"status" db:"status"`
	AttemptCount    int              `json:"attempt_count" db:"attempt_count"`
	NextExecutionAt time.Time        `json:"next_execution_at" db:"next_execution_at"`
	CompletedAt     *time.Time       `json:"completed_at" db:"completed_at"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true once the enrollment can no longer advance.
func (e *Enrollment) IsTerminal() bool {
	return e.Status == EnrollmentCompleted || e.Status == EnrollmentDeadLetter
}

// StepLogStatus enumerates the outcome of one step attempt.
type StepLogStatus string

const (
	StepLogPending   StepLogStatus = "pending"
	StepLogCompleted StepLogStatus = "completed"
	StepLogFailed    StepLogStatus = "failed"
)

// StepExecutionRecord is one audit row per step attempt. Diagnostics only;
// the engine never reads these back for control flow.
type StepExecutionRecord struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	EnrollmentID uuid.UUID     `json:"enrollment_id" db:"enrollment_id"`
	StepID       uuid.UUID     `json:"step_id" db:"step_id"`
	Status       StepLogStatus `json:"status" db:"status"`
	Detail       string        `json:"detail" db:"detail"`
	ExecutedAt   time.Time     `json:"executed_at" db:"executed_at"`
}
