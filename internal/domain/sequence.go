package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType enumerates the business events that can start a sequence.
type TriggerType string

const (
	TriggerNewLead         TriggerType = "new_lead"
	TriggerTrialScheduled  TriggerType = "trial_scheduled"
	TriggerMissedClass     TriggerType = "missed_class"
	TriggerRenewalDue      TriggerType = "renewal_due"
	TriggerInactiveStudent TriggerType = "inactive_student"
	TriggerEnrollment      TriggerType = "enrollment"
)

// KnownTriggerTypes lists every trigger the engine accepts.
var KnownTriggerTypes = []TriggerType{
	TriggerNewLead,
	TriggerTrialScheduled,
	TriggerMissedClass,
	TriggerRenewalDue,
	TriggerInactiveStudent,
	TriggerEnrollment,
}

// Valid reports whether t is one of the known trigger types.
func (t TriggerType) Valid() bool {
	for _, k := range KnownTriggerTypes {
		if t == k {
			return true
		}
	}
	return false
}

// StepType is the closed set of actions a step can perform.
type StepType string

const (
	StepWait      StepType = "wait"
	StepSendSMS   StepType = "send_sms"
	StepSendEmail StepType = "send_email"
	StepEnd       StepType = "end"
)

// Valid reports whether s is one of the known step types.
func (s StepType) Valid() bool {
	switch s {
	case StepWait, StepSendSMS, StepSendEmail, StepEnd:
		return true
	}
	return false
}

// Sequence is an ordered automation definition bound to a trigger event.
// EnrollmentCount and CompletedCount are derived aggregates recomputed from
// the enrollments table, never incremented independently.
type Sequence struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	Name            string      `json:"name" db:"name"`
	TriggerType     TriggerType `json:"trigger_type" db:"trigger_type"`
	IsActive        bool        `json:"is_active" db:"is_active"`
	EnrollmentCount int         `json:"enrollment_count" db:"enrollment_count"`
	CompletedCount  int         `json:"completed_count" db:"completed_count"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// Step is one action within a sequence. StepOrder is 1-based and unique per
// sequence. WaitMinutes is meaningful only for wait steps; Message holds the
// SMS or email body template, Subject the email subject template.
type Step struct {
	ID          uuid.UUID `json:"id" db:"id"`
	SequenceID  uuid.UUID `json:"sequence_id" db:"sequence_id"`
	StepOrder   int       `json:"step_order" db:"step_order"`
	StepType    StepType  `json:"step_type" db:"step_type"`
	WaitMinutes int       `json:"wait_minutes" db:"wait_minutes"`
	Message     string    `json:"message" db:"message"`
	Subject     string    `json:"subject" db:"subject"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
