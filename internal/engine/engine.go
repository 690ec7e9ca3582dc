package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dojohq/crm-automation/internal/domain"
	"github.com/dojohq/crm-automation/internal/pkg/logger"
)

// Options tunes the engine. Zero values get sensible defaults.
type Options struct {
	// BatchSize caps how many due enrollments one ProcessAutomations pass
	// claims.
	BatchSize int

	// MaxStepAttempts is how many times a step may fail before the
	// enrollment moves to dead_letter.
	MaxStepAttempts int

	// DispatchTimeout bounds each outbound provider call.
	DispatchTimeout time.Duration

	// ClaimLease is how far ClaimDue pushes next_execution_at into the
	// future. A worker that crashes mid-batch loses its claim after the
	// lease expires and the rows become due again.
	ClaimLease time.Duration

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MaxStepAttempts <= 0 {
		o.MaxStepAttempts = 5
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 10 * time.Second
	}
	if o.ClaimLease <= 0 {
		o.ClaimLease = 5 * time.Minute
	}
}

// Engine matches trigger events to sequences and drives enrollments
// through their steps. Safe for concurrent use.
type Engine struct {
	sequences   SequenceStore
	enrollments EnrollmentStore
	recipients  RecipientStore
	settings    SettingsSource
	dispatcher  Dispatcher
	opts        Options
	now         func() time.Time
}

// New creates an engine over the given stores and dispatcher.
func New(seq SequenceStore, enr EnrollmentStore, rec RecipientStore, settings SettingsSource, d Dispatcher, opts Options) *Engine {
	opts.applyDefaults()
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		sequences:   seq,
		enrollments: enr,
		recipients:  rec,
		settings:    settings,
		dispatcher:  d,
		opts:        opts,
		now:         now,
	}
}

// TriggerAutomation enrolls the recipient into every active sequence bound
// to the given trigger type. Re-triggering while an active enrollment
// exists for the same sequence is a no-op for that sequence.
//
// Only argument validation errors surface to the caller; enrollment
// failures are logged per sequence and never propagate, so a flaky
// database cannot crash the business event that fired the trigger.
func (e *Engine) TriggerAutomation(ctx context.Context, trigger domain.TriggerType, rt domain.RecipientType, recipientID uuid.UUID) error {
	if !trigger.Valid() {
		return fmt.Errorf("unknown trigger type %q", trigger)
	}
	if !rt.Valid() {
		return fmt.Errorf("unknown recipient type %q", rt)
	}

	seqs, err := e.sequences.ListActiveByTrigger(ctx, trigger)
	if err != nil {
		logger.Error("trigger: list sequences failed", "trigger", trigger, "error", err)
		return nil
	}

	for _, seq := range seqs {
		if err := e.enroll(ctx, seq, rt, recipientID); err != nil {
			logger.Error("trigger: enroll failed",
				"sequence_id", seq.ID, "trigger", trigger,
				"recipient_type", rt, "recipient_id", recipientID, "error", err)
		}
	}
	return nil
}

func (e *Engine) enroll(ctx context.Context, seq domain.Sequence, rt domain.RecipientType, recipientID uuid.UUID) error {
	active, err := e.enrollments.HasActive(ctx, seq.ID, rt, recipientID)
	if err != nil {
		return fmt.Errorf("check active enrollment: %w", err)
	}
	if active {
		logger.Debug("already enrolled, skipping",
			"sequence_id", seq.ID, "recipient_type", rt, "recipient_id", recipientID)
		return nil
	}

	first, err := e.sequences.FirstStep(ctx, seq.ID)
	if err != nil {
		return fmt.Errorf("load first step: %w", err)
	}
	if first == nil {
		// Malformed sequence: nothing to run. Skip, never error.
		logger.Warn("sequence has no steps, skipping enrollment", "sequence_id", seq.ID)
		return nil
	}

	now := e.now().UTC()
	enrollment := &domain.Enrollment{
		ID:              uuid.New(),
		SequenceID:      seq.ID,
		EnrolledType:    rt,
		EnrolledID:      recipientID,
		CurrentStepID:   &first.ID,
		Status:          domain.EnrollmentActive,
		NextExecutionAt: e.dueAt(first, now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.enrollments.Create(ctx, enrollment); err != nil {
		if errors.Is(err, ErrAlreadyEnrolled) {
			// Lost a race with a concurrent trigger; the other enrollment wins.
			logger.Debug("concurrent enrollment exists, skipping",
				"sequence_id", seq.ID, "recipient_id", recipientID)
			return nil
		}
		return fmt.Errorf("create enrollment: %w", err)
	}

	if err := e.sequences.RefreshCounters(ctx, seq.ID); err != nil {
		logger.Warn("refresh counters failed", "sequence_id", seq.ID, "error", err)
	}

	logger.Info("recipient enrolled",
		"sequence_id", seq.ID, "enrollment_id", enrollment.ID,
		"recipient_type", rt, "recipient_id", recipientID,
		"first_step", first.StepType, "due_at", enrollment.NextExecutionAt)

	// Non-wait first steps run right away, best-effort. A failure here never
	// rolls back the enrollment: it is already due, so the next scheduler
	// pass retries it.
	if first.StepType != domain.StepWait {
		if err := e.processEnrollment(ctx, enrollment); err != nil {
			logger.Warn("immediate first step failed, scheduler will retry",
				"enrollment_id", enrollment.ID, "error", err)
		}
	}
	return nil
}

// dueAt returns when an enrollment entering the given step becomes due:
// wait steps after their delay, everything else immediately.
func (e *Engine) dueAt(step *domain.Step, now time.Time) time.Time {
	if step.StepType == domain.StepWait {
		return now.Add(time.Duration(step.WaitMinutes) * time.Minute)
	}
	return now
}
