package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dojohq/crm-automation/internal/domain"
	"github.com/dojohq/crm-automation/internal/pkg/logger"
	"github.com/dojohq/crm-automation/internal/resolver"
)

// ProcessAutomations runs one scheduler pass: claim due enrollments and
// advance each through its current step. Errors in one enrollment never
// touch its siblings; the pass itself only fails when nothing could be
// claimed at all.
//
// Returns how many enrollments were processed.
func (e *Engine) ProcessAutomations(ctx context.Context) (int, error) {
	now := e.now().UTC()
	due, err := e.enrollments.ClaimDue(ctx, e.opts.BatchSize, now, e.opts.ClaimLease)
	if err != nil {
		return 0, fmt.Errorf("claim due enrollments: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	logger.Debug("processing due enrollments", "count", len(due))

	processed := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		if err := e.processEnrollment(ctx, &due[i]); err != nil {
			logger.Error("enrollment processing failed",
				"enrollment_id", due[i].ID, "sequence_id", due[i].SequenceID, "error", err)
		}
		processed++
	}
	return processed, nil
}

// processEnrollment executes the enrollment's current step and advances the
// state machine.
func (e *Engine) processEnrollment(ctx context.Context, enr *domain.Enrollment) error {
	if enr.CurrentStepID == nil {
		// Nothing left to run.
		return e.complete(ctx, enr)
	}

	step, err := e.sequences.GetStep(ctx, *enr.CurrentStepID)
	if err != nil {
		return fmt.Errorf("load step: %w", err)
	}
	if step == nil {
		// The step was edited away mid-flight.
		return e.failStep(ctx, enr, *enr.CurrentStepID, "current step no longer exists")
	}

	switch step.StepType {
	case domain.StepWait:
		// Becoming due is the wait elapsing; just move on.
		return e.advance(ctx, enr, step, "wait elapsed")

	case domain.StepSendSMS, domain.StepSendEmail:
		// Pending record first, so a crash mid-dispatch still leaves a trace
		// of the attempt.
		e.logStep(ctx, enr.ID, step.ID, domain.StepLogPending, "dispatching")
		if err := e.dispatch(ctx, enr, step); err != nil {
			return e.failStep(ctx, enr, step.ID, err.Error())
		}
		return e.advance(ctx, enr, step, "dispatched")

	case domain.StepEnd:
		e.logStep(ctx, enr.ID, step.ID, domain.StepLogCompleted, "end reached")
		return e.complete(ctx, enr)

	default:
		return e.failStep(ctx, enr, step.ID, fmt.Sprintf("unknown step type %q", step.StepType))
	}
}

// dispatch resolves the step's template and sends via the provider, bounded
// by the configured timeout.
func (e *Engine) dispatch(ctx context.Context, enr *domain.Enrollment, step *domain.Step) error {
	recipient, err := e.recipients.Get(ctx, enr.EnrolledType, enr.EnrolledID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}

	settings, err := e.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	body := resolver.Resolve(step.Message, *recipient, settings)

	ctx, cancel := context.WithTimeout(ctx, e.opts.DispatchTimeout)
	defer cancel()

	switch step.StepType {
	case domain.StepSendSMS:
		if recipient.Phone == "" {
			return fmt.Errorf("recipient has no phone number")
		}
		if err := e.dispatcher.SendSMS(ctx, recipient.Phone, body); err != nil {
			return fmt.Errorf("send sms: %w", err)
		}
		logger.Info("sms sent", "enrollment_id", enr.ID, "step_id", step.ID, "phone", recipient.Phone)

	case domain.StepSendEmail:
		if recipient.Email == "" {
			return fmt.Errorf("recipient has no email address")
		}
		subject := resolver.Resolve(step.Subject, *recipient, settings)
		if err := e.dispatcher.SendEmail(ctx, recipient.Email, subject, body, ""); err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		logger.Info("email sent", "enrollment_id", enr.ID, "step_id", step.ID, "email", recipient.Email)
	}
	return nil
}

// advance moves the enrollment past the given step. Running off the end of
// the sequence, or into an end step, completes the enrollment.
func (e *Engine) advance(ctx context.Context, enr *domain.Enrollment, from *domain.Step, detail string) error {
	e.logStep(ctx, enr.ID, from.ID, domain.StepLogCompleted, detail)

	next, err := e.sequences.NextStep(ctx, enr.SequenceID, from.StepOrder)
	if err != nil {
		return fmt.Errorf("load next step: %w", err)
	}
	if next == nil || next.StepType == domain.StepEnd {
		return e.complete(ctx, enr)
	}

	now := e.now().UTC()
	if err := e.enrollments.Advance(ctx, enr.ID, next.ID, e.dueAt(next, now)); err != nil {
		return fmt.Errorf("advance enrollment: %w", err)
	}
	logger.Debug("enrollment advanced",
		"enrollment_id", enr.ID, "step_order", next.StepOrder, "step_type", next.StepType)
	return nil
}

// complete marks the enrollment finished and refreshes the sequence's
// derived counters.
func (e *Engine) complete(ctx context.Context, enr *domain.Enrollment) error {
	now := e.now().UTC()
	if err := e.enrollments.Complete(ctx, enr.ID, now); err != nil {
		return fmt.Errorf("complete enrollment: %w", err)
	}
	if err := e.sequences.RefreshCounters(ctx, enr.SequenceID); err != nil {
		logger.Warn("refresh counters failed", "sequence_id", enr.SequenceID, "error", err)
	}
	logger.Info("enrollment completed", "enrollment_id", enr.ID, "sequence_id", enr.SequenceID)
	return nil
}

// failStep records a failed attempt. The enrollment becomes due again for
// retry, or moves to dead_letter once the attempt budget is spent.
func (e *Engine) failStep(ctx context.Context, enr *domain.Enrollment, stepID uuid.UUID, detail string) error {
	e.logStep(ctx, enr.ID, stepID, domain.StepLogFailed, detail)

	status, err := e.enrollments.RecordFailure(ctx, enr.ID, e.now().UTC(), e.opts.MaxStepAttempts)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	if status == domain.EnrollmentDeadLetter {
		logger.Error("enrollment dead-lettered",
			"enrollment_id", enr.ID, "sequence_id", enr.SequenceID, "detail", detail)
	} else {
		logger.Warn("step failed, will retry",
			"enrollment_id", enr.ID, "attempt", enr.AttemptCount+1, "detail", detail)
	}
	return fmt.Errorf("step failed: %s", detail)
}

// RequeueDeadLetter puts a dead_letter enrollment back into rotation with a
// fresh attempt budget. Operator-facing; exposed through the API.
func (e *Engine) RequeueDeadLetter(ctx context.Context, enrollmentID uuid.UUID) error {
	enr, err := e.enrollments.Get(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if enr.Status != domain.EnrollmentDeadLetter {
		return fmt.Errorf("enrollment %s is %s, not dead_letter", enrollmentID, enr.Status)
	}
	if err := e.enrollments.Requeue(ctx, enrollmentID, e.now().UTC()); err != nil {
		return fmt.Errorf("requeue enrollment: %w", err)
	}
	logger.Info("enrollment requeued", "enrollment_id", enrollmentID)
	return nil
}

// logStep appends an audit record. Audit failures are logged and swallowed;
// they never affect the state machine.
func (e *Engine) logStep(ctx context.Context, enrollmentID, stepID uuid.UUID, status domain.StepLogStatus, detail string) {
	rec := &domain.StepExecutionRecord{
		ID:           uuid.New(),
		EnrollmentID: enrollmentID,
		StepID:       stepID,
		Status:       status,
		Detail:       detail,
		ExecutedAt:   e.now().UTC(),
	}
	if err := e.enrollments.LogStep(ctx, rec); err != nil {
		logger.Warn("step log write failed", "enrollment_id", enrollmentID, "error", err)
	}
}
