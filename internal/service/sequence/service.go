package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dojohq/crm-automation/internal/domain"
	"github.com/dojohq/crm-automation/internal/pkg/logger"
)

// Service implements sequence business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a sequence service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns a single sequence.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Sequence, error) {
	return s.repo.Get(ctx, id)
}

// List returns sequences matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Sequence, int, error) {
	return s.repo.List(ctx, f)
}

// GetSteps returns the sequence's ordered steps.
func (s *Service) GetSteps(ctx context.Context, id uuid.UUID) ([]domain.Step, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListSteps(ctx, id)
}

// Create validates and persists a new sequence with its steps. New
// sequences start inactive so a half-edited sequence never enrolls anyone.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Sequence, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	trigger := domain.TriggerType(input.TriggerType)
	if !trigger.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTrigger, input.TriggerType)
	}

	now := s.now().UTC()
	seq := &domain.Sequence{
		ID:          uuid.New(),
		Name:        input.Name,
		TriggerType: trigger,
		IsActive:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	steps, err := buildSteps(seq.ID, input.Steps, now)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, seq, steps); err != nil {
		return nil, err
	}
	logger.Info("sequence created", "sequence_id", seq.ID, "trigger", trigger, "steps", len(steps))
	return seq, nil
}

// Update modifies mutable sequence fields.
func (s *Service) Update(ctx context.Context, id uuid.UUID, u UpdateFields) error {
	return s.repo.Update(ctx, id, u)
}

// SetActive toggles whether the sequence accepts new enrollments.
// Deactivating never touches running enrollments; they finish on their own.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.repo.Update(ctx, id, UpdateFields{IsActive: &active}); err != nil {
		return err
	}
	logger.Info("sequence active flag changed", "sequence_id", id, "active", active)
	return nil
}

// ReplaceSteps validates and swaps the sequence's step list.
func (s *Service) ReplaceSteps(ctx context.Context, id uuid.UUID, inputs []StepInput) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	steps, err := buildSteps(id, inputs, s.now().UTC())
	if err != nil {
		return err
	}
	return s.repo.ReplaceSteps(ctx, id, steps)
}

// Delete removes a sequence. Sequences with active enrollments cannot be
// deleted; deactivate them and let enrollments drain first.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.repo.CountActiveEnrollments(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d active", ErrHasEnrollments, n)
	}
	return s.repo.Delete(ctx, id)
}

// buildSteps validates step inputs and assigns sequential step orders.
func buildSteps(sequenceID uuid.UUID, inputs []StepInput, now time.Time) ([]domain.Step, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one step is required", ErrInvalidStep)
	}

	steps := make([]domain.Step, 0, len(inputs))
	for i, in := range inputs {
		st := domain.StepType(in.StepType)
		if !st.Valid() {
			return nil, fmt.Errorf("%w: step %d has unknown type %q", ErrInvalidStep, i+1, in.StepType)
		}
		switch st {
		case domain.StepWait:
			if in.WaitMinutes <= 0 {
				return nil, fmt.Errorf("%w: step %d wait_minutes must be positive", ErrInvalidStep, i+1)
			}
		case domain.StepSendSMS:
			if in.Message == "" {
				return nil, fmt.Errorf("%w: step %d requires a message", ErrInvalidStep, i+1)
			}
		case domain.StepSendEmail:
			if in.Message == "" || in.Subject == "" {
				return nil, fmt.Errorf("%w: step %d requires subject and message", ErrInvalidStep, i+1)
			}
		case domain.StepEnd:
			if i != len(inputs)-1 {
				return nil, fmt.Errorf("%w: end step must be last", ErrInvalidStep)
			}
		}

		steps = append(steps, domain.Step{
			ID:          uuid.New(),
			SequenceID:  sequenceID,
			StepOrder:   i + 1,
			StepType:    st,
			WaitMinutes: in.WaitMinutes,
			Message:     in.Message,
			Subject:     in.Subject,
			CreatedAt:   now,
		})
	}
	return steps, nil
}

// CreateInput holds the fields for creating a new sequence.
type CreateInput struct {
	Name        string      `json:"name"`
	TriggerType string      `json:"trigger_type"`
	Steps       []StepInput `json:"steps"`
}

// StepInput holds one step definition as submitted by the API.
type StepInput struct {
	StepType    string `json:"step_type"`
	WaitMinutes int    `json:"wait_minutes"`
	Message     string `json:"message"`
	Subject     string `json:"subject"`
}
