package sequence

import (
	"context"

	"github.com/google/uuid"

	"github.com/dojohq/crm-automation/internal/domain"
)

// Repository defines the data access contract for sequences and steps.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single sequence. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Sequence, error)

	// List returns sequences matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Sequence, int, error)

	// Create inserts a new sequence with its steps in one transaction.
	Create(ctx context.Context, seq *domain.Sequence, steps []domain.Step) error

	// Update modifies a sequence. Only non-nil fields in the update are applied.
	Update(ctx context.Context, id uuid.UUID, u UpdateFields) error

	// Delete removes a sequence, its steps, and any finished enrollment
	// history referencing it.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListSteps returns the sequence's steps ordered by step_order ASC.
	ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]domain.Step, error)

	// ReplaceSteps swaps the sequence's step list atomically. Enrollments
	// pointing at removed steps are left to the engine's dead-letter path.
	ReplaceSteps(ctx context.Context, sequenceID uuid.UUID, steps []domain.Step) error

	// CountActiveEnrollments returns how many active enrollments reference
	// the sequence.
	CountActiveEnrollments(ctx context.Context, sequenceID uuid.UUID) (int, error)
}

// ListFilter controls pagination and filtering for sequence lists.
type ListFilter struct {
	TriggerType string
	ActiveOnly  bool
	Limit       int
	Offset      int
}

// UpdateFields holds the mutable fields for a sequence update.
// Nil fields are not applied.
type UpdateFields struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}
