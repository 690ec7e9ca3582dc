package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dojohq/crm-automation/internal/domain"
	"github.com/dojohq/crm-automation/internal/engine"
)

// EnrollmentRepo implements engine.EnrollmentStore against PostgreSQL.
//
// A partial unique index on (sequence_id, enrolled_type, enrolled_id)
// WHERE status = 'active' backs the one-active-enrollment invariant, so
// concurrent triggers can both pass the existence check and still only one
// insert wins.
type EnrollmentRepo struct{ db *sql.DB }

// NewEnrollmentRepo creates a Postgres-backed enrollment repository.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

const enrollmentColumns = `id, sequence_id, enrolled_type, enrolled_id, current_step_id,
       status, attempt_count, next_execution_at, completed_at, created_at, updated_at`

func scanEnrollment(row interface{ Scan(...interface{}) error }, e *domain.Enrollment) error {
	return row.Scan(&e.ID, &e.SequenceID, &e.EnrolledType, &e.EnrolledID, &e.CurrentStepID,
		&e.Status, &e.AttemptCount, &e.NextExecutionAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt)
}

func (r *EnrollmentRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	err := scanEnrollment(r.db.QueryRowContext(ctx, `
		SELECT `+enrollmentColumns+`
		FROM automation_enrollments
		WHERE id = $1
	`, id), e)
	if err == sql.ErrNoRows {
		return nil, engine.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

func (r *EnrollmentRepo) Create(ctx context.Context, e *domain.Enrollment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_enrollments
			(id, sequence_id, enrolled_type, enrolled_id, current_step_id,
			 status, attempt_count, next_execution_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW(), NOW())
	`, e.ID, e.SequenceID, e.EnrolledType, e.EnrolledID, e.CurrentStepID,
		e.Status, e.NextExecutionAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return engine.ErrAlreadyEnrolled
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (r *EnrollmentRepo) HasActive(ctx context.Context, sequenceID uuid.UUID, rt domain.RecipientType, recipientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM automation_enrollments
			WHERE sequence_id = $1 AND enrolled_type = $2 AND enrolled_id = $3
			  AND status = 'active'
		)
	`, sequenceID, rt, recipientID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return exists, nil
}

// ClaimDue leases a batch of due enrollments. FOR UPDATE SKIP LOCKED keeps
// concurrent schedulers from fighting over rows, and pushing
// next_execution_at forward means a claim survives worker crashes only
// until the lease expires.
func (r *EnrollmentRepo) ClaimDue(ctx context.Context, limit int, now time.Time, leaseFor time.Duration) ([]domain.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE automation_enrollments SET
			next_execution_at = $3,
			updated_at = NOW()
		WHERE id IN (
			SELECT id FROM automation_enrollments
			WHERE status = 'active' AND next_execution_at <= $1
			ORDER BY next_execution_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+enrollmentColumns,
		now, limit, now.Add(leaseFor))
	if err != nil {
		return nil, fmt.Errorf("claim due enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		var e domain.Enrollment
		if err := scanEnrollment(rows, &e); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		// Callers see the pre-lease due time semantics: the row was due.
		e.NextExecutionAt = now
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EnrollmentRepo) Advance(ctx context.Context, id uuid.UUID, stepID uuid.UUID, nextExecutionAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_enrollments SET
			current_step_id = $2,
			next_execution_at = $3,
			attempt_count = 0,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, id, stepID, nextExecutionAt)
	if err != nil {
		return fmt.Errorf("advance enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrEnrollmentNotFound
	}
	return nil
}

func (r *EnrollmentRepo) Complete(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_enrollments SET
			status = 'completed',
			completed_at = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, id, completedAt)
	if err != nil {
		return fmt.Errorf("complete enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrEnrollmentNotFound
	}
	return nil
}

func (r *EnrollmentRepo) RecordFailure(ctx context.Context, id uuid.UUID, retryAt time.Time, maxAttempts int) (domain.EnrollmentStatus, error) {
	var status domain.EnrollmentStatus
	err := r.db.QueryRowContext(ctx, `
		UPDATE automation_enrollments SET
			attempt_count = attempt_count + 1,
			status = CASE WHEN attempt_count + 1 >= $3 THEN 'dead_letter' ELSE status END,
			next_execution_at = CASE WHEN attempt_count + 1 >= $3 THEN next_execution_at ELSE $2 END,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING status
	`, id, retryAt, maxAttempts).Scan(&status)
	if err == sql.ErrNoRows {
		return "", engine.ErrEnrollmentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("record failure: %w", err)
	}
	return status, nil
}

func (r *EnrollmentRepo) Requeue(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_enrollments SET
			status = 'active',
			attempt_count = 0,
			next_execution_at = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'dead_letter'
	`, id, now)
	if err != nil {
		return fmt.Errorf("requeue enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrEnrollmentNotFound
	}
	return nil
}

func (r *EnrollmentRepo) LogStep(ctx context.Context, rec *domain.StepExecutionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_step_log
			(id, enrollment_id, step_id, status, detail, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.EnrollmentID, nullableUUID(rec.StepID), rec.Status, rec.Detail, rec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("insert step log: %w", err)
	}
	return nil
}

// ListForEnrollment returns the enrollment's audit trail, newest first.
func (r *EnrollmentRepo) ListForEnrollment(ctx context.Context, enrollmentID uuid.UUID, limit int) ([]domain.StepExecutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, enrollment_id, COALESCE(step_id, '00000000-0000-0000-0000-000000000000'),
		       status, COALESCE(detail,''), executed_at
		FROM automation_step_log
		WHERE enrollment_id = $1
		ORDER BY executed_at DESC LIMIT $2
	`, enrollmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list step log: %w", err)
	}
	defer rows.Close()

	var out []domain.StepExecutionRecord
	for rows.Next() {
		var rec domain.StepExecutionRecord
		if err := rows.Scan(&rec.ID, &rec.EnrollmentID, &rec.StepID,
			&rec.Status, &rec.Detail, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan step log: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListByStatus returns enrollments in the given status, newest first.
// Used by the API's dead-letter view.
func (r *EnrollmentRepo) ListByStatus(ctx context.Context, status domain.EnrollmentStatus, limit int) ([]domain.Enrollment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+enrollmentColumns+`
		FROM automation_enrollments
		WHERE status = $1
		ORDER BY updated_at DESC LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		var e domain.Enrollment
		if err := scanEnrollment(rows, &e); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableUUID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}
