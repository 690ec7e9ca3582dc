// Package postgres implements the repository interfaces against PostgreSQL
// using lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dojohq/crm-automation/internal/domain"
	"github.com/dojohq/crm-automation/internal/service/sequence"
)

// SequenceRepo implements sequence.Repository and the engine's read-only
// sequence store against PostgreSQL.
type SequenceRepo struct{ db *sql.DB }

// NewSequenceRepo creates a Postgres-backed sequence repository.
func NewSequenceRepo(db *sql.DB) *SequenceRepo { return &SequenceRepo{db: db} }

const sequenceColumns = `id, name, trigger_type, is_active, enrollment_count, completed_count, created_at, updated_at`

func scanSequence(row interface{ Scan(...interface{}) error }, s *domain.Sequence) error {
	return row.Scan(&s.ID, &s.Name, &s.TriggerType, &s.IsActive,
		&s.EnrollmentCount, &s.CompletedCount, &s.CreatedAt, &s.UpdatedAt)
}

func (r *SequenceRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Sequence, error) {
	s := &domain.Sequence{}
	err := scanSequence(r.db.QueryRowContext(ctx, `
		SELECT `+sequenceColumns+`
		FROM automation_sequences
		WHERE id = $1
	`, id), s)
	if err == sql.ErrNoRows {
		return nil, sequence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sequence: %w", err)
	}
	return s, nil
}

func (r *SequenceRepo) List(ctx context.Context, f sequence.ListFilter) ([]domain.Sequence, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1
	if f.TriggerType != "" {
		where += fmt.Sprintf(" AND trigger_type = $%d", idx)
		args = append(args, f.TriggerType)
		idx++
	}
	if f.ActiveOnly {
		where += " AND is_active"
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM automation_sequences "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sequences: %w", err)
	}

	q := fmt.Sprintf(`
		SELECT `+sequenceColumns+`
		FROM automation_sequences
		%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sequences: %w", err)
	}
	defer rows.Close()

	var out []domain.Sequence
	for rows.Next() {
		var s domain.Sequence
		if err := scanSequence(rows, &s); err != nil {
			return nil, 0, fmt.Errorf("scan sequence: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SequenceRepo) Create(ctx context.Context, seq *domain.Sequence, steps []domain.Step) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO automation_sequences
			(id, name, trigger_type, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`, seq.ID, seq.Name, seq.TriggerType, seq.IsActive)
	if err != nil {
		return fmt.Errorf("insert sequence: %w", err)
	}

	if err := insertSteps(ctx, tx, seq.ID, steps); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SequenceRepo) Update(ctx context.Context, id uuid.UUID, u sequence.UpdateFields) error {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{}
	idx := 1

	if u.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *u.Name)
		idx++
	}
	if u.IsActive != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *u.IsActive)
		idx++
	}

	q := fmt.Sprintf("UPDATE automation_sequences SET %s WHERE id = $%d", strings.Join(sets, ", "), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update sequence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sequence.ErrNotFound
	}
	return nil
}

// Delete removes the sequence, its steps, and its enrollment history.
// Step log rows cascade off the enrollments. The service layer blocks the
// call while active enrollments exist; finished history goes with the
// sequence.
func (r *SequenceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM automation_enrollments WHERE sequence_id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollments: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM automation_steps WHERE sequence_id = $1`, id); err != nil {
		return fmt.Errorf("delete steps: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM automation_sequences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sequence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sequence.ErrNotFound
	}
	return tx.Commit()
}

func (r *SequenceRepo) ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]domain.Step, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sequence_id, step_order, step_type, wait_minutes,
		       COALESCE(message,''), COALESCE(subject,''), created_at
		FROM automation_steps
		WHERE sequence_id = $1
		ORDER BY step_order ASC
	`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []domain.Step
	for rows.Next() {
		var st domain.Step
		if err := rows.Scan(&st.ID, &st.SequenceID, &st.StepOrder, &st.StepType,
			&st.WaitMinutes, &st.Message, &st.Subject, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *SequenceRepo) ReplaceSteps(ctx context.Context, sequenceID uuid.UUID, steps []domain.Step) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM automation_steps WHERE sequence_id = $1`, sequenceID); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}
	if err := insertSteps(ctx, tx, sequenceID, steps); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE automation_sequences SET updated_at = NOW() WHERE id = $1`, sequenceID); err != nil {
		return fmt.Errorf("touch sequence: %w", err)
	}
	return tx.Commit()
}

func (r *SequenceRepo) CountActiveEnrollments(ctx context.Context, sequenceID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM automation_enrollments
		WHERE sequence_id = $1 AND status = 'active'
	`, sequenceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return n, nil
}

// Engine-facing reads.

func (r *SequenceRepo) ListActiveByTrigger(ctx context.Context, trigger domain.TriggerType) ([]domain.Sequence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sequenceColumns+`
		FROM automation_sequences
		WHERE trigger_type = $1 AND is_active
		ORDER BY created_at ASC
	`, trigger)
	if err != nil {
		return nil, fmt.Errorf("list active sequences: %w", err)
	}
	defer rows.Close()

	var out []domain.Sequence
	for rows.Next() {
		var s domain.Sequence
		if err := scanSequence(rows, &s); err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SequenceRepo) FirstStep(ctx context.Context, sequenceID uuid.UUID) (*domain.Step, error) {
	return r.stepQuery(ctx, `
		SELECT id, sequence_id, step_order, step_type, wait_minutes,
		       COALESCE(message,''), COALESCE(subject,''), created_at
		FROM automation_steps
		WHERE sequence_id = $1
		ORDER BY step_order ASC LIMIT 1
	`, sequenceID)
}

func (r *SequenceRepo) GetStep(ctx context.Context, stepID uuid.UUID) (*domain.Step, error) {
	return r.stepQuery(ctx, `
		SELECT id, sequence_id, step_order, step_type, wait_minutes,
		       COALESCE(message,''), COALESCE(subject,''), created_at
		FROM automation_steps
		WHERE id = $1
	`, stepID)
}

// NextStep returns the exact successor (afterOrder+1). A gap in the order
// numbering ends the sequence: the enrollment completes rather than jumping
// ahead.
func (r *SequenceRepo) NextStep(ctx context.Context, sequenceID uuid.UUID, afterOrder int) (*domain.Step, error) {
	return r.stepQuery(ctx, `
		SELECT id, sequence_id, step_order, step_type, wait_minutes,
		       COALESCE(message,''), COALESCE(subject,''), created_at
		FROM automation_steps
		WHERE sequence_id = $1 AND step_order = $2 + 1
	`, sequenceID, afterOrder)
}

// RefreshCounters recomputes the derived aggregates from the enrollments
// table so they can never drift.
func (r *SequenceRepo) RefreshCounters(ctx context.Context, sequenceID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE automation_sequences SET
			enrollment_count = (SELECT COUNT(*) FROM automation_enrollments WHERE sequence_id = $1),
			completed_count  = (SELECT COUNT(*) FROM automation_enrollments WHERE sequence_id = $1 AND status = 'completed'),
			updated_at = NOW()
		WHERE id = $1
	`, sequenceID)
	if err != nil {
		return fmt.Errorf("refresh counters: %w", err)
	}
	return nil
}

func (r *SequenceRepo) stepQuery(ctx context.Context, q string, args ...interface{}) (*domain.Step, error) {
	st := &domain.Step{}
	err := r.db.QueryRowContext(ctx, q, args...).Scan(
		&st.ID, &st.SequenceID, &st.StepOrder, &st.StepType,
		&st.WaitMinutes, &st.Message, &st.Subject, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query step: %w", err)
	}
	return st, nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, sequenceID uuid.UUID, steps []domain.Step) error {
	for _, st := range steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO automation_steps
				(id, sequence_id, step_order, step_type, wait_minutes, message, subject, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		`, st.ID, sequenceID, st.StepOrder, st.StepType, st.WaitMinutes, st.Message, st.Subject)
		if err != nil {
			return fmt.Errorf("insert step %d: %w", st.StepOrder, err)
		}
	}
	return nil
}
