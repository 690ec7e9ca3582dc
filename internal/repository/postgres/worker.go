package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkerRepo implements engine.WorkerStore: operational bookkeeping for
// scheduler instances.
type WorkerRepo struct{ db *sql.DB }

// NewWorkerRepo creates a Postgres-backed worker registry.
func NewWorkerRepo(db *sql.DB) *WorkerRepo { return &WorkerRepo{db: db} }

func (r *WorkerRepo) RegisterWorker(ctx context.Context, id uuid.UUID, hostname string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_workers (id, hostname, started_at, last_heartbeat_at, processed_count)
		VALUES ($1, $2, $3, $3, 0)
	`, id, hostname, now)
	if err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	return nil
}

func (r *WorkerRepo) Heartbeat(ctx context.Context, id uuid.UUID, now time.Time, processed int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE automation_workers SET last_heartbeat_at = $2, processed_count = $3
		WHERE id = $1
	`, id, now, processed)
	if err != nil {
		return fmt.Errorf("worker heartbeat: %w", err)
	}
	return nil
}

func (r *WorkerRepo) DeregisterWorker(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM automation_workers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deregister worker: %w", err)
	}
	return nil
}

// PruneStale removes worker rows whose heartbeat is older than maxAge.
// Crashed workers never deregister themselves.
func (r *WorkerRepo) PruneStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM automation_workers WHERE last_heartbeat_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(maxAge.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("prune stale workers: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
