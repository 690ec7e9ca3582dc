package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dojohq/crm-automation/internal/domain"
	"github.com/dojohq/crm-automation/internal/engine"
)

// RecipientRepo implements engine.RecipientStore over the CRM's lead and
// student tables. Read-only: those tables belong to the wider CRM.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient reader.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

func (r *RecipientRepo) Get(ctx context.Context, rt domain.RecipientType, id uuid.UUID) (*domain.Recipient, error) {
	var table string
	switch rt {
	case domain.RecipientLead:
		table = "crm_leads"
	case domain.RecipientStudent:
		table = "crm_students"
	default:
		return nil, fmt.Errorf("unknown recipient type %q", rt)
	}

	rec := &domain.Recipient{ID: id, Type: rt}
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(first_name,''), COALESCE(last_name,''),
		       COALESCE(email,''), COALESCE(phone,'')
		FROM `+table+`
		WHERE id = $1
	`, id).Scan(&rec.FirstName, &rec.LastName, &rec.Email, &rec.Phone)
	if err == sql.ErrNoRows {
		return nil, engine.ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rt, err)
	}
	return rec, nil
}
