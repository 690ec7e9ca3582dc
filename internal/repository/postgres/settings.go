package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dojohq/crm-automation/internal/domain"
)

// SettingsRepo reads and writes the single business settings row.
type SettingsRepo struct{ db *sql.DB }

// NewSettingsRepo creates a Postgres-backed settings repository.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// GetBusinessSettings returns the settings row. A missing row yields zero
// settings rather than an error so a fresh install still sends messages
// (with empty business tokens).
func (r *SettingsRepo) GetBusinessSettings(ctx context.Context) (domain.BusinessSettings, error) {
	var s domain.BusinessSettings
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(business_name,''), COALESCE(ai_name,''),
		       COALESCE(contact_email,''), COALESCE(contact_phone,''),
		       COALESCE(base_url,'')
		FROM crm_settings
		WHERE id = 1
	`).Scan(&s.BusinessName, &s.AIName, &s.ContactEmail, &s.ContactPhone, &s.BaseURL)
	if err == sql.ErrNoRows {
		return domain.BusinessSettings{}, nil
	}
	if err != nil {
		return domain.BusinessSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// UpdateBusinessSettings upserts the settings row. Callers are expected to
// invalidate the settings cache afterwards.
func (r *SettingsRepo) UpdateBusinessSettings(ctx context.Context, s domain.BusinessSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_settings (id, business_name, ai_name, contact_email, contact_phone, base_url, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			business_name = EXCLUDED.business_name,
			ai_name = EXCLUDED.ai_name,
			contact_email = EXCLUDED.contact_email,
			contact_phone = EXCLUDED.contact_phone,
			base_url = EXCLUDED.base_url,
			updated_at = NOW()
	`, s.BusinessName, s.AIName, s.ContactEmail, s.ContactPhone, s.BaseURL)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}
