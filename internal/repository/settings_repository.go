package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/crm-sms-fallback/internal/errors"
	"github.com/unclebandit/crm-sms-fallback/internal/model"
)

type SettingsRepository struct {
	DB *sql.DB
}

// Get reads the integrations settings row. Missing quiet-hours bounds come
// back as empty strings.
func (r *SettingsRepository) Get(ctx context.Context) (*model.IntegrationSettings, error) {
	query := `
		SELECT zapi_enabled, wa_auto_sms_fallback_enabled, quiet_hours_enabled,
		       COALESCE(quiet_hours_start, ''), COALESCE(quiet_hours_end, '')
		FROM integrations_settings
		LIMIT 1
	`
	var s model.IntegrationSettings
	err := r.DB.QueryRowContext(ctx, query).Scan(
		&s.ZAPIEnabled, &s.WAAutoSMSFallbackEnabled, &s.QuietHoursEnabled, &s.QuietHoursStart, &s.QuietHoursEnd,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrSettingsNotFound
		}
		return nil, errors.Wrap(err, "get integration settings")
	}
	return &s, nil
}
