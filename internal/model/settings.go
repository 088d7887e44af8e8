// internal/model/settings.go
package model

// IntegrationSettings is the single row of integrations_settings the
// fallback dispatcher reads before every run.
type IntegrationSettings struct {
	ZAPIEnabled              bool   `db:"zapi_enabled" json:"zapi_enabled"`
	WAAutoSMSFallbackEnabled bool   `db:"wa_auto_sms_fallback_enabled" json:"wa_auto_sms_fallback_enabled"`
	QuietHoursEnabled        bool   `db:"quiet_hours_enabled" json:"quiet_hours_enabled"`
	QuietHoursStart          string `db:"quiet_hours_start" json:"quiet_hours_start"` // "HH:MM"
	QuietHoursEnd            string `db:"quiet_hours_end" json:"quiet_hours_end"`
}
