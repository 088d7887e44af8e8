// internal/service/quiet_hours.go
package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/crm-sms-fallback/internal/model"
)

// campaignZone is the fixed offset quiet hours are expressed in (Brasília, UTC-3).
var campaignZone = time.FixedZone("UTC-3", -3*60*60)

// IsQuietHours reports whether now falls inside the configured
// [start, end) window. A window with start > end spans midnight.
// Malformed bounds disable the gate.
func IsQuietHours(s *model.IntegrationSettings, now time.Time) bool {
	if s == nil || !s.QuietHoursEnabled {
		return false
	}
	start, ok := parseHour(s.QuietHoursStart)
	if !ok {
		return false
	}
	end, ok := parseHour(s.QuietHoursEnd)
	if !ok {
		return false
	}

	hour := now.In(campaignZone).Hour()
	if start > end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}

// parseHour accepts "HH", "HH:MM" or "HH:MM:SS".
func parseHour(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if i := strings.IndexByte(v, ':'); i >= 0 {
		v = v[:i]
	}
	h, err := strconv.Atoi(v)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}
