package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/crm-sms-fallback/internal/model"
)

// atLocal returns the instant at which the UTC-3 wall clock shows hour:00.
func atLocal(hour int) time.Time {
	return time.Date(2025, 5, 10, hour, 0, 0, 0, campaignZone)
}

func TestIsQuietHoursOvernightWindow(t *testing.T) {
	s := &model.IntegrationSettings{QuietHoursEnabled: true, QuietHoursStart: "21:00", QuietHoursEnd: "08:00"}

	assert.True(t, IsQuietHours(s, atLocal(22)))
	assert.True(t, IsQuietHours(s, atLocal(3)))
	assert.True(t, IsQuietHours(s, atLocal(21)))
	assert.False(t, IsQuietHours(s, atLocal(8)))
	assert.False(t, IsQuietHours(s, atLocal(12)))
}

func TestIsQuietHoursSameDayWindow(t *testing.T) {
	s := &model.IntegrationSettings{QuietHoursEnabled: true, QuietHoursStart: "12", QuietHoursEnd: "14:30"}

	assert.False(t, IsQuietHours(s, atLocal(11)))
	assert.True(t, IsQuietHours(s, atLocal(12)))
	assert.True(t, IsQuietHours(s, atLocal(13)))
	assert.False(t, IsQuietHours(s, atLocal(14)))
}

func TestIsQuietHoursUsesFixedOffset(t *testing.T) {
	s := &model.IntegrationSettings{QuietHoursEnabled: true, QuietHoursStart: "21:00", QuietHoursEnd: "08:00"}

	// 01:00 UTC is 22:00 the previous day in UTC-3.
	assert.True(t, IsQuietHours(s, time.Date(2025, 5, 10, 1, 0, 0, 0, time.UTC)))
	// 15:00 UTC is 12:00 in UTC-3.
	assert.False(t, IsQuietHours(s, time.Date(2025, 5, 10, 15, 0, 0, 0, time.UTC)))
}

func TestIsQuietHoursDisabledOrMalformed(t *testing.T) {
	assert.False(t, IsQuietHours(nil, atLocal(22)))
	assert.False(t, IsQuietHours(&model.IntegrationSettings{QuietHoursStart: "21:00", QuietHoursEnd: "08:00"}, atLocal(22)))
	assert.False(t, IsQuietHours(&model.IntegrationSettings{QuietHoursEnabled: true, QuietHoursStart: "late", QuietHoursEnd: "08:00"}, atLocal(22)))
	assert.False(t, IsQuietHours(&model.IntegrationSettings{QuietHoursEnabled: true, QuietHoursStart: "21:00"}, atLocal(22)))
}
