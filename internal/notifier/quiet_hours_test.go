package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInQuietHours_MidnightWrap(t *testing.T) {
	// 22:00–08:00 跨午夜窗口
	tests := []struct {
		clock string
		want  bool
	}{
		{"23:00", true},
		{"00:30", true},
		{"08:00", true},
		{"08:01", false},
		{"21:59", false},
		{"22:00", true},
		{"12:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			now, err := time.Parse("2006-01-02 15:04", "2026-03-10 "+tt.clock)
			assert.NoError(t, err)
			got := inQuietHours(now, "22:00", "08:00", "UTC")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInQuietHours_SameDayWindow(t *testing.T) {
	tests := []struct {
		clock string
		want  bool
	}{
		{"13:00", true},
		{"12:00", true},
		{"14:00", true},
		{"11:59", false},
		{"14:01", false},
	}

	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			now, _ := time.Parse("2006-01-02 15:04", "2026-03-10 "+tt.clock)
			got := inQuietHours(now, "12:00", "14:00", "UTC")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInQuietHours_TimezoneAware(t *testing.T) {
	// UTC 15:00 = 上海 23:00，落在 22:00–08:00 内
	now, _ := time.Parse("2006-01-02 15:04", "2026-03-10 15:00")

	assert.True(t, inQuietHours(now, "22:00", "08:00", "Asia/Shanghai"))
	assert.False(t, inQuietHours(now, "22:00", "08:00", "UTC"))
}

func TestInQuietHours_InvalidTimezoneFallsBackUTC(t *testing.T) {
	now, _ := time.Parse("2006-01-02 15:04", "2026-03-10 23:00")

	assert.True(t, inQuietHours(now, "22:00", "08:00", "Not/AZone"))
}

func TestInQuietHours_UnparseableBoundsDisableGate(t *testing.T) {
	now, _ := time.Parse("2006-01-02 15:04", "2026-03-10 23:00")

	assert.False(t, inQuietHours(now, "25:99", "08:00", "UTC"))
	assert.False(t, inQuietHours(now, "22:00", "bogus", "UTC"))
}
