package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voltwatch-alert/internal/models"
)

// fakePreferenceStore 返回预置的用户偏好
type fakePreferenceStore struct {
	pref *models.UserNotificationPreference
	err  error
}

func (f *fakePreferenceStore) GetPreference(_ context.Context, _ string) (*models.UserNotificationPreference, error) {
	return f.pref, f.err
}

// fakeHistoryStore 内存通知历史，按渠道预置 last_sent
// 分发器会从多个 goroutine 并发写入，所以带锁
type fakeHistoryStore struct {
	mu       sync.Mutex
	lastSent map[models.NotificationChannel]*time.Time
	created  []*models.NotificationHistory
	sentIDs  []string
	failed   map[string]string
	err      error
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{
		lastSent: map[models.NotificationChannel]*time.Time{},
		failed:   map[string]string{},
	}
}

func (f *fakeHistoryStore) Create(_ context.Context, entry *models.NotificationHistory) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, entry)
	return nil
}

func (f *fakeHistoryStore) MarkSent(_ context.Context, entryID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentIDs = append(f.sentIDs, entryID)
	return nil
}

func (f *fakeHistoryStore) MarkFailed(_ context.Context, entryID string, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[entryID] = detail
	return nil
}

func (f *fakeHistoryStore) LastSentAt(_ context.Context, _ string, channel models.NotificationChannel) (*time.Time, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSent[channel], nil
}

func strPtr(s string) *string {
	return &s
}

func testPreference(userID string) *models.UserNotificationPreference {
	return &models.UserNotificationPreference{
		ID:                      "pref-1",
		UserID:                  userID,
		Enabled:                 true,
		EmailConfig:             json.RawMessage(`{"enabled":true,"email":"user@example.com"}`),
		WebhookConfig:           json.RawMessage(`{"enabled":true,"url":"https://example.com/hook"}`),
		WebPushConfig:           json.RawMessage(`{"enabled":true}`),
		NotifyInfo:              false,
		NotifyWarning:           true,
		NotifyCritical:          true,
		QuietHoursTimezone:      "UTC",
		MinNotificationInterval: 60,
	}
}

func warningEvent() *models.AlertEvent {
	return &models.AlertEvent{
		ID:            "event-1",
		DeviceID:      "dev-1",
		RuleID:        "rule-1",
		ConditionType: models.ConditionLowBattery,
		Level:         models.LevelWarning,
		Status:        models.StatusActive,
		Message:       "设备电量低: 15%",
		Value:         15,
		Threshold:     20,
		TriggeredAt:   time.Now(),
	}
}

func newTestResolver(pref *models.UserNotificationPreference, history *fakeHistoryStore) *Resolver {
	return NewResolver(&fakePreferenceStore{pref: pref}, history, zap.NewNop())
}

func TestResolve_AllChannelsEligible(t *testing.T) {
	history := newFakeHistoryStore()
	resolver := newTestResolver(testPreference("user-1"), history)

	candidates, err := resolver.Resolve(context.Background(), warningEvent(), "user-1")

	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, models.ChannelEmail, candidates[0].Channel)
	assert.Equal(t, "user@example.com", candidates[0].Recipient)
	assert.Equal(t, models.ChannelWebhook, candidates[1].Channel)
	assert.Equal(t, "https://example.com/hook", candidates[1].Recipient)
	assert.Equal(t, models.ChannelPush, candidates[2].Channel)
	assert.Equal(t, models.WebPushRecipient, candidates[2].Recipient)
}

func TestResolve_NoPreferenceRow(t *testing.T) {
	resolver := newTestResolver(nil, newFakeHistoryStore())

	candidates, err := resolver.Resolve(context.Background(), warningEvent(), "user-1")

	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestResolve_GloballyDisabled(t *testing.T) {
	pref := testPreference("user-1")
	pref.Enabled = false
	resolver := newTestResolver(pref, newFakeHistoryStore())

	candidates, err := resolver.Resolve(context.Background(), warningEvent(), "user-1")

	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestResolve_SeverityGate(t *testing.T) {
	pref := testPreference("user-1")
	history := newFakeHistoryStore()
	resolver := newTestResolver(pref, history)

	// notify_info = false，info 级别事件一个渠道都不发
	event := warningEvent()
	event.Level = models.LevelInfo

	candidates, err := resolver.Resolve(context.Background(), event, "user-1")

	require.NoError(t, err)
	assert.Empty(t, candidates)
	// 级别闸门拦截不写历史记录
	assert.Empty(t, history.created)
}

func TestResolve_QuietHoursGate(t *testing.T) {
	pref := testPreference("user-1")
	pref.QuietHoursStart = strPtr("22:00")
	pref.QuietHoursEnd = strPtr("08:00")
	resolver := newTestResolver(pref, newFakeHistoryStore())
	resolver.now = func() time.Time {
		now, _ := time.Parse("2006-01-02 15:04", "2026-03-10 23:30")
		return now
	}

	candidates, err := resolver.Resolve(context.Background(), warningEvent(), "user-1")

	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestResolve_QuietHoursMissingBoundDisablesGate(t *testing.T) {
	pref := testPreference("user-1")
	pref.QuietHoursStart = strPtr("22:00")
	pref.QuietHoursEnd = nil
	resolver := newTestResolver(pref, newFakeHistoryStore())
	resolver.now = func() time.Time {
		now, _ := time.Parse("2006-01-02 15:04", "2026-03-10 23:30")
		return now
	}

	candidates, err := resolver.Resolve(context.Background(), warningEvent(), "user-1")

	require.NoError(t, err)
	assert.Len(t, candidates, 3)
}

func TestResolve_PerChannelFrequencyGate(t *testing.T) {
	pref := testPreference("user-1")
	history := newFakeHistoryStore()

	// email 渠道 10 分钟前刚发过（间隔 60 分钟），webhook 渠道从未发过
	now := time.Now()
	recent := now.Add(-10 * time.Minute)
	history.lastSent[models.ChannelEmail] = &recent

	resolver := newTestResolver(pref, history)
	resolver.now = func() time.Time { return now }

	candidates, err := resolver.Resolve(context.Background(), warningEvent(), "user-1")

	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, models.ChannelWebhook, candidates[0].Channel)
	assert.Equal(t, models.ChannelPush, candidates[1].Channel)

	// 被限流的渠道留一条 skipped 审计记录
	require.Len(t, history.created, 1)
	skipped := history.created[0]
	assert.Equal(t, models.ChannelEmail, skipped.Channel)
	assert.Equal(t, models.NotificationSkipped, skipped.Status)
	require.NotNil(t, skipped.ErrorMessage)
	assert.Equal(t, "频率限制", *skipped.ErrorMessage)
}

func TestResolve_FrequencyGateElapsed(t *testing.T) {
	pref := testPreference("user-1")
	history := newFakeHistoryStore()

	now := time.Now()
	old := now.Add(-2 * time.Hour)
	history.lastSent[models.ChannelEmail] = &old

	resolver := newTestResolver(pref, history)
	resolver.now = func() time.Time { return now }

	candidates, err := resolver.Resolve(context.Background(), warningEvent(), "user-1")

	require.NoError(t, err)
	assert.Len(t, candidates, 3)
	assert.Empty(t, history.created)
}

func TestResolve_HistoryUnavailableFailsClosed(t *testing.T) {
	pref := testPreference("user-1")
	history := newFakeHistoryStore()
	history.err = fmt.Errorf("connection refused")

	resolver := newTestResolver(pref, history)

	// 历史存储不可用时频率无法判断，所有渠道失败关闭
	candidates, err := resolver.Resolve(context.Background(), warningEvent(), "user-1")

	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestResolve_DisabledAndInvalidChannelConfigsDropped(t *testing.T) {
	pref := testPreference("user-1")
	pref.EmailConfig = json.RawMessage(`{"enabled":false,"email":"user@example.com"}`)
	pref.WebhookConfig = json.RawMessage(`{"enabled":true,"url":""}`)
	pref.WebPushConfig = json.RawMessage(`not json`)

	resolver := newTestResolver(pref, newFakeHistoryStore())

	candidates, err := resolver.Resolve(context.Background(), warningEvent(), "user-1")

	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestResolve_ValidatesInput(t *testing.T) {
	resolver := newTestResolver(testPreference("user-1"), newFakeHistoryStore())

	_, err := resolver.Resolve(context.Background(), nil, "user-1")
	assert.Error(t, err)

	_, err = resolver.Resolve(context.Background(), warningEvent(), "")
	assert.Error(t, err)
}
