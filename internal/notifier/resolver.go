package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voltwatch-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PreferenceStore 通知偏好查询能力
type PreferenceStore interface {
	GetPreference(ctx context.Context, userID string) (*models.UserNotificationPreference, error)
}

// HistoryStore 通知历史存储能力
type HistoryStore interface {
	Create(ctx context.Context, entry *models.NotificationHistory) error
	MarkSent(ctx context.Context, entryID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, entryID string, detail string) error
	LastSentAt(ctx context.Context, userID string, channel models.NotificationChannel) (*time.Time, error)
}

// Candidate 一个允许发送的 (渠道, 收件人) 对
type Candidate struct {
	Channel   models.NotificationChannel
	Recipient string
}

// Resolver 通知偏好解析器
// 把用户的通知偏好归约为本次事件允许发送的渠道集合，
// 每一道闸门（总开关、级别、安静时段、频率）都是正常控制流，不是错误
type Resolver struct {
	prefs   PreferenceStore
	history HistoryStore
	logger  *zap.Logger

	// 可注入的时钟，测试用
	now func() time.Time
}

// NewResolver 创建偏好解析器
func NewResolver(prefs PreferenceStore, history HistoryStore, logger *zap.Logger) *Resolver {
	return &Resolver{
		prefs:   prefs,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve 解析某条预警事件允许发送的渠道集合
// 空结果是正常输出（所有闸门都可能合法地拦截），不是失败
func (r *Resolver) Resolve(ctx context.Context, event *models.AlertEvent, userID string) ([]Candidate, error) {
	if event == nil {
		return nil, fmt.Errorf("event is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	pref, err := r.prefs.GetPreference(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification preference: %w", err)
	}
	if pref == nil {
		r.logger.Warn("User has no notification preference",
			zap.String("user_id", userID),
		)
		return nil, nil
	}

	// 闸门1：全局开关
	if !pref.Enabled {
		r.logger.Debug("Notifications disabled for user",
			zap.String("user_id", userID),
		)
		return nil, nil
	}

	// 闸门2：级别过滤
	if !shouldNotifyForLevel(pref, event.Level) {
		r.logger.Debug("Alert level not subscribed",
			zap.String("user_id", userID),
			zap.String("level", string(event.Level)),
		)
		return nil, nil
	}

	// 闸门3：安静时段（两端都配置才生效）
	if pref.QuietHoursStart != nil && pref.QuietHoursEnd != nil {
		if inQuietHours(r.now(), *pref.QuietHoursStart, *pref.QuietHoursEnd, pref.QuietHoursTimezone) {
			r.logger.Debug("Currently in quiet hours",
				zap.String("user_id", userID),
			)
			return nil, nil
		}
	}

	// 闸门4+5：逐渠道独立判断频率限制并解析收件人
	// 一个渠道被限流不影响其他渠道
	candidates := []Candidate{}
	for _, c := range channelRecipients(pref) {
		allowed, err := r.passesFrequencyGate(ctx, event, pref, c)
		if err != nil {
			// 历史存储不可用时该渠道失败关闭
			r.logger.Error("Failed to check notification frequency",
				zap.String("user_id", userID),
				zap.String("channel", string(c.Channel)),
				zap.Error(err),
			)
			continue
		}
		if !allowed {
			continue
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// passesFrequencyGate 频率闸门：距上次成功发送不足最小间隔则拦截
// 被拦截的渠道写一条 skipped 历史记录（审计"为什么没发"）
func (r *Resolver) passesFrequencyGate(ctx context.Context, event *models.AlertEvent, pref *models.UserNotificationPreference, c Candidate) (bool, error) {
	lastSent, err := r.history.LastSentAt(ctx, pref.UserID, c.Channel)
	if err != nil {
		return false, err
	}
	if lastSent == nil {
		return true, nil
	}

	if r.now().Sub(*lastSent) >= pref.MinInterval() {
		return true, nil
	}

	r.logger.Debug("Channel rate limited",
		zap.String("user_id", pref.UserID),
		zap.String("channel", string(c.Channel)),
	)

	detail := "频率限制"
	skipped := &models.NotificationHistory{
		ID:           uuid.New().String(),
		AlertEventID: event.ID,
		UserID:       pref.UserID,
		Channel:      c.Channel,
		Recipient:    c.Recipient,
		Status:       models.NotificationSkipped,
		ErrorMessage: &detail,
		CreatedAt:    r.now(),
	}
	if err := r.history.Create(ctx, skipped); err != nil {
		r.logger.Error("Failed to record skipped notification",
			zap.String("user_id", pref.UserID),
			zap.String("channel", string(c.Channel)),
			zap.Error(err),
		)
	}

	return false, nil
}

// shouldNotifyForLevel 检查预警级别是否需要通知
func shouldNotifyForLevel(pref *models.UserNotificationPreference, level models.AlertLevel) bool {
	switch level {
	case models.LevelInfo:
		return pref.NotifyInfo
	case models.LevelWarning:
		return pref.NotifyWarning
	case models.LevelCritical:
		return pref.NotifyCritical
	default:
		return false
	}
}

// channelRecipients 从各渠道的配置 JSONB 解析出启用的 (渠道, 收件人) 对
// 配置缺失、解析失败或没有有效收件人的渠道直接丢弃，不算错误
func channelRecipients(pref *models.UserNotificationPreference) []Candidate {
	candidates := []Candidate{}

	if len(pref.EmailConfig) > 0 {
		var cfg models.EmailNotificationConfig
		if err := json.Unmarshal(pref.EmailConfig, &cfg); err == nil && cfg.Enabled && cfg.Email != "" {
			candidates = append(candidates, Candidate{
				Channel:   models.ChannelEmail,
				Recipient: cfg.Email,
			})
		}
	}

	if len(pref.WebhookConfig) > 0 {
		var cfg models.WebhookNotificationConfig
		if err := json.Unmarshal(pref.WebhookConfig, &cfg); err == nil && cfg.Enabled && cfg.URL != "" {
			candidates = append(candidates, Candidate{
				Channel:   models.ChannelWebhook,
				Recipient: cfg.URL,
			})
		}
	}

	if len(pref.WebPushConfig) > 0 {
		var cfg models.WebPushNotificationConfig
		if err := json.Unmarshal(pref.WebPushConfig, &cfg); err == nil && cfg.Enabled {
			// 推送的实际目标（订阅端点）由渠道发送方按 user_id 解析
			candidates = append(candidates, Candidate{
				Channel:   models.ChannelPush,
				Recipient: models.WebPushRecipient,
			})
		}
	}

	return candidates
}
