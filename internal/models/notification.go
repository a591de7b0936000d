package models

import (
	"encoding/json"
	"time"
)

// NotificationChannel 通知渠道
type NotificationChannel string

const (
	ChannelEmail   NotificationChannel = "email"
	ChannelWebhook NotificationChannel = "webhook"
	ChannelSMS     NotificationChannel = "sms"
	ChannelPush    NotificationChannel = "push"
)

// NotificationStatus 通知历史状态
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationSkipped = "skipped"
)

// EmailNotificationConfig 邮件通知配置（email_config JSONB 的结构）
type EmailNotificationConfig struct {
	Enabled bool   `json:"enabled"`
	Email   string `json:"email"`
}

// WebhookNotificationConfig Webhook 通知配置（webhook_config JSONB 的结构）
type WebhookNotificationConfig struct {
	Enabled bool              `json:"enabled"`
	URL     string            `json:"url"`
	Secret  string            `json:"secret,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// WebPushNotificationConfig Web Push 通知配置（web_push_config JSONB 的结构）
// 具体订阅信息由推送服务自己管理，这里只有开关
type WebPushNotificationConfig struct {
	Enabled bool `json:"enabled"`
}

// WebPushRecipient push 渠道的固定收件人标识
// 实际推送目标（订阅端点）由渠道发送方根据 user_id 解析
const WebPushRecipient = "web_push"

// UserNotificationPreference 用户通知偏好
// 每个用户恰好一行（用户创建时自动生成）
type UserNotificationPreference struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// 全局通知开关
	Enabled bool `json:"enabled"`

	// 各渠道配置（对核心不透明，由各渠道自行解析）
	EmailConfig   json.RawMessage `json:"email_config,omitempty"`
	WebhookConfig json.RawMessage `json:"webhook_config,omitempty"`
	SMSConfig     json.RawMessage `json:"sms_config,omitempty"`
	WebPushConfig json.RawMessage `json:"web_push_config,omitempty"`

	// 预警级别过滤
	NotifyInfo     bool `json:"notify_info"`
	NotifyWarning  bool `json:"notify_warning"`
	NotifyCritical bool `json:"notify_critical"`

	// 安静时段（"HH:MM" 本地时间，两端都设置才生效）
	QuietHoursStart    *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd      *string `json:"quiet_hours_end,omitempty"`
	QuietHoursTimezone string  `json:"quiet_hours_timezone"`

	// 通知频率控制（分钟，逐渠道独立生效）
	MinNotificationInterval int `json:"min_notification_interval"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MinInterval 最小通知间隔
func (p *UserNotificationPreference) MinInterval() time.Duration {
	return time.Duration(p.MinNotificationInterval) * time.Minute
}

// NotificationHistory 通知历史记录（每次发送尝试一条，审计用）
// 状态离开 pending 后不可变
type NotificationHistory struct {
	ID           string              `json:"id"`
	AlertEventID string              `json:"alert_event_id"`
	UserID       string              `json:"user_id"`
	Channel      NotificationChannel `json:"channel"`
	Recipient    string              `json:"recipient"`
	Status       string              `json:"status"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	SentAt       *time.Time          `json:"sent_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}
