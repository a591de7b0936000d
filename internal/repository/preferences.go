package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"voltwatch-alert/internal/models"

	"go.uber.org/zap"
)

// PreferencesRepository 用户通知偏好仓库
// 偏好行随用户创建自动生成（外部触发），核心只读
type PreferencesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPreferencesRepository 创建通知偏好仓库
func NewPreferencesRepository(db *sql.DB, logger *zap.Logger) *PreferencesRepository {
	return &PreferencesRepository{
		db:     db,
		logger: logger,
	}
}

// GetPreference 获取用户通知偏好
// 用户不存在偏好行时返回 (nil, nil)
func (r *PreferencesRepository) GetPreference(ctx context.Context, userID string) (*models.UserNotificationPreference, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			id,
			user_id,
			enabled,
			email_config,
			webhook_config,
			sms_config,
			web_push_config,
			notify_info,
			notify_warning,
			notify_critical,
			quiet_hours_start,
			quiet_hours_end,
			quiet_hours_timezone,
			min_notification_interval,
			created_at,
			updated_at
		FROM user_notification_preferences
		WHERE user_id = $1
	`

	var pref models.UserNotificationPreference
	var emailConfig, webhookConfig, smsConfig, webPushConfig []byte
	var quietStart, quietEnd sql.NullString

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&pref.ID,
		&pref.UserID,
		&pref.Enabled,
		&emailConfig,
		&webhookConfig,
		&smsConfig,
		&webPushConfig,
		&pref.NotifyInfo,
		&pref.NotifyWarning,
		&pref.NotifyCritical,
		&quietStart,
		&quietEnd,
		&pref.QuietHoursTimezone,
		&pref.MinNotificationInterval,
		&pref.CreatedAt,
		&pref.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification preference: %w", err)
	}

	// JSONB 配置对核心不透明，原样保留
	if len(emailConfig) > 0 {
		pref.EmailConfig = json.RawMessage(emailConfig)
	}
	if len(webhookConfig) > 0 {
		pref.WebhookConfig = json.RawMessage(webhookConfig)
	}
	if len(smsConfig) > 0 {
		pref.SMSConfig = json.RawMessage(smsConfig)
	}
	if len(webPushConfig) > 0 {
		pref.WebPushConfig = json.RawMessage(webPushConfig)
	}

	if quietStart.Valid {
		pref.QuietHoursStart = &quietStart.String
	}
	if quietEnd.Valid {
		pref.QuietHoursEnd = &quietEnd.String
	}

	return &pref, nil
}
