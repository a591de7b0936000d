package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"voltwatch-alert/internal/models"

	"go.uber.org/zap"
)

// NotificationHistoryRepository 通知历史仓库
// 审计记录，同时是频率控制（"该渠道上次成功发送时间"）的数据来源
type NotificationHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationHistoryRepository 创建通知历史仓库
func NewNotificationHistoryRepository(db *sql.DB, logger *zap.Logger) *NotificationHistoryRepository {
	return &NotificationHistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create 创建通知历史记录
// 调用方负责生成 ID 并设置初始状态（pending 或 skipped）
func (r *NotificationHistoryRepository) Create(ctx context.Context, entry *models.NotificationHistory) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if entry.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	if entry.AlertEventID == "" {
		return fmt.Errorf("alert_event_id is required")
	}
	if entry.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_history (
			id,
			alert_event_id,
			user_id,
			channel,
			recipient,
			status,
			error_message,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID,
		entry.AlertEventID,
		entry.UserID,
		entry.Channel,
		entry.Recipient,
		entry.Status,
		entry.ErrorMessage,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification history: %w", err)
	}

	return nil
}

// MarkSent 标记为已发送
// 只允许从 pending 迁移，状态离开 pending 后不可变
func (r *NotificationHistoryRepository) MarkSent(ctx context.Context, entryID string, sentAt time.Time) error {
	if entryID == "" {
		return fmt.Errorf("entry_id is required")
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_history
		SET status = $2,
		    sent_at = $3
		WHERE id = $1
		  AND status = $4
	`, entryID, models.NotificationSent, sentAt, models.NotificationPending)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("notification history not found or not pending: id=%s", entryID)
	}

	return nil
}

// MarkFailed 标记为发送失败并记录错误详情
func (r *NotificationHistoryRepository) MarkFailed(ctx context.Context, entryID string, detail string) error {
	if entryID == "" {
		return fmt.Errorf("entry_id is required")
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_history
		SET status = $2,
		    error_message = $3
		WHERE id = $1
		  AND status = $4
	`, entryID, models.NotificationFailed, detail, models.NotificationPending)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("notification history not found or not pending: id=%s", entryID)
	}

	return nil
}

// LastSentAt 获取用户在某渠道最近一次成功发送的时间（频率控制用）
// 没有发送记录时返回 (nil, nil)
func (r *NotificationHistoryRepository) LastSentAt(ctx context.Context, userID string, channel models.NotificationChannel) (*time.Time, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("channel is required")
	}

	var sentAt time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT created_at
		FROM notification_history
		WHERE user_id = $1
		  AND channel = $2
		  AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, channel, models.NotificationSent).Scan(&sentAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last sent time: %w", err)
	}

	return &sentAt, nil
}

// ListByUser 查询用户的通知历史（审计用，分页）
func (r *NotificationHistoryRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.NotificationHistory, int, error) {
	if userID == "" {
		return nil, 0, fmt.Errorf("user_id is required")
	}

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_history WHERE user_id = $1`,
		userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notification history: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id,
			alert_event_id,
			user_id,
			channel,
			recipient,
			status,
			error_message,
			sent_at,
			created_at
		FROM notification_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notification history: %w", err)
	}
	defer rows.Close()

	entries := []*models.NotificationHistory{}
	for rows.Next() {
		var entry models.NotificationHistory
		var errorMessage sql.NullString
		var sentAt sql.NullTime

		err := rows.Scan(
			&entry.ID,
			&entry.AlertEventID,
			&entry.UserID,
			&entry.Channel,
			&entry.Recipient,
			&entry.Status,
			&errorMessage,
			&sentAt,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification history: %w", err)
		}

		if errorMessage.Valid {
			entry.ErrorMessage = &errorMessage.String
		}
		if sentAt.Valid {
			entry.SentAt = &sentAt.Time
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notification history: %w", err)
	}

	return entries, total, nil
}
