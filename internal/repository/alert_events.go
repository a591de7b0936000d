package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"voltwatch-alert/internal/models"

	"go.uber.org/zap"
)

// AlertEventsRepository 预警事件仓库
type AlertEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertEventsRepository 创建预警事件仓库
func NewAlertEventsRepository(db *sql.DB, logger *zap.Logger) *AlertEventsRepository {
	return &AlertEventsRepository{
		db:     db,
		logger: logger,
	}
}

const alertEventColumns = `
	id,
	device_id,
	rule_id,
	condition_type,
	level,
	status,
	message,
	value,
	threshold,
	triggered_at,
	acknowledged_at,
	resolved_at
`

func scanAlertEvent(row interface {
	Scan(dest ...interface{}) error
}) (*models.AlertEvent, error) {
	var event models.AlertEvent
	var acknowledgedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&event.ID,
		&event.DeviceID,
		&event.RuleID,
		&event.ConditionType,
		&event.Level,
		&event.Status,
		&event.Message,
		&event.Value,
		&event.Threshold,
		&event.TriggeredAt,
		&acknowledgedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if acknowledgedAt.Valid {
		event.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		event.ResolvedAt = &resolvedAt.Time
	}

	return &event, nil
}

// GetMostRecentEvent 获取设备某条件类型最近的一次事件
// 冷却判断只看 triggered_at，与事件当前状态无关，所以这里不过滤 status
func (r *AlertEventsRepository) GetMostRecentEvent(ctx context.Context, deviceID string, conditionType models.ConditionType) (*models.AlertEvent, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if conditionType == "" {
		return nil, fmt.Errorf("condition_type is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alert_events
		WHERE device_id = $1
		  AND condition_type = $2
		ORDER BY triggered_at DESC
		LIMIT 1
	`, alertEventColumns)

	event, err := scanAlertEvent(r.db.QueryRowContext(ctx, query, deviceID, conditionType))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get most recent event: %w", err)
	}

	return event, nil
}

// InsertEventIfNotCoolingDown 冷却检查与插入（原子操作）
// 在同一个事务里先对 (device_id, condition_type) 取事务级咨询锁，
// 再做冷却窗口检查和插入，保证并发上报不会各自通过检查后重复插入。
// 返回 false 表示处于冷却期，事件被抑制（不是错误）。
func (r *AlertEventsRepository) InsertEventIfNotCoolingDown(ctx context.Context, event *models.AlertEvent, cooldown time.Duration) (bool, error) {
	if event == nil {
		return false, fmt.Errorf("event is required")
	}
	if event.DeviceID == "" {
		return false, fmt.Errorf("device_id is required")
	}
	if event.ConditionType == "" {
		return false, fmt.Errorf("condition_type is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 咨询锁以 device_id:condition_type 为键，事务结束自动释放
	lockKey := event.DeviceID + ":" + string(event.ConditionType)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return false, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}

	// 冷却窗口检查（与事件状态无关，确认过的预警同样占用冷却期）
	thresholdTime := time.Now().Add(-cooldown)
	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM alert_events
		WHERE device_id = $1
		  AND condition_type = $2
		  AND triggered_at > $3
	`, event.DeviceID, event.ConditionType, thresholdTime).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown: %w", err)
	}

	if count > 0 {
		// 冷却期内，抑制本次事件
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alert_events (
			id,
			device_id,
			rule_id,
			condition_type,
			level,
			status,
			message,
			value,
			threshold,
			triggered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		event.ID,
		event.DeviceID,
		event.RuleID,
		event.ConditionType,
		event.Level,
		event.Status,
		event.Message,
		event.Value,
		event.Threshold,
		event.TriggeredAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert alert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit alert event: %w", err)
	}

	return true, nil
}

// AcknowledgeEvent 确认预警（仅允许 active → acknowledged）
func (r *AlertEventsRepository) AcknowledgeEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE alert_events
		SET status = $2,
		    acknowledged_at = NOW()
		WHERE id = $1
		  AND status = $3
	`, eventID, models.StatusAcknowledged, models.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("alert event not found or not active: event_id=%s", eventID)
	}

	return nil
}

// ResolveEvent 解决预警（允许 active/acknowledged → resolved，resolved 不可再变）
func (r *AlertEventsRepository) ResolveEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE alert_events
		SET status = $2,
		    resolved_at = NOW()
		WHERE id = $1
		  AND status IN ($3, $4)
	`, eventID, models.StatusResolved, models.StatusActive, models.StatusAcknowledged)
	if err != nil {
		return fmt.Errorf("failed to resolve alert event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("alert event not found or already resolved: event_id=%s", eventID)
	}

	return nil
}

// CountActiveEvents 获取设备的活跃预警数
func (r *AlertEventsRepository) CountActiveEvents(ctx context.Context, deviceID string) (int, error) {
	if deviceID == "" {
		return 0, fmt.Errorf("device_id is required")
	}

	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM alert_events
		WHERE device_id = $1
		  AND status = $2
	`, deviceID, models.StatusActive).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active events: %w", err)
	}

	return count, nil
}

// ListEventsByDevice 查询设备的预警事件列表（分页）
func (r *AlertEventsRepository) ListEventsByDevice(ctx context.Context, deviceID string, page, size int) ([]*models.AlertEvent, int, error) {
	if deviceID == "" {
		return nil, 0, fmt.Errorf("device_id is required")
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_events WHERE device_id = $1`,
		deviceID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alert_events
		WHERE device_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2 OFFSET $3
	`, alertEventColumns)

	rows, err := r.db.QueryContext(ctx, query, deviceID, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []*models.AlertEvent{}
	for rows.Next() {
		event, err := scanAlertEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, total, nil
}
