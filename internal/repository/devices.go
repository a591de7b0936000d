package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"voltwatch-alert/internal/models"

	"go.uber.org/zap"
)

// DevicesRepository 设备仓库
// 设备 CRUD 在外部，这里只提供评估所需的查询
type DevicesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDevicesRepository 创建设备仓库
func NewDevicesRepository(db *sql.DB, logger *zap.Logger) *DevicesRepository {
	return &DevicesRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID 根据 ID 查找设备
// 设备不存在返回 (nil, nil)
func (r *DevicesRepository) FindByID(ctx context.Context, deviceID string) (*models.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	var device models.Device
	var lastSeenAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT
			id,
			owner_id,
			name,
			last_seen_at
		FROM devices
		WHERE id = $1
	`, deviceID).Scan(
		&device.ID,
		&device.OwnerID,
		&device.Name,
		&lastSeenAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find device: %w", err)
	}

	if lastSeenAt.Valid {
		device.LastSeenAt = &lastSeenAt.Time
	}

	return &device, nil
}

// GetConfig 获取设备配置
// 没有配置行时返回默认配置
func (r *DevicesRepository) GetConfig(ctx context.Context, deviceID string) (*models.DeviceConfig, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	var cfg models.DeviceConfig
	err := r.db.QueryRowContext(ctx, `
		SELECT
			device_id,
			low_battery_threshold,
			critical_battery_threshold,
			high_temperature_threshold,
			report_interval_seconds,
			updated_at
		FROM device_configs
		WHERE device_id = $1
	`, deviceID).Scan(
		&cfg.DeviceID,
		&cfg.LowBatteryThreshold,
		&cfg.CriticalBatteryThreshold,
		&cfg.HighTemperatureThreshold,
		&cfg.ReportIntervalSeconds,
		&cfg.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return models.DefaultDeviceConfig(deviceID), nil
		}
		return nil, fmt.Errorf("failed to get device config: %w", err)
	}

	return &cfg, nil
}

// UpdateLastSeen 更新设备最后在线时间
func (r *DevicesRepository) UpdateLastSeen(ctx context.Context, deviceID string, seenAt time.Time) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET last_seen_at = $2
		WHERE id = $1
	`, deviceID, seenAt)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	return nil
}

// ListOfflineCandidates 查找可能离线的设备
// 条件：last_seen_at 早于 report_interval_seconds × multiplier
// 没有配置行的设备按默认上报间隔计算
func (r *DevicesRepository) ListOfflineCandidates(ctx context.Context, multiplier int, now time.Time) ([]*models.Device, error) {
	if multiplier <= 0 {
		return nil, fmt.Errorf("multiplier must be positive")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			d.id,
			d.owner_id,
			d.name,
			d.last_seen_at
		FROM devices d
		LEFT JOIN device_configs dc ON d.id = dc.device_id
		WHERE d.last_seen_at IS NOT NULL
		  AND d.last_seen_at < $1 - (COALESCE(dc.report_interval_seconds, 60) * $2) * INTERVAL '1 second'
	`, now, multiplier)
	if err != nil {
		return nil, fmt.Errorf("failed to query offline candidates: %w", err)
	}
	defer rows.Close()

	devices := []*models.Device{}
	for rows.Next() {
		var device models.Device
		var lastSeenAt sql.NullTime

		err := rows.Scan(
			&device.ID,
			&device.OwnerID,
			&device.Name,
			&lastSeenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}

		if lastSeenAt.Valid {
			device.LastSeenAt = &lastSeenAt.Time
		}

		devices = append(devices, &device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}
