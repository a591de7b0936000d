package models

import "time"

// AlertLevel 预警级别
type AlertLevel string

const (
	LevelInfo     AlertLevel = "info"
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

// AlertStatus 预警状态
// 状态转换是单向的：active → acknowledged → resolved，或 active → resolved
type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

// ConditionType 预警条件类型
type ConditionType string

const (
	ConditionLowBattery      ConditionType = "low_battery"
	ConditionCriticalBattery ConditionType = "critical_battery"
	ConditionHighTemperature ConditionType = "high_temperature"
	ConditionDeviceOffline   ConditionType = "device_offline"
	ConditionRapidDrain      ConditionType = "rapid_drain"
)

// AlertRule 预警规则
// 唯一性约束：每个 (user_id, condition_type) 最多一条启用的规则
type AlertRule struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Name            string        `json:"name"`
	ConditionType   ConditionType `json:"condition_type"`
	Level           AlertLevel    `json:"level"`
	ThresholdValue  float64       `json:"threshold_value"`
	CooldownMinutes int           `json:"cooldown_minutes"`
	Enabled         bool          `json:"enabled"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Cooldown 冷却时长
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// AlertEvent 预警事件（一次触发的记录）
type AlertEvent struct {
	ID             string        `json:"id"`
	DeviceID       string        `json:"device_id"`
	RuleID         string        `json:"rule_id"`
	ConditionType  ConditionType `json:"condition_type"`
	Level          AlertLevel    `json:"level"`
	Status         AlertStatus   `json:"status"`
	Message        string        `json:"message"`
	Value          float64       `json:"value"`
	Threshold      float64       `json:"threshold"`
	TriggeredAt    time.Time     `json:"triggered_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
}
