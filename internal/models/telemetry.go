package models

import "time"

// BatterySample 设备上报的一条电量遥测数据
type BatterySample struct {
	DeviceID     string    `json:"device_id"`
	BatteryLevel int       `json:"battery_level"`
	IsCharging   bool      `json:"is_charging"`
	Temperature  *float64  `json:"temperature,omitempty"`
	Voltage      *float64  `json:"voltage,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Device 设备信息（评估时需要所有者和名称）
type Device struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Name       string     `json:"name"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// DeviceConfig 设备配置（阈值）
type DeviceConfig struct {
	DeviceID                 string    `json:"device_id"`
	LowBatteryThreshold      int       `json:"low_battery_threshold"`
	CriticalBatteryThreshold int       `json:"critical_battery_threshold"`
	HighTemperatureThreshold float64   `json:"high_temperature_threshold"`
	ReportIntervalSeconds    int       `json:"report_interval_seconds"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// DefaultDeviceConfig 默认设备配置
func DefaultDeviceConfig(deviceID string) *DeviceConfig {
	return &DeviceConfig{
		DeviceID:                 deviceID,
		LowBatteryThreshold:      20,
		CriticalBatteryThreshold: 10,
		HighTemperatureThreshold: 45.0,
		ReportIntervalSeconds:    60,
		UpdatedAt:                time.Now(),
	}
}
