package evaluator

import (
	"fmt"

	"voltwatch-alert/internal/models"
)

// violation 一次条件越界（尚未经过规则/冷却筛选）
type violation struct {
	ConditionType models.ConditionType
	Value         float64
	Threshold     float64
	Message       string
}

// checkBattery 检查电量条件
// 临界电量优先于低电量（同一时刻只触发其中一个），充电中不触发
func checkBattery(sample *models.BatterySample, cfg *models.DeviceConfig) *violation {
	if sample.IsCharging {
		return nil
	}

	if sample.BatteryLevel < cfg.CriticalBatteryThreshold {
		return &violation{
			ConditionType: models.ConditionCriticalBattery,
			Value:         float64(sample.BatteryLevel),
			Threshold:     float64(cfg.CriticalBatteryThreshold),
			Message:       fmt.Sprintf("设备电量临界: %d%%", sample.BatteryLevel),
		}
	}

	if sample.BatteryLevel < cfg.LowBatteryThreshold {
		return &violation{
			ConditionType: models.ConditionLowBattery,
			Value:         float64(sample.BatteryLevel),
			Threshold:     float64(cfg.LowBatteryThreshold),
			Message:       fmt.Sprintf("设备电量低: %d%%", sample.BatteryLevel),
		}
	}

	return nil
}

// checkTemperature 检查温度条件
func checkTemperature(sample *models.BatterySample, cfg *models.DeviceConfig) *violation {
	if sample.Temperature == nil {
		return nil
	}

	if *sample.Temperature > cfg.HighTemperatureThreshold {
		return &violation{
			ConditionType: models.ConditionHighTemperature,
			Value:         *sample.Temperature,
			Threshold:     cfg.HighTemperatureThreshold,
			Message:       fmt.Sprintf("设备温度过高: %.1f°C", *sample.Temperature),
		}
	}

	return nil
}

// drainRate 计算相对上一条样本的电量下降速率（%/小时）
// 充电中、电量未下降或时间未推进时返回 (0, false)
func drainRate(sample, previous *models.BatterySample) (float64, bool) {
	if previous == nil {
		return 0, false
	}
	if sample.IsCharging || previous.IsCharging {
		return 0, false
	}

	elapsed := sample.RecordedAt.Sub(previous.RecordedAt)
	if elapsed <= 0 {
		return 0, false
	}

	drop := previous.BatteryLevel - sample.BatteryLevel
	if drop <= 0 {
		return 0, false
	}

	return float64(drop) / elapsed.Hours(), true
}

// offlineViolation 设备离线条件（由离线检测器驱动，不来自样本）
func offlineViolation() *violation {
	return &violation{
		ConditionType: models.ConditionDeviceOffline,
		Value:         0,
		Threshold:     0,
		Message:       "设备已离线",
	}
}

// rapidDrainViolation 电量骤降条件
// 阈值来自规则的 threshold_value（%/小时）
func rapidDrainViolation(rate, threshold float64) *violation {
	return &violation{
		ConditionType: models.ConditionRapidDrain,
		Value:         rate,
		Threshold:     threshold,
		Message:       fmt.Sprintf("电量下降过快: %.1f%%/小时", rate),
	}
}
