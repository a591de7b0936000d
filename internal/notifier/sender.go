package notifier

import (
	"context"
	"fmt"
	"time"

	"voltwatch-alert/internal/models"
)

// RenderedContent 渲染后的通知内容
// 各渠道拿到同一份内容，自行决定如何编码（HTML 邮件、JSON 负载、推送正文）
type RenderedContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`

	AlertEventID  string               `json:"alert_event_id"`
	DeviceID      string               `json:"device_id"`
	DeviceName    string               `json:"device_name"`
	ConditionType models.ConditionType `json:"condition_type"`
	Level         models.AlertLevel    `json:"level"`
	Message       string               `json:"message"`
	Value         float64              `json:"value"`
	Threshold     float64              `json:"threshold"`
	TriggeredAt   time.Time            `json:"triggered_at"`
}

// Sender 通知发送能力
// 预警子系统只依赖这一个抽象，不依赖具体的通知实现（避免循环依赖）。
// 每个渠道一个实现，在构造时注入。
type Sender interface {
	Send(ctx context.Context, recipient string, content *RenderedContent) error
}

// RenderContent 从预警事件和设备信息渲染通知内容
func RenderContent(event *models.AlertEvent, device *models.Device) *RenderedContent {
	deviceName := event.DeviceID
	if device != nil && device.Name != "" {
		deviceName = device.Name
	}

	return &RenderedContent{
		Title:         fmt.Sprintf("%s - %s", event.Level, event.ConditionType),
		Body:          fmt.Sprintf("%s | %s", deviceName, event.Message),
		AlertEventID:  event.ID,
		DeviceID:      event.DeviceID,
		DeviceName:    deviceName,
		ConditionType: event.ConditionType,
		Level:         event.Level,
		Message:       event.Message,
		Value:         event.Value,
		Threshold:     event.Threshold,
		TriggeredAt:   event.TriggeredAt,
	}
}
