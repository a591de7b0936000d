package sender

import (
	"context"
	"fmt"
	"time"

	"voltwatch-alert/internal/notifier"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookSender Webhook 渠道发送器
// 把渲染后的通知内容以 JSON POST 到用户配置的 URL。
// 签名等安全机制由接收方约定，这里只做投递。
type WebhookSender struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewWebhookSender 创建 Webhook 发送器
func NewWebhookSender(logger *zap.Logger) *WebhookSender {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "voltwatch-alert/1.0")

	return &WebhookSender{
		httpClient: client,
		logger:     logger,
	}
}

// Send 发送 Webhook 通知
// recipient 是用户配置的回调 URL
func (s *WebhookSender) Send(ctx context.Context, recipient string, content *notifier.RenderedContent) error {
	if recipient == "" {
		return fmt.Errorf("webhook url is required")
	}

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(content).
		Post(recipient)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	s.logger.Debug("Webhook delivered",
		zap.String("url", recipient),
		zap.Int("status", resp.StatusCode()),
	)

	return nil
}
