package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"voltwatch-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome 单渠道的发送结果
type Outcome struct {
	Channel   models.NotificationChannel
	Recipient string
	EntryID   string
	Err       error
}

// Dispatcher 通知分发器
// 把候选渠道并发扇出到各自的发送实现，渠道之间完全隔离：
// 一个渠道失败不影响其他渠道，也不影响已落库的预警事件
type Dispatcher struct {
	senders     map[models.NotificationChannel]Sender
	history     HistoryStore
	sendTimeout time.Duration
	logger      *zap.Logger
}

// NewDispatcher 创建通知分发器
func NewDispatcher(senders map[models.NotificationChannel]Sender, history HistoryStore, sendTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	copied := make(map[models.NotificationChannel]Sender, len(senders))
	for ch, s := range senders {
		copied[ch] = s
	}

	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}

	return &Dispatcher{
		senders:     copied,
		history:     history,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Dispatch 并发分发一条预警事件到所有候选渠道
// 每个候选一条历史记录：pending → sent/failed。
// 不重试；失败对本子系统是终态。返回值仅供调用方记录，永不携带致命错误。
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.AlertEvent, device *models.Device, userID string, candidates []Candidate) []Outcome {
	if event == nil || len(candidates) == 0 {
		return nil
	}

	content := RenderContent(event, device)
	outcomes := make([]Outcome, len(candidates))

	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c Candidate) {
			defer wg.Done()
			outcomes[i] = d.dispatchOne(ctx, event, userID, c, content)
		}(i, c)
	}
	wg.Wait()

	return outcomes
}

// dispatchOne 单渠道发送：写 pending 记录 → 发送 → 更新 sent/failed
func (d *Dispatcher) dispatchOne(ctx context.Context, event *models.AlertEvent, userID string, c Candidate, content *RenderedContent) Outcome {
	outcome := Outcome{
		Channel:   c.Channel,
		Recipient: c.Recipient,
	}

	entry := &models.NotificationHistory{
		ID:           uuid.New().String(),
		AlertEventID: event.ID,
		UserID:       userID,
		Channel:      c.Channel,
		Recipient:    c.Recipient,
		Status:       models.NotificationPending,
		CreatedAt:    time.Now(),
	}

	// 审计记录写不进去就不发送，保证每次尝试都可追溯
	if err := d.history.Create(ctx, entry); err != nil {
		d.logger.Error("Failed to create notification history",
			zap.String("alert_event_id", event.ID),
			zap.String("channel", string(c.Channel)),
			zap.Error(err),
		)
		outcome.Err = err
		return outcome
	}
	outcome.EntryID = entry.ID

	sender, ok := d.senders[c.Channel]
	if !ok {
		detail := "no sender configured for channel"
		if err := d.history.MarkFailed(ctx, entry.ID, detail); err != nil {
			d.logger.Error("Failed to mark notification failed",
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
		}
		outcome.Err = errors.New(detail)
		return outcome
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := sender.Send(sendCtx, c.Recipient, content); err != nil {
		detail := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			detail = "send timeout: " + detail
		}
		if markErr := d.history.MarkFailed(ctx, entry.ID, detail); markErr != nil {
			d.logger.Error("Failed to mark notification failed",
				zap.String("entry_id", entry.ID),
				zap.Error(markErr),
			)
		}
		d.logger.Error("Notification send failed",
			zap.String("alert_event_id", event.ID),
			zap.String("channel", string(c.Channel)),
			zap.Error(err),
		)
		outcome.Err = err
		return outcome
	}

	if err := d.history.MarkSent(ctx, entry.ID, time.Now()); err != nil {
		d.logger.Error("Failed to mark notification sent",
			zap.String("entry_id", entry.ID),
			zap.Error(err),
		)
	}

	d.logger.Info("Notification sent",
		zap.String("alert_event_id", event.ID),
		zap.String("channel", string(c.Channel)),
		zap.String("recipient", c.Recipient),
	)

	return outcome
}
