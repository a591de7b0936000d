package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voltwatch-alert/internal/config"
	"voltwatch-alert/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SampleHandler 样本处理器（由 service 层实现）
type SampleHandler interface {
	HandleSample(ctx context.Context, sample *models.BatterySample) error
}

// SampleConsumer 遥测样本消费者
// 从 Redis Streams 读取上报的电量样本，逐条交给处理器。
// 处理失败的消息同样 ACK（预警失败不能阻塞遥测管道），只记录日志。
type SampleConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewSampleConsumer 创建遥测样本消费者
func NewSampleConsumer(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *SampleConsumer {
	return &SampleConsumer{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Start 启动消费循环（阻塞直到 ctx 取消）
func (c *SampleConsumer) Start(ctx context.Context, handler SampleHandler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	stream := c.config.Alert.Stream.Name
	group := c.config.Alert.Stream.ConsumerGroup

	if err := c.ensureConsumerGroup(ctx, stream, group); err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	c.logger.Info("Sample consumer started",
		zap.String("stream", stream),
		zap.String("group", group),
		zap.String("consumer", c.config.Alert.Stream.ConsumerName),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Sample consumer stopped")
			return nil
		default:
		}

		messages, err := c.readBatch(ctx, stream, group)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to read from telemetry stream",
				zap.Error(err),
			)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			c.handleMessage(ctx, handler, stream, group, msg)
		}
	}
}

// readBatch 读取一批消息（阻塞最多 5 秒）
func (c *SampleConsumer) readBatch(ctx context.Context, stream, group string) ([]redis.XMessage, error) {
	streams, err := c.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: c.config.Alert.Stream.ConsumerName,
		Streams:  []string{stream, ">"},
		Count:    c.config.Alert.Stream.BatchSize,
		Block:    5 * time.Second,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}

	return messages, nil
}

// handleMessage 解析并处理单条消息，最后 ACK
func (c *SampleConsumer) handleMessage(ctx context.Context, handler SampleHandler, stream, group string, msg redis.XMessage) {
	sample, err := decodeSample(msg)
	if err != nil {
		// 格式错误的消息没有重试价值，ACK 后丢弃
		c.logger.Warn("Discarding malformed telemetry message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	} else if err := handler.HandleSample(ctx, sample); err != nil {
		// 预警评估失败不阻塞遥测管道（遥测已独立落库）
		c.logger.Error("Failed to handle sample",
			zap.String("message_id", msg.ID),
			zap.String("device_id", sample.DeviceID),
			zap.Error(err),
		)
	}

	if err := c.redisClient.XAck(ctx, stream, group, msg.ID).Err(); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

// decodeSample 从流消息解码样本（JSON 放在 data 字段里）
func decodeSample(msg redis.XMessage) (*models.BatterySample, error) {
	raw, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("message has no data field")
	}

	data, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("data field is not a string")
	}

	var sample models.BatterySample
	if err := json.Unmarshal([]byte(data), &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sample: %w", err)
	}

	if sample.DeviceID == "" {
		return nil, fmt.Errorf("sample device_id is required")
	}
	if sample.RecordedAt.IsZero() {
		return nil, fmt.Errorf("sample recorded_at is required")
	}

	return &sample, nil
}

// ensureConsumerGroup 创建消费者组（已存在则忽略）
func (c *SampleConsumer) ensureConsumerGroup(ctx context.Context, stream, group string) error {
	err := c.redisClient.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

// PublishSample 发布样本到遥测流（上报侧/测试用）
func PublishSample(ctx context.Context, client *redis.Client, stream string, sample *models.BatterySample) (string, error) {
	jsonData, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sample: %w", err)
	}

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(jsonData),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish sample: %w", err)
	}

	return id, nil
}
