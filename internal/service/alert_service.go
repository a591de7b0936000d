package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"voltwatch-alert/internal/cache"
	"voltwatch-alert/internal/config"
	"voltwatch-alert/internal/consumer"
	"voltwatch-alert/internal/evaluator"
	"voltwatch-alert/internal/models"
	"voltwatch-alert/internal/notifier"
	"voltwatch-alert/internal/repository"
	"voltwatch-alert/internal/sender"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// AlertService 预警服务
// 串起遥测消费 → 评估 → 偏好解析 → 通知分发的完整链路
type AlertService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client

	devices      *repository.DevicesRepository
	events       *repository.AlertEventsRepository
	batteryCache *cache.BatteryCache

	evaluator  *evaluator.Evaluator
	resolver   *notifier.Resolver
	dispatcher *notifier.Dispatcher

	sampleConsumer *consumer.SampleConsumer
	offlineChecker *OfflineChecker

	// Start 建立的服务生命周期上下文，异步通知挂在它上面
	notifyCtx context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewAlertService 创建预警服务
func NewAlertService(cfg *config.Config, logger *zap.Logger) (*AlertService, error) {
	// 数据库连接
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Redis 连接
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		db.Close()
		redisClient.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 仓库层
	rules := repository.NewAlertRulesRepository(db, logger)
	events := repository.NewAlertEventsRepository(db, logger)
	prefs := repository.NewPreferencesRepository(db, logger)
	history := repository.NewNotificationHistoryRepository(db, logger)
	devices := repository.NewDevicesRepository(db, logger)

	batteryCache := cache.NewBatteryCache(cfg, redisClient, logger)

	// 评估与通知
	eval := evaluator.NewEvaluator(rules, events, batteryCache, logger)
	resolver := notifier.NewResolver(prefs, history, logger)

	senders := map[models.NotificationChannel]notifier.Sender{
		models.ChannelWebhook: sender.NewWebhookSender(logger),
	}
	dispatcher := notifier.NewDispatcher(senders, history, cfg.Alert.Dispatch.SendTimeout, logger)

	svc := &AlertService{
		config:       cfg,
		logger:       logger,
		db:           db,
		redisClient:  redisClient,
		devices:      devices,
		events:       events,
		batteryCache: batteryCache,
		evaluator:    eval,
		resolver:     resolver,
		dispatcher:   dispatcher,
	}

	svc.sampleConsumer = consumer.NewSampleConsumer(cfg, redisClient, logger)
	svc.offlineChecker = NewOfflineChecker(cfg, devices, eval, svc.notifyEvent, logger)

	return svc, nil
}

// Start 启动消费循环和离线检测
func (s *AlertService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.notifyCtx = ctx
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sampleConsumer.Start(ctx, s); err != nil {
			s.logger.Error("Sample consumer exited", zap.Error(err))
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.offlineChecker.Run(ctx)
	}()

	s.logger.Info("Alert service started")
	return nil
}

// Stop 停止服务并释放连接
func (s *AlertService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	s.logger.Info("Alert service stopped")
}

// HandleSample 实现 consumer.SampleHandler
// 按设备 ID 解析设备后进入 OnSample 流程
func (s *AlertService) HandleSample(ctx context.Context, sample *models.BatterySample) error {
	device, err := s.devices.FindByID(ctx, sample.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to look up device: %w", err)
	}
	if device == nil {
		// 未注册设备的样本直接丢弃
		s.logger.Warn("Sample for unknown device",
			zap.String("device_id", sample.DeviceID),
		)
		return nil
	}

	return s.OnSample(ctx, sample, device)
}

// OnSample 处理一条遥测样本
// 更新在线时间 → 评估（读取缓存里的上一条样本做骤降基线）→ 刷新缓存 →
// 异步解析偏好并分发通知。通知环节的失败不会传回调用方。
func (s *AlertService) OnSample(ctx context.Context, sample *models.BatterySample, device *models.Device) error {
	if sample == nil {
		return fmt.Errorf("sample is required")
	}
	if device == nil {
		return fmt.Errorf("device is required")
	}

	if err := s.devices.UpdateLastSeen(ctx, device.ID, sample.RecordedAt); err != nil {
		// 在线时间更新失败只影响离线检测的精度，不中断评估
		s.logger.Error("Failed to update device last seen",
			zap.String("device_id", device.ID),
			zap.Error(err),
		)
	}

	cfg, err := s.devices.GetConfig(ctx, device.ID)
	if err != nil {
		s.logger.Error("Failed to load device config, using defaults",
			zap.String("device_id", device.ID),
			zap.Error(err),
		)
		cfg = models.DefaultDeviceConfig(device.ID)
	}

	events, evalErr := s.evaluator.Evaluate(ctx, sample, device, cfg)

	// 缓存刷新必须在评估之后，否则骤降检测的基线会被本条样本覆盖
	if err := s.batteryCache.SetLatest(ctx, sample); err != nil {
		s.logger.Error("Failed to cache latest sample",
			zap.String("device_id", device.ID),
			zap.Error(err),
		)
	}

	for _, event := range events {
		s.dispatchAsync(event, device)
	}

	return evalErr
}

// notifyEvent 对一条已落库的预警事件执行偏好解析和渠道分发
func (s *AlertService) notifyEvent(ctx context.Context, event *models.AlertEvent, device *models.Device) {
	candidates, err := s.resolver.Resolve(ctx, event, device.OwnerID)
	if err != nil {
		s.logger.Error("Failed to resolve notification channels",
			zap.String("event_id", event.ID),
			zap.String("user_id", device.OwnerID),
			zap.Error(err),
		)
		return
	}
	if len(candidates) == 0 {
		s.logger.Debug("No notification channels eligible",
			zap.String("event_id", event.ID),
		)
		return
	}

	s.dispatcher.Dispatch(ctx, event, device, device.OwnerID, candidates)
}

// dispatchAsync 把通知挂到服务生命周期上异步执行
func (s *AlertService) dispatchAsync(event *models.AlertEvent, device *models.Device) {
	ctx := s.notifyCtx
	if ctx == nil {
		ctx = context.Background()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.notifyEvent(ctx, event, device)
	}()
}

// AcknowledgeEvent 确认预警事件
func (s *AlertService) AcknowledgeEvent(ctx context.Context, eventID string) error {
	return s.events.AcknowledgeEvent(ctx, eventID)
}

// ResolveEvent 解除预警事件
func (s *AlertService) ResolveEvent(ctx context.Context, eventID string) error {
	return s.events.ResolveEvent(ctx, eventID)
}
