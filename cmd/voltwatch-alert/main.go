package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"voltwatch-alert/internal/config"
	"voltwatch-alert/internal/service"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting voltwatch-alert",
		zap.String("telemetry_stream", cfg.Alert.Stream.Name),
		zap.String("consumer_group", cfg.Alert.Stream.ConsumerGroup),
	)

	svc, err := service.NewAlertService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create alert service", zap.Error(err))
	}

	if err := svc.Start(); err != nil {
		logger.Fatal("Failed to start alert service", zap.Error(err))
	}

	// 等待退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	svc.Stop()
}

// buildLogger 按配置构建日志器（生产 JSON / 开发 console）
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Log.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
