package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config 预警服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	// 预警服务特定配置
	Alert struct {
		// 遥测流配置
		Stream struct {
			Name          string // 遥测流名称，如 "voltwatch:telemetry"
			ConsumerGroup string // 消费者组名称
			ConsumerName  string // 消费者名称（默认主机名）
			BatchSize     int64  // 每次读取的消息数量，默认 10
		}

		// 缓存配置
		Cache struct {
			LatestKeyPrefix string // 最新样本缓存键前缀，如 "voltwatch:battery:latest:"
			LatestTTL       int    // 最新样本缓存 TTL（秒），默认 3600
		}

		// 离线检测配置
		Offline struct {
			CheckInterval      time.Duration // 检测间隔，默认 60秒
			IntervalMultiplier int           // 超过 report_interval × N 视为离线，默认 3
		}

		// 通知发送配置
		Dispatch struct {
			SendTimeout time.Duration // 单渠道发送超时，默认 10秒
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 数据库
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "voltwatch")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	// Redis
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// 遥测流
	cfg.Alert.Stream.Name = getEnv("TELEMETRY_STREAM", "voltwatch:telemetry")
	cfg.Alert.Stream.ConsumerGroup = getEnv("TELEMETRY_CONSUMER_GROUP", "voltwatch-alert")
	consumerName := getEnv("TELEMETRY_CONSUMER_NAME", "")
	if consumerName == "" {
		if hostname, err := os.Hostname(); err == nil {
			consumerName = hostname
		} else {
			consumerName = "voltwatch-alert"
		}
	}
	cfg.Alert.Stream.ConsumerName = consumerName
	cfg.Alert.Stream.BatchSize = int64(getEnvInt("TELEMETRY_BATCH_SIZE", 10))

	// 缓存
	cfg.Alert.Cache.LatestKeyPrefix = getEnv("CACHE_LATEST_PREFIX", "voltwatch:battery:latest:")
	cfg.Alert.Cache.LatestTTL = getEnvInt("CACHE_LATEST_TTL", 3600)

	// 离线检测
	cfg.Alert.Offline.CheckInterval = time.Duration(getEnvInt("OFFLINE_CHECK_INTERVAL", 60)) * time.Second
	cfg.Alert.Offline.IntervalMultiplier = getEnvInt("OFFLINE_INTERVAL_MULTIPLIER", 3)

	// 通知发送
	cfg.Alert.Dispatch.SendTimeout = time.Duration(getEnvInt("DISPATCH_SEND_TIMEOUT", 10)) * time.Second

	// 日志
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
