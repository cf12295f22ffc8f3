package pkg

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret 未配置 JWT_SECRET 时的占位值，只能用于本地开发
const DefaultJWTSecret = "secret-key"

var ErrInsecureJWTSecret = errors.New("JWT_SECRET is unset or left at the default; set it or run with LOG_DEV=1")

type Config struct {
	HTTPAddr string

	// memory | badger | mysql
	StoreBackend string
	BadgerPath   string
	MySQLDSN     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// SessionCheck 开启后鉴权会再对照 redis 中的会话 token
	SessionCheck bool

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string

	FeedPageSize      int
	InboxPageSize     int
	ProfileCacheTTL   time.Duration
	ReconcileInterval time.Duration
	ReconcileRPS      float64

	Log LogConfig
}

// ConfigFromEnv 读取环境变量，.env 存在时先加载（不存在忽略）
func ConfigFromEnv() Config {
	_ = godotenv.Load()

	dev := os.Getenv("LOG_DEV") == "1"
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = "info"
		if dev {
			lvl = "debug"
		}
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Config{
		HTTPAddr:          envOr("HTTP_ADDR", ":8080"),
		StoreBackend:      envOr("STORE_BACKEND", "badger"),
		BadgerPath:        envOr("BADGER_PATH", "./data/badger"),
		MySQLDSN:          os.Getenv("MYSQL_DSN"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           envInt("REDIS_DB", 0),
		SessionCheck:      os.Getenv("SESSION_CHECK") == "1",
		KafkaBrokers:      brokers,
		KafkaTopic:        envOr("KAFKA_TOPIC", "notifications"),
		JWTSecret:         envOr("JWT_SECRET", DefaultJWTSecret),
		FeedPageSize:      envInt("FEED_PAGE_SIZE", 10),
		InboxPageSize:     envInt("INBOX_PAGE_SIZE", 10),
		ProfileCacheTTL:   envDuration("PROFILE_CACHE_TTL", time.Hour),
		ReconcileInterval: envDuration("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileRPS:      envFloat("RECONCILE_RPS", 50),
		Log:               LogConfig{Level: lvl, Dev: dev},
	}
}

// Validate 非开发模式下拒绝默认的 JWT 密钥
func (c Config) Validate() error {
	if c.JWTSecret == DefaultJWTSecret && !c.Log.Dev {
		return ErrInsecureJWTSecret
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
