package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 服务全部配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Search    SearchConfig    `mapstructure:"search"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Feed      FeedConfig      `mapstructure:"feed"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // sqlite, postgres
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

// RedisConfig 为空 Addr 时不启用关注列表缓存
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SearchConfig controls the full-text index. An empty URL disables search entirely.
type SearchConfig struct {
	URL           string `mapstructure:"url"`
	Async         bool   `mapstructure:"async"`
	Workers       int    `mapstructure:"workers"`
	QueueSize     int    `mapstructure:"queue_size"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	TTL      time.Duration `mapstructure:"ttl"`
	ResetTTL time.Duration `mapstructure:"reset_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type FeedConfig struct {
	PostsPerPage int `mapstructure:"posts_per_page"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Load 读取 config.yaml（可选）并用 MICROBLOG_* 环境变量覆盖
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("MICROBLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "microblog.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("search.url", "")
	v.SetDefault("search.async", false)
	v.SetDefault("search.workers", 4)
	v.SetDefault("search.queue_size", 1024)
	v.SetDefault("search.retry_attempts", 0)

	v.SetDefault("jwt.secret", "you-will-never-guess")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("jwt.reset_ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "microblog")

	v.SetDefault("feed.posts_per_page", 25)

	v.SetDefault("rate_limit.rps", 50)
	v.SetDefault("rate_limit.burst", 100)
}
