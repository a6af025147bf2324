// Package logger 进程级 zap 日志，错误级别日志可选上报 Sentry。
package logger

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/d60-Lab/microblog/config"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Init builds the process logger from config. When a Sentry DSN is configured, every entry at
// error level or above is also captured as a Sentry event.
func Init(cfg *config.Config) error {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var opts []zap.Option
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			return err
		}
		opts = append(opts, zap.Hooks(sentryHook))
	}

	l, err := zc.Build(opts...)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

func sentryHook(e zapcore.Entry) error {
	if e.Level < zapcore.ErrorLevel {
		return nil
	}
	sentry.CaptureMessage(e.Message)
	return nil
}

// Set replaces the process logger. Tests use it to install zaptest/observer loggers.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// L returns the process logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Sync flushes buffered entries and pending Sentry events.
func Sync() {
	_ = L().Sync()
	sentry.Flush(2 * time.Second)
}
