package logger

import (
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Debug           bool
	SentryDSN       string
	SentryClient    *sentry.Client
	BreadcrumbLevel zapcore.Level
	Tags            map[string]string
}

/* Logger bundles the zap logger with the sentry client backing it
 * Components receive Logger.Zap() at construction, there is no global instance
 */
type Logger struct {
	zap    *zap.Logger
	sentry *sentry.Client
}

// New builds a zap logger, forwarding error entries to sentry when a DSN is set
func New(cfg Config) (*Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Debug {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Debug {
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	base, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	if cfg.SentryDSN == "" && cfg.SentryClient == nil {
		return &Logger{zap: base}, nil
	}

	client := cfg.SentryClient
	if client == nil {
		client, err = sentry.NewClient(sentry.ClientOptions{
			Dsn:   cfg.SentryDSN,
			Debug: cfg.Debug,
		})
		if err != nil {
			return nil, err
		}
	}

	breadcrumbLevel := cfg.BreadcrumbLevel
	if breadcrumbLevel == zapcore.InvalidLevel {
		breadcrumbLevel = zapcore.InfoLevel
	}

	core, err := zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   breadcrumbLevel,
		Tags:              cfg.Tags,
	}, zapsentry.NewSentryClientFromClient(client))
	if err != nil {
		return nil, err
	}

	return &Logger{
		zap:    zapsentry.AttachCoreToLogger(core, base),
		sentry: client,
	}, nil
}

// Zap returns the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Flush syncs the zap core and flushes buffered sentry events
func (l *Logger) Flush(timeout time.Duration) {
	_ = l.zap.Sync()
	if l.sentry != nil {
		l.sentry.Flush(timeout)
	}
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
