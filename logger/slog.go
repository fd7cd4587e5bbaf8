package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/minorm/minorm/utils"
)

type slogLogger struct {
	Logger *slog.Logger
	Config
}

// NewSlogLogger creates a logger writing to a log/slog logger.
func NewSlogLogger(logger *slog.Logger, config Config) Interface {
	return &slogLogger{Logger: logger, Config: config}
}

func (l *slogLogger) LogMode(level LogLevel) Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *slogLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		l.log(ctx, slog.LevelInfo, msg, slog.Any("data", data))
	}
}

func (l *slogLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		l.log(ctx, slog.LevelWarn, msg, slog.Any("data", data))
	}
}

func (l *slogLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		l.log(ctx, slog.LevelError, msg, slog.Any("data", data))
	}
}

func (l *slogLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	kind := classify(l.LogLevel, l.SlowThreshold, l.IgnoreRecordNotFoundError, elapsed, err)
	if kind == traceNone {
		return
	}

	sql, rows := fc()
	fields := []slog.Attr{
		slog.Float64("duration_ms", millis(elapsed)),
		slog.String("sql", sql),
	}
	if rows != -1 {
		fields = append(fields, slog.Int64("rows", rows))
	}

	switch kind {
	case traceError:
		fields = append(fields, slog.String("error", err.Error()))
		l.log(ctx, slog.LevelError, "statement failed", slog.Attr{Key: "trace", Value: slog.GroupValue(fields...)})
	case traceSlow:
		fields = append(fields, slog.Duration("slow_threshold", l.SlowThreshold))
		l.log(ctx, slog.LevelWarn, "slow statement", slog.Attr{Key: "trace", Value: slog.GroupValue(fields...)})
	case traceInfo:
		l.log(ctx, slog.LevelInfo, "statement executed", slog.Attr{Key: "trace", Value: slog.GroupValue(fields...)})
	}
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !l.Logger.Enabled(ctx, level) {
		return
	}

	r := slog.NewRecord(time.Now(), level, msg, utils.CallerFrame().PC)
	r.Add(args...)
	_ = l.Logger.Handler().Handle(ctx, r)
}

// ParamsFilter filter params
func (l *slogLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	if l.ParameterizedQueries {
		return sql, nil
	}
	return sql, params
}
