package logger

import (
	"context"
	"time"

	"github.com/minorm/minorm/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger routes statement traces and messages to a zap logger.
type ZapLogger struct {
	Logger *zap.Logger
	Config
}

// NewZapLogger creates a new logger using zap
func NewZapLogger(logger *zap.Logger, config Config) Interface {
	return &ZapLogger{Logger: logger, Config: config}
}

// NewZapProductionLogger builds a zap production logger at the level
// matching config.LogLevel. It falls back to the development config when
// the production one cannot be built.
func NewZapProductionLogger(config Config) Interface {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(ZapLevel(config.LogLevel))

	logger, err := zapCfg.Build()
	if err != nil {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(ZapLevel(config.LogLevel))
		if logger, err = zapCfg.Build(); err != nil {
			logger = zap.NewNop()
		}
	}

	return NewZapLogger(logger, config)
}

// LogMode sets the log level
func (l *ZapLogger) LogMode(level LogLevel) Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func zapData(data []interface{}) []zap.Field {
	fields := []zap.Field{zap.String("file", utils.FileWithLineNum())}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	return fields
}

// Info logs info messages
func (l *ZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		l.Logger.Info(msg, zapData(data)...)
	}
}

// Warn logs warning messages
func (l *ZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		l.Logger.Warn(msg, zapData(data)...)
	}
}

// Error logs error messages
func (l *ZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		l.Logger.Error(msg, zapData(data)...)
	}
}

// Trace logs one executed statement
func (l *ZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	kind := classify(l.LogLevel, l.SlowThreshold, l.IgnoreRecordNotFoundError, elapsed, err)
	if kind == traceNone {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("file", utils.FileWithLineNum()),
		zap.Float64("duration_ms", millis(elapsed)),
		zap.String("sql", sql),
	}
	if rows != -1 {
		fields = append(fields, zap.Int64("rows", rows))
	}

	switch kind {
	case traceError:
		l.Logger.Error("statement failed", append(fields, zap.Error(err))...)
	case traceSlow:
		l.Logger.Warn("slow statement", append(fields, zap.Duration("slow_threshold", l.SlowThreshold))...)
	case traceInfo:
		l.Logger.Info("statement executed", fields...)
	}
}

// ParamsFilter filters SQL parameters
func (l *ZapLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	if l.ParameterizedQueries {
		return sql, nil
	}
	return sql, params
}

// ZapLevel converts LogLevel to zapcore.Level
func ZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case Silent:
		return zapcore.DPanicLevel
	case Error:
		return zapcore.ErrorLevel
	case Warn:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
