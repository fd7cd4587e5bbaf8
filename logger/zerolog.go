package logger

import (
	"context"
	"os"
	"time"

	"github.com/minorm/minorm/utils"
	"github.com/rs/zerolog"
)

// ZerologLogger routes statement traces and messages to a zerolog logger.
type ZerologLogger struct {
	Logger zerolog.Logger
	Config
}

// NewZerologLogger creates a new logger using zerolog
func NewZerologLogger(logger zerolog.Logger, config Config) Interface {
	return &ZerologLogger{Logger: logger, Config: config}
}

// NewZerologConsoleLogger writes human readable records to stdout.
func NewZerologConsoleLogger(config Config) Interface {
	consoleWriter := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stdout
		w.TimeFormat = time.RFC3339
	})
	logger := zerolog.New(consoleWriter).
		Level(ZerologLevel(config.LogLevel)).
		With().
		Timestamp().
		Logger()

	return NewZerologLogger(logger, config)
}

// LogMode sets the log level
func (l *ZerologLogger) LogMode(level LogLevel) Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *ZerologLogger) send(ctx context.Context, event *zerolog.Event, msg string, data []interface{}) {
	event = event.Str("file", utils.FileWithLineNum())
	if len(data) > 0 {
		event = event.Interface("data", data)
	}
	if ctx != nil {
		event = event.Ctx(ctx)
	}
	event.Msg(msg)
}

// Info logs info messages
func (l *ZerologLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		l.send(ctx, l.Logger.Info(), msg, data)
	}
}

// Warn logs warning messages
func (l *ZerologLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		l.send(ctx, l.Logger.Warn(), msg, data)
	}
}

// Error logs error messages
func (l *ZerologLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		l.send(ctx, l.Logger.Error(), msg, data)
	}
}

// Trace logs one executed statement
func (l *ZerologLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)

	var (
		event *zerolog.Event
		msg   string
	)
	switch classify(l.LogLevel, l.SlowThreshold, l.IgnoreRecordNotFoundError, elapsed, err) {
	case traceError:
		event, msg = l.Logger.Error().Err(err), "statement failed"
	case traceSlow:
		event, msg = l.Logger.Warn().Dur("slow_threshold", l.SlowThreshold), "slow statement"
	case traceInfo:
		event, msg = l.Logger.Info(), "statement executed"
	default:
		return
	}

	sql, rows := fc()
	event = event.Float64("duration_ms", millis(elapsed)).Str("sql", sql)
	if rows != -1 {
		event = event.Int64("rows", rows)
	}
	l.send(ctx, event, msg, nil)
}

// ParamsFilter filters SQL parameters
func (l *ZerologLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	if l.ParameterizedQueries {
		return sql, nil
	}
	return sql, params
}

// ZerologLevel converts LogLevel to zerolog.Level
func ZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case Silent:
		return zerolog.Disabled
	case Error:
		return zerolog.ErrorLevel
	case Warn:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
