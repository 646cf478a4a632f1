package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *zap.Logger
	helperLogger *zap.Logger // globalLogger, reporting the caller of the helpers below
	globalMu     sync.RWMutex
)

func init() {
	l, _ := zap.NewProduction()
	SetGlobal(l)
}

// Options selects the level and an optional rotated log file.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New creates a zap logger. Without a file it writes JSON to stderr.
func New(opts Options) (*zap.Logger, error) {
	lvl := ParseLevel(opts.Level)
	if opts.File == "" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		return cfg.Build()
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller()), nil
}

// ParseLevel maps debug|warn|error to a level; anything else is info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Global returns the process logger for direct use and injection.
func Global() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

func SetGlobal(l *zap.Logger) {
	globalMu.Lock()
	globalLogger = l
	helperLogger = l.WithOptions(zap.AddCallerSkip(1))
	globalMu.Unlock()
}

func helper() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return helperLogger
}

func Info(msg string, fields ...zap.Field) {
	helper().Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	helper().Error(msg, fields...)
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = Global().Sync()
}
