package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = zap.NewNop()

// Init builds the process logger. The call UI owns the terminal, so the
// default level only lets errors through to stderr. LOG_FILE redirects
// everything to a rotated JSON file instead.
func Init() {
	logger = New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
	zap.ReplaceGlobals(logger)
}

// New builds a logger for the given level name and optional file path.
func New(levelName, file string) *zap.Logger {
	level := ParseLevel(levelName)

	if file != "" {
		hook := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		}
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(hook),
			level,
		)
		return zap.New(core, zap.AddCaller())
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

// ParseLevel maps LOG_LEVEL values to zap levels.
func ParseLevel(l string) zapcore.Level {
	switch l {
	case "dev", "development", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error", "production", "prod":
		return zapcore.ErrorLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Logger returns the process logger set up by Init.
func Logger() *zap.Logger {
	return logger
}

// Sync flushes buffered entries.
func Sync() {
	_ = logger.Sync()
}
