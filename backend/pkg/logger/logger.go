package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. Packages read it through Get.
var Logger *zap.Logger

// Init builds the server logger. Production emits JSON at info level,
// everything else emits colored console output at debug level.
func Init(env string) error {
	if env == "production" {
		cfg := zap.NewProductionConfig()
		return build(cfg, zapcore.InfoLevel)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return build(cfg, zapcore.DebugLevel)
}

// InitCLI builds the logger for command-line tools. Output goes to stderr
// and is limited to warnings unless verbose is set.
func InitCLI(verbose bool) error {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !verbose
	return build(cfg, level)
}

func build(cfg zap.Config, level zapcore.Level) error {
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

// Sync flushes any buffered log entries
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Get returns the global logger, or a no-op logger before Init has run.
func Get() *zap.Logger {
	if Logger == nil {
		return zap.NewNop()
	}
	return Logger
}
