// Package logger owns the process-wide zap logger.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string // debug, info, warn, error, fatal
	Format string // json or console
	// EnableColor only applies to the console format.
	EnableColor bool
}

var (
	mu     sync.Mutex
	global *zap.Logger
	level  = zap.NewAtomicLevel()
)

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, NO_COLOR and LOG_COLOR.
func DefaultConfig() Config {
	return Config{
		Level:       env("LOG_LEVEL", "info"),
		Format:      env("LOG_FORMAT", "console"),
		EnableColor: colorWanted(),
	}
}

// Initialize builds the global logger. Only the first call has an effect.
func Initialize(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		return
	}

	level.SetLevel(parseLevel(cfg.Level))
	zcfg := zap.Config{
		Level:             level,
		Encoding:          encodingFor(cfg),
		EncoderConfig:     encoderConfig(cfg),
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: cfg.Level != "debug" && cfg.Level != "error",
	}

	l, err := zcfg.Build()
	if err != nil {
		panic("logger: " + err.Error())
	}
	global = l
}

func encodingFor(cfg Config) string {
	switch {
	case cfg.Format == "json":
		return "json"
	case cfg.EnableColor:
		return colorConsole
	default:
		return "console"
	}
}

func encoderConfig(cfg Config) zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.Format != "json" {
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		ec.EncodeCaller = zapcore.ShortCallerEncoder
		if cfg.EnableColor {
			ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	return ec
}

// Get returns the global logger, initializing it from the environment on
// first use.
func Get() *zap.Logger {
	mu.Lock()
	l := global
	mu.Unlock()
	if l != nil {
		return l
	}
	Initialize(DefaultConfig())
	return Get()
}

// SetLevel changes the level of every logger derived from Get.
func SetLevel(lvl string) {
	level.SetLevel(parseLevel(lvl))
}

func Sync() {
	mu.Lock()
	l := global
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return strings.ToLower(v)
	}
	return fallback
}

func parseLevel(lvl string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.ToLower(lvl))
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// colorWanted honours NO_COLOR (https://no-color.org/) before LOG_COLOR.
func colorWanted() bool {
	if _, off := os.LookupEnv("NO_COLOR"); off {
		return false
	}
	if v := os.Getenv("LOG_COLOR"); v != "" {
		return v == "true" || v == "1"
	}
	return true
}
