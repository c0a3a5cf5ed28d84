package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global *zap.Logger
	once   sync.Once
)

// Init configures the process-wide logger. Development gets colored console
// output, production gets JSON to stdout.
func Init(environment string) *zap.Logger {
	once.Do(func() {
		var cfg zap.Config
		if environment == "production" {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "timestamp"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			cfg.DisableStacktrace = true
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}

		var err error
		global, err = cfg.Build()
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}
		zap.ReplaceGlobals(global)
	})
	return global
}

// L returns the global logger, initializing a development one if Init was
// never called (tests, one-off commands).
func L() *zap.Logger {
	if global == nil {
		return Init("development")
	}
	return global
}

func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}
