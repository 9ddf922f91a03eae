// Package logger owns the process-wide zap logger. Packages log through
// Get, which is safe to call before Init (tests never call Init).
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.Logger

// Init replaces Logger. In "production" entries are JSON at info;
// elsewhere they are colored console lines at debug. A non-empty level
// such as "warn" overrides either default.
func Init(env, level string) error {
	conf := configFor(env)
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		conf.Level = zap.NewAtomicLevelAt(lvl)
	}

	built, err := conf.Build(zap.Fields(zap.String("service", "socialgraph")))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	Logger = built
	return nil
}

func configFor(env string) zap.Config {
	var conf zap.Config
	if env == "production" {
		conf = zap.NewProductionConfig()
	} else {
		conf = zap.NewDevelopmentConfig()
		conf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	conf.EncoderConfig.TimeKey = "ts"
	conf.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	return conf
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

var nop = zap.NewNop()

func Get() *zap.Logger {
	if Logger == nil {
		return nop
	}
	return Logger
}
