package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/armgoto/pkg/robot"
)

func newLogger(w zapcore.WriteSyncer, debug bool) *zap.SugaredLogger {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		level.SetLevel(zap.DebugLevel)
	}
	enc := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), w, level)
	return zap.New(core).Sugar()
}

func stderrLogger() *zap.SugaredLogger {
	return newLogger(zapcore.Lock(os.Stderr), opts.Debug)
}

// loadConfig reads the configuration file, falling back to defaults when it
// does not exist yet.
func loadConfig() (*robot.Config, error) {
	if !robot.ConfigExists(opts.Config) {
		return robot.DefaultConfig(), nil
	}
	return robot.LoadConfigFrom(opts.Config)
}
