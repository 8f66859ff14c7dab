package sonicd

import (
	"os"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig describes sonicd logging options.
type LogConfig struct {
	Level     string
	Format    string
	Output    string
	AddSource bool
	UTC       bool
	Color     bool
}

// NewLogger creates a structured logger for sonicd.
func NewLogger(cfg LogConfig) *zap.Logger {
	lvl := zapcore.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	}

	output := "stdout"
	if strings.ToLower(cfg.Output) == "stderr" {
		output = "stderr"
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{output}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.DisableCaller = !cfg.AddSource
	zcfg.Sampling = nil
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.UTC {
		zcfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			zapcore.ISO8601TimeEncoder(t.UTC(), enc)
		}
	}
	if strings.ToLower(cfg.Format) != "json" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if cfg.Color {
			zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}

	logger, err := zcfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	version, commit := buildVersion()
	return logger.With(
		zap.String("app", "sonicd"),
		zap.Int("pid", os.Getpid()),
		zap.String("version", version),
		zap.String("commit", commit),
	)
}

func buildVersion() (string, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev", "unknown"
	}
	version := info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	commit := "unknown"
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			commit = setting.Value
			break
		}
	}
	return version, commit
}
