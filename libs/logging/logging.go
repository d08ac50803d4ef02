package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

func NewLogger(level string, serviceName string, env string) *slog.Logger {
	return newLogger(os.Stdout, level, serviceName, env)
}

// NewFromConfig builds the service logger. When a log file is configured
// records go to stdout and a rotated file.
func NewFromConfig(cfg config.AppConfig) (*slog.Logger, io.Closer) {
	if strings.TrimSpace(cfg.LogFile.Path) == "" {
		return NewLogger(cfg.LogLevel, cfg.ServiceName, cfg.Env), nopCloser{}
	}
	file := &lumberjack.Logger{
		Filename:   cfg.LogFile.Path,
		MaxSize:    cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAge:     cfg.LogFile.MaxAgeDays,
		Compress:   cfg.LogFile.Compress,
	}
	return newLogger(io.MultiWriter(os.Stdout, file), cfg.LogLevel, cfg.ServiceName, cfg.Env), file
}

func newLogger(w io.Writer, level, serviceName, env string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("env", env),
	)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
