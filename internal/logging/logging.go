package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/config"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// New builds a logger from configuration. Unknown levels fall back to info and
// unknown formats to JSON.
func New(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	configure(logger, cfg, os.Stdout)
	return logger
}

// Init configures the package-level logrus logger and returns it.
func Init(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.StandardLogger()
	configure(logger, cfg, os.Stdout)
	return logger
}

func configure(logger *logrus.Logger, cfg config.LoggingConfig, stdout io.Writer) {
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	}

	logger.SetOutput(output(cfg, stdout))
}

func output(cfg config.LoggingConfig, stdout io.Writer) io.Writer {
	if cfg.File == "" {
		return stdout
	}
	switch strings.ToLower(cfg.Output) {
	case "file":
		return fileWriter(cfg)
	case "both":
		return io.MultiWriter(stdout, fileWriter(cfg))
	default:
		return stdout
	}
}

func fileWriter(cfg config.LoggingConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

// Discard returns a logger that drops everything; handy for tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
