// Package logger provides the structured logging used across the engine.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// Logger carries debug/warn messages.
	Logger *logrus.Logger
	// InfoLogger carries informational messages.
	InfoLogger *logrus.Logger
	// ErrorLogger carries error and fatal messages.
	ErrorLogger *logrus.Logger
)

func init() {
	_ = InitLogger(Config{Level: "info"})
}

// Config controls where and how the engine logs.
type Config struct {
	ErrorLogPath string
	InfoLogPath  string
	Level        string
}

// callerFormatter renders a compact, single-line record with the call site.
type callerFormatter struct{}

func (callerFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := entry.Time.Format("15:04:05.000")
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	return []byte(fmt.Sprintf("[%s] [%s] (%s) %s\n", ts, level, caller(), entry.Message)), nil
}

// caller walks past logrus's and this package's own frames to find the real call site.
func caller() string {
	for i := 2; i < 20; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "/logrus/") || strings.Contains(file, "logger/logger.go") {
			continue
		}
		fn := runtime.FuncForPC(pc).Name()
		return fmt.Sprintf("%s:%s:%d", filepath.Base(file), fn, line)
	}
	return "unknown:unknown:0"
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// InitLogger (re)configures the package loggers. Safe to call more than once;
// mvbtree.Open calls it with the caller's config.EngineOptions.LogLevel.
func InitLogger(cfg Config) error {
	formatter := callerFormatter{}

	Logger = logrus.New()
	Logger.SetFormatter(formatter)
	Logger.SetLevel(parseLevel(cfg.Level))

	InfoLogger = logrus.New()
	InfoLogger.SetFormatter(formatter)
	InfoLogger.SetLevel(parseLevel(cfg.Level))

	ErrorLogger = logrus.New()
	ErrorLogger.SetFormatter(formatter)
	ErrorLogger.SetLevel(parseLevel(cfg.Level))

	if cfg.InfoLogPath != "" {
		if f, err := openLogFile(cfg.InfoLogPath); err == nil {
			InfoLogger.SetOutput(io.MultiWriter(os.Stdout, f))
		} else {
			InfoLogger.SetOutput(os.Stdout)
			InfoLogger.Warnf("opening info log %s failed, falling back to stdout: %v", cfg.InfoLogPath, err)
		}
	} else {
		InfoLogger.SetOutput(os.Stdout)
	}

	if cfg.ErrorLogPath != "" {
		if f, err := openLogFile(cfg.ErrorLogPath); err == nil {
			ErrorLogger.SetOutput(io.MultiWriter(os.Stderr, f))
		} else {
			ErrorLogger.SetOutput(os.Stderr)
			ErrorLogger.Warnf("opening error log %s failed, falling back to stderr: %v", cfg.ErrorLogPath, err)
		}
	} else {
		ErrorLogger.SetOutput(os.Stderr)
	}

	Logger.SetOutput(InfoLogger.Out)
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func Debug(args ...interface{})                 { Logger.Debug(args...) }
func Debugf(format string, args ...interface{}) { Logger.Debugf(format, args...) }
func Info(args ...interface{})                  { InfoLogger.Info(args...) }
func Infof(format string, args ...interface{})  { InfoLogger.Infof(format, args...) }
func Warn(args ...interface{})                  { Logger.Warn(args...) }
func Warnf(format string, args ...interface{})  { Logger.Warnf(format, args...) }
func Error(args ...interface{})                 { ErrorLogger.Error(args...) }
func Errorf(format string, args ...interface{}) { ErrorLogger.Errorf(format, args...) }
