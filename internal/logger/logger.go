package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"oko-node/internal/config"
)

// Log is the global logger instance.
var Log = logrus.New()

func init() {
	Log.AddHook(redactHook{})
}

// secretFieldFragments marks structured-log keys whose values are key
// or credential material and must never reach a sink.
var secretFieldFragments = []string{"share", "token", "secret", "seed", "password"}

// redactHook blanks secret-carrying fields before any formatter sees
// them.
type redactHook struct{}

func (redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (redactHook) Fire(entry *logrus.Entry) error {
	for k := range entry.Data {
		lower := strings.ToLower(k)
		for _, frag := range secretFieldFragments {
			if strings.Contains(lower, frag) {
				entry.Data[k] = "[REDACTED]"
				break
			}
		}
	}
	return nil
}

// InitLogger initializes the global logger based on the provided configuration.
func InitLogger(cfg config.LoggerConfig) error {
	// Set log level
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	Log.SetLevel(level)

	// Set log format
	switch cfg.Format {
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	default:
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	// Set output
	if cfg.FilePath != "" {
		lumberjackLogger := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		// Set output to both file and stdout
		mw := io.MultiWriter(os.Stdout, lumberjackLogger)
		Log.SetOutput(mw)
	} else {
		Log.SetOutput(os.Stdout)
	}

	return nil
}
