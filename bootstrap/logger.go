package bootstrap

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/bundlekeeper/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the root logger from the logging section. The level is
// applied globally so the runtime log_level setting can change it later.
// The returned closer releases the rotating file, if any.
func NewLogger(cfg config.LoggingConfig, stdout io.Writer) (zerolog.Logger, io.Closer, error) {
	if stdout == nil {
		stdout = os.Stdout
	}
	SetLogLevel(cfg.Level)

	var out io.Writer = stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if file := strings.TrimSpace(cfg.File); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return zerolog.Logger{}, nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    cfg.MaxSizeMB,  // megabytes
			MaxBackups: cfg.MaxBackups, // files
			MaxAge:     cfg.MaxAgeDays, // days
			Compress:   cfg.Compress,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
		closer = rotating
	}

	return zerolog.New(out).With().Timestamp().Logger(), closer, nil
}

// SetLogLevel applies a level name globally. Unknown names fall back to info.
// "warning" is accepted as an alias of "warn".
func SetLogLevel(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
