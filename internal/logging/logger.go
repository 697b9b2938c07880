package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// #region config
// Config selects the level and output format of the root logger.
type Config struct {
	Level  string // debug | info | warn | error
	Format string // text | json | logfmt
	Writer io.Writer
}

// #endregion config

// #region new
// New builds the root logger. Unknown levels fall back to info.
func New(cfg Config) *log.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}
	opts := log.Options{
		ReportTimestamp: true,
		Level:           level,
		TimeFormat:      time.RFC3339,
	}
	switch strings.ToLower(cfg.Format) {
	case "json":
		opts.Formatter = log.JSONFormatter
	case "logfmt":
		opts.Formatter = log.LogfmtFormatter
	}
	return log.NewWithOptions(w, opts)
}

// ForComponent derives a child logger tagged with the component name.
func ForComponent(l *log.Logger, component string) *log.Logger {
	if l == nil {
		l = log.Default()
	}
	return l.WithPrefix(strings.ToUpper(component))
}

// #endregion new
