package initializer

import (
	"io"
	"log/slog"
	"os"

	"github.com/amirasaad/settlement/pkg/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// SetupLogger builds the process logger from cfg and makes it the slog default.
func SetupLogger(cfg *config.Log) *slog.Logger {
	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)
	return logger
}

var (
	infoColor  = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	warnColor  = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}
	errorColor = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}
	debugColor = lipgloss.AdaptiveColor{Light: "#7E57C2", Dark: "#7E57C2"}
)

// newLogger builds a charm logger behind slog. Levels use charm's scale,
// where -4 is debug and 0 is info.
func newLogger(w io.Writer, cfg *config.Log) *slog.Logger {
	if cfg == nil {
		cfg = &config.Log{}
	}
	styles := log.DefaultStyles()
	for level, s := range map[log.Level]struct {
		badge string
		color lipgloss.AdaptiveColor
	}{
		log.ErrorLevel: {"ERR", errorColor},
		log.WarnLevel:  {"WRN", warnColor},
		log.InfoLevel:  {"INF", infoColor},
		log.DebugLevel: {"DBG", debugColor},
	} {
		styles.Levels[level] = lipgloss.NewStyle().SetString(s.badge).Bold(true).Padding(0, 1).Foreground(s.color)
	}
	for key, color := range map[string]lipgloss.AdaptiveColor{
		"error":     errorColor,
		"tenant_id": infoColor,
		"job":       warnColor,
		"service":   debugColor,
		"prefix":    debugColor,
		"caller":    debugColor,
		"time":      debugColor,
	} {
		styles.Keys[key] = lipgloss.NewStyle().Foreground(color)
		styles.Values[key] = lipgloss.NewStyle().Bold(true)
	}

	formatter := log.TextFormatter
	switch cfg.Format {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Level:           log.Level(cfg.Level),
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
	})
	logger.SetStyles(styles)
	return slog.New(logger)
}
