// Package debug configures the process logger and adds category-scoped
// debug logging on top of slog.
//
// Categories select what to log (RUNCODE_DEBUG or logging.debug, comma
// separated, "all" for everything); the level selects how much
// (RUNCODE_LOG_LEVEL or logging.level: ERROR, WARN, INFO, DEBUG, TRACE).
// Category output needs both: debug.Log("runner", ...) prints only with
// the runner category on and the level at DEBUG or below.
//
// Categories: sandbox, runner, tools, transport, mcp, auth, storage, config.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

const (
	EnvCategories = "RUNCODE_DEBUG"
	EnvLevel      = "RUNCODE_LOG_LEVEL"
	EnvFormat     = "RUNCODE_LOG_FORMAT"
)

// LevelTrace sits below slog.LevelDebug. Code and output bodies are only
// logged at TRACE.
const LevelTrace = slog.LevelDebug - 4

var enabled atomic.Pointer[categorySet]

type categorySet map[string]bool

func init() {
	setCategories(os.Getenv(EnvCategories))
}

// Init installs the default slog logger on stderr. Environment variables
// take precedence over the config values; format is "text" or "json".
func Init(configCategories, configLevel, configFormat string) {
	InitTo(os.Stderr, configCategories, configLevel, configFormat)
}

// InitTo is Init with an explicit destination.
func InitTo(w io.Writer, configCategories, configLevel, configFormat string) {
	setCategories(firstNonEmpty(os.Getenv(EnvCategories), configCategories))

	opts := &slog.HandlerOptions{
		Level:       ParseLevel(firstNonEmpty(os.Getenv(EnvLevel), configLevel)),
		ReplaceAttr: renameTrace,
	}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(firstNonEmpty(os.Getenv(EnvFormat), configFormat), "json") {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// renameTrace prints LevelTrace as "TRACE" instead of slog's "DEBUG-4".
func renameTrace(_ []string, a slog.Attr) slog.Attr {
	if lvl, ok := a.Value.Any().(slog.Level); ok && a.Key == slog.LevelKey && lvl <= LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// Enabled reports whether category output is switched on.
func Enabled(category string) bool {
	set := *enabled.Load()
	return set["all"] || set[category]
}

// Log emits a DEBUG record tagged with the category.
func Log(category, msg string, args ...any) {
	emit(slog.LevelDebug, category, msg, args)
}

// Trace emits a TRACE record tagged with the category.
func Trace(category, msg string, args ...any) {
	emit(LevelTrace, category, msg, args)
}

func emit(level slog.Level, category, msg string, args []any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), level, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate shortens s to maxLen runes for log previews, marking the cut
// with "...".
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

func setCategories(s string) {
	set := categorySet{}
	for _, cat := range strings.Split(s, ",") {
		if cat = strings.ToLower(strings.TrimSpace(cat)); cat != "" {
			set[cat] = true
		}
	}
	enabled.Store(&set)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
