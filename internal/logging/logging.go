// Package logging holds the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	envLevel = "CREDITSCORE_LOG_LEVEL"
	envJSON  = "CREDITSCORE_LOG_JSON"
)

type Options struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
	// Output defaults to stderr.
	Output io.Writer `koanf:"-"`
}

var def atomic.Value

func init() {
	def.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

func Configure(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	cfg := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(out, cfg)
	} else {
		h = slog.NewTextHandler(out, cfg)
	}
	def.Store(slog.New(h))
}

// ParseLevel maps a level name to slog; unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// Run returns the logger scoped to one pipeline run.
func Run(id string) *slog.Logger { return L().With("run_id", id) }

// FromEnv reads the logging options from the environment.
func FromEnv() Options {
	opts := Options{Level: os.Getenv(envLevel)}
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(envJSON))); err == nil {
		opts.JSON = b
	}
	return opts
}

func InitFromEnv() { Configure(FromEnv()) }
