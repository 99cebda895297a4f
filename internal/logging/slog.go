package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// console is where records go when no file is configured. stdout carries
// replay output, so logs stay on stderr.
var console io.Writer = os.Stderr

// Options configures SlogManager.Setup.
type Options struct {
	// Writer receives text records; console when nil.
	Writer io.Writer
	// Level is debug, info, warn or error (any case). Unknown values mean info.
	Level string
	// Provider, when set, also exports every record through OTel.
	Provider *sdklog.LoggerProvider
	// State is evaluated per record, typically the open board.
	State AttrsFunc
}

// SlogManager owns the process logger and the OTel log provider behind it.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// utcTime renders record times as RFC3339 in UTC.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup (re)builds the logger. Calling it again replaces the previous sinks.
func (m *SlogManager) Setup(opts Options) {
	w := opts.Writer
	if w == nil {
		w = console
	}
	text := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(opts.Level),
		ReplaceAttr: utcTime,
	})

	var bridge slog.Handler
	if opts.Provider != nil {
		bridge = otelslog.NewHandler("planeboard", otelslog.WithLoggerProvider(opts.Provider))
	}
	m.logProvider = opts.Provider

	m.logger = slog.New(WithState(Fanout(text, bridge), opts.State))
	m.logger.Debug("Logging initialized", "level", parseLevel(opts.Level).String())
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush exports buffered OTel records.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
