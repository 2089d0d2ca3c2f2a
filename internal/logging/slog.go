package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// InstrumentationName identifies records forwarded to OpenTelemetry.
const InstrumentationName = "github.com/kartlab/vehiclesim"

// overridable in tests
var osStderr io.Writer = os.Stderr

// Options selects where records go. The zero value logs info and above to
// stderr.
type Options struct {
	Output      io.Writer // text records, stderr when nil
	Level       string
	LogProvider *sdklog.LoggerProvider // OTel export, disabled when nil
	Sinks       []io.Writer            // JSON records, e.g. a GELF writer
}

// SlogManager owns the process logger and, when configured, the OTel log
// provider behind it.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
	runAttrs    AttrsFunc
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// SetRunAttrs adds fn's attributes to every record of loggers built by later
// Setup calls.
func (m *SlogManager) SetRunAttrs(fn AttrsFunc) {
	m.runAttrs = fn
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func utcTimestamps(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup replaces the logger. Loggers returned earlier keep their old outputs.
func (m *SlogManager) Setup(opts Options) {
	handlerOpts := &slog.HandlerOptions{
		Level:       parseLevel(opts.Level),
		ReplaceAttr: utcTimestamps,
	}

	out := opts.Output
	if out == nil {
		out = osStderr
	}
	handlers := []slog.Handler{slog.NewTextHandler(out, handlerOpts)}
	for _, sink := range opts.Sinks {
		if sink != nil {
			handlers = append(handlers, slog.NewJSONHandler(sink, handlerOpts))
		}
	}
	if opts.LogProvider != nil {
		handlers = append(handlers, otelslog.NewHandler(InstrumentationName, otelslog.WithLoggerProvider(opts.LogProvider)))
	}
	m.logProvider = opts.LogProvider

	var handler slog.Handler = newFanout(handlers...)
	if m.runAttrs != nil {
		handler = runAttrs{next: handler, attrs: m.runAttrs}
	}
	m.logger = slog.New(handler)
	m.logger.Debug("Logging initialized", "level", handlerOpts.Level)
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes buffered OTel records to the exporter.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
