package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/logging"
	intOtel "github.com/kartlab/vehiclesim/internal/otel"
)

// app holds the process-wide services shared by every command.
type app struct {
	stdout       io.Writer
	sessionStart time.Time

	logFile     *os.File
	logFilePath string
	slog        *logging.SlogManager
	log         *slog.Logger
	otel        *intOtel.Provider
	gelf        io.Closer

	mu      sync.Mutex
	runID   string
	runName string
}

func newApp(configDir string, stdout io.Writer) (*app, error) {
	a := &app{
		stdout:       stdout,
		sessionStart: time.Now(),
		slog:         logging.NewSlogManager(),
	}

	// stderr until the log file exists
	a.slog.Setup(logging.Options{Level: config.LogLevel()})
	a.log = a.slog.Logger()

	if err := config.Load(configDir); err != nil {
		a.log.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.log.Info("Loaded config", "dir", configDir)
	}

	logFile, logFilePath, err := logging.OpenSessionLog(config.LogsDir(), AppName, a.sessionStart)
	if err != nil {
		return nil, err
	}
	a.logFile, a.logFilePath = logFile, logFilePath

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		a.otel, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: Version,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      logFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			a.log.Error("Failed to initialize OTel provider", "error", err)
		} else {
			a.otel.InstallGlobal()
			a.log.Info("OTel provider initialized", "file", a.logFilePath, "endpoint", otelCfg.Endpoint)
		}
	}

	var sinks []io.Writer
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		w, err := logging.NewGELFWriter(graylogCfg.Address, AppName)
		if err != nil {
			a.log.Error("Failed to connect to Graylog", "error", err)
		} else {
			a.gelf = w
			sinks = append(sinks, w)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if a.otel != nil {
		otelLogProvider = a.otel.LoggerProvider()
	}
	a.slog.SetRunAttrs(a.runAttrs)
	a.slog.Setup(logging.Options{
		Output:      logFile,
		Level:       config.LogLevel(),
		LogProvider: otelLogProvider,
		Sinks:       sinks,
	})
	a.log = a.slog.Logger()
	a.log.Info("Logging to file", "path", a.logFilePath, "version", Version, "buildDate", BuildDate)

	return a, nil
}

// runAttrs tags every record with the run in progress.
func (a *app) runAttrs() []slog.Attr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runID == "" {
		return nil
	}
	return []slog.Attr{slog.String("runId", a.runID), slog.String("runName", a.runName)}
}

func (a *app) setRun(id, name string) {
	a.mu.Lock()
	a.runID, a.runName = id, name
	a.mu.Unlock()
}

// componentLogger is a zerolog logger writing to the session log file.
func (a *app) componentLogger(component string) zerolog.Logger {
	return logging.NewZerolog(a.logFile, config.LogLevel(), component)
}

func (a *app) flushTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.slog.Flush(ctx); err != nil {
		a.log.Warn("Failed to flush OTel data", "error", err)
	}
}

func (a *app) close() {
	var errs []error
	if a.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.otel.Shutdown(ctx))
		cancel()
	}
	if a.gelf != nil {
		errs = append(errs, a.gelf.Close())
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}
