package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"text/tabwriter"

	"github.com/kartlab/vehiclesim/internal/api"
	"github.com/kartlab/vehiclesim/internal/cache"
	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/dispatcher"
	"github.com/kartlab/vehiclesim/internal/influx"
	"github.com/kartlab/vehiclesim/internal/logging"
	"github.com/kartlab/vehiclesim/internal/monitor"
	"github.com/kartlab/vehiclesim/internal/sim"
	"github.com/kartlab/vehiclesim/internal/storage"
	"github.com/kartlab/vehiclesim/internal/worker"
)

// runCommand simulates the configured scenario, persists it through the
// configured backend and optionally uploads the export.
func (a *app) runCommand(ctx context.Context) error {
	sc, err := loadScenario()
	if err != nil {
		return err
	}
	if err := validateScripts(sc.Vehicles); err != nil {
		return err
	}

	vehicleCache := cache.NewVehicleCache()
	storageCfg := config.GetStorageConfig()
	backend, err := createStorageBackend(storageCfg, vehicleCache, a.log)
	if err != nil {
		return err
	}
	backend, err = initStorage(backend, sqliteFallback(storageCfg, vehicleCache, a.log), a.log)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			a.log.Error("Failed to close storage backend", "error", err)
		}
	}()

	var influxManager *influx.Manager
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		backupPath := filepath.Join(config.LogsDir(), "influx_backup.log.gz")
		influxManager = influx.NewManager(a.componentLogger("influx"), influxCfg, backupPath)
		if err := influxManager.Connect(ctx); err != nil {
			a.log.Error("Failed to set up InfluxDB, continuing without it", "error", err)
			influxManager = nil
		} else {
			defer func() {
				if err := influxManager.Close(); err != nil {
					a.log.Error("Failed to close InfluxDB manager", "error", err)
				}
			}()
		}
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.componentLogger("dispatcher")))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	workerManager := worker.NewManager(worker.Dependencies{
		VehicleCache: vehicleCache,
		Influx:       influxManager,
		Logger:       a.log,
	}, backend)
	workerManager.RegisterHandlers(d)

	statusMonitor := monitor.NewService(monitor.Dependencies{
		Worker:     workerManager,
		Backend:    backend,
		Influx:     influxManager,
		Logger:     a.log.With("component", "monitor"),
		StatusPath: filepath.Join(config.LogsDir(), "status.json"),
		Interval:   config.StatusInterval(),
	})

	s, err := sim.New(sc.Options, sc.Terrain, sc.Vehicles,
		sim.WithEmitter(d),
		sim.WithLogger(a.log),
	)
	if err != nil {
		d.Close()
		return fmt.Errorf("creating simulator: %w", err)
	}
	info := s.RunInfo()
	a.setRun(info.RunID, info.Name)
	defer a.setRun("", "")

	statusMonitor.Start()
	summary, runErr := s.Run(ctx)

	// every buffered state must reach storage before the run is closed
	d.Close()
	a.logDispatchStats(d)
	statusMonitor.Stop()
	endErr := workerManager.EndRun()
	a.flushTelemetry()

	a.printSummary(summary)

	if endErr == nil {
		a.upload(ctx, backend)
	}

	if errors.Is(runErr, context.Canceled) {
		a.log.Warn("Run interrupted, partial run stored", "simTime", summary.SimTime)
		runErr = nil
	}
	return errors.Join(runErr, endErr)
}

// upload sends the run export to the web frontend when enabled. Failures are
// logged; the local export stays on disk either way.
func (a *app) upload(ctx context.Context, backend storage.Backend) {
	apiCfg := config.GetAPIConfig()
	if !apiCfg.Upload {
		return
	}
	u, ok := uploadable(backend)
	if !ok {
		a.log.Warn("Upload enabled but storage backend produces no export file")
		return
	}
	path := u.GetExportedFilePath()
	if path == "" {
		a.log.Warn("Upload enabled but no export file was written")
		return
	}

	client := api.New(apiCfg.ServerURL, apiCfg.APIKey, api.WithTimeout(apiCfg.Timeout), api.WithRetries(apiCfg.Retries))
	if err := client.Healthcheck(ctx); err != nil {
		a.log.Error("Web frontend unreachable, skipping upload", "url", apiCfg.ServerURL, "error", err)
		return
	}
	if err := client.Upload(ctx, path, u.GetExportMetadata()); err != nil {
		a.log.Error("Failed to upload run", "file", path, "error", err)
		return
	}
	a.log.Info("Uploaded run", "file", path)
	fmt.Fprintf(a.stdout, "uploaded %s\n", path)
}

func (a *app) printSummary(s sim.Summary) {
	fmt.Fprintf(a.stdout, "run %s: %d ticks, %d frames, %.2fs simulated\n", s.RunID, s.Ticks, s.Frames, s.SimTime)
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tTOP SPEED\tFINAL SPEED\tDISTANCE\tCLAMPS\tAIRBORNE")
	for _, v := range s.Vehicles {
		fmt.Fprintf(w, "%d\t%s\t%t\t%.2f\t%.2f\t%.1f\t%d\t%d\n",
			v.ID, v.Name, v.Enabled, v.TopSpeed, v.FinalSpeed, v.Distance, v.Clamps, v.AirborneTicks)
	}
	_ = w.Flush()
}

// logDispatchStats reports per-command counters once the lanes are drained.
func (a *app) logDispatchStats(d *dispatcher.Dispatcher) {
	stats := d.Stats()
	for _, cmd := range d.Commands() {
		st := stats[cmd]
		level := slog.LevelDebug
		if st.Failed > 0 || st.Dropped > 0 {
			level = slog.LevelWarn
		}
		a.log.Log(context.Background(), level, "Dispatch totals",
			"command", cmd, "handled", st.Handled, "failed", st.Failed, "dropped", st.Dropped)
	}
}
