package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"gorm.io/gorm"

	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/database"
	gormstorage "github.com/kartlab/vehiclesim/internal/storage/gorm"
	"github.com/kartlab/vehiclesim/internal/storage/memory"
	"github.com/kartlab/vehiclesim/pkg/dynamics"
)

// ErrNoRunStore is returned by export and list when runs are not kept in a database.
var ErrNoRunStore = errors.New("storage type keeps no run database")

// validateCommand prints tuning advisories for every configured vehicle and
// fails on a broken input script.
func (a *app) validateCommand() error {
	vehicles, err := config.GetVehicleConfigs()
	if err != nil {
		return err
	}

	var scriptErrs []error
	for _, vc := range vehicles {
		warnings := dynamics.Validate(vc.Tuning)
		if len(warnings) == 0 {
			fmt.Fprintf(a.stdout, "%s: ok\n", vc.Name)
		}
		for _, w := range warnings {
			fmt.Fprintf(a.stdout, "%s: %s = %g: %s\n", vc.Name, w.Field, w.Value, w.Message)
		}
		if vc.Detached {
			fmt.Fprintf(a.stdout, "%s: detached, controller will stay disabled\n", vc.Name)
		}
		if err := vc.Script.Validate(); err != nil {
			fmt.Fprintf(a.stdout, "%s: script: %v\n", vc.Name, err)
			scriptErrs = append(scriptErrs, fmt.Errorf("vehicle %s script: %w", vc.Name, err))
		}
	}
	return errors.Join(scriptErrs...)
}

// openRunStore opens the database the configured backend writes runs to.
func (a *app) openRunStore() (*gorm.DB, func() error, error) {
	storageCfg := config.GetStorageConfig()
	switch storageCfg.Type {
	case "sqlite":
		if storageCfg.SQLite.Path == "" {
			return nil, nil, fmt.Errorf("%w: storage.sqlite.path is empty", ErrNoRunStore)
		}
		db, err := database.OpenSQLite(storageCfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", storageCfg.SQLite.Path, err)
		}
		return db, func() error { return database.Close(db) }, nil

	case "postgres":
		log := a.componentLogger("database")
		dbCfg := config.GetDBConfig()
		log.Debug().Str("host", dbCfg.Host).Str("database", dbCfg.Database).Msg("Opening run store")
		db, err := database.OpenPostgres(dbCfg)
		if err != nil {
			log.Error().Err(err).Msg("Run store unavailable")
			return nil, nil, err
		}
		return db, func() error { return database.Close(db) }, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrNoRunStore, storageCfg.Type)
}

// exportCommand rebuilds the JSON export of each stored run.
func (a *app) exportCommand(runIDs []string, outDir string) error {
	if len(runIDs) == 0 {
		return fmt.Errorf("%w: export needs at least one run id", errUsage)
	}
	db, closeDB, err := a.openRunStore()
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	memCfg := config.GetStorageConfig().Memory
	if outDir != "" {
		memCfg.OutputDir = outDir
	}

	var errs []error
	for _, id := range runIDs {
		data, err := gormstorage.LoadRun(db, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		jsonPath, geoPath, err := memory.Export(memCfg, data)
		if jsonPath != "" {
			fmt.Fprintln(a.stdout, jsonPath)
		}
		if geoPath != "" {
			fmt.Fprintln(a.stdout, geoPath)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("export %s: %w", id, err))
			continue
		}
		a.log.Info("Exported run", "runId", id, "path", jsonPath)
	}
	return errors.Join(errs...)
}

// listCommand prints the stored runs, newest first.
func (a *app) listCommand() error {
	db, closeDB, err := a.openRunStore()
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	runs, err := gormstorage.ListRuns(db)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tNAME\tTRACK\tTAG\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2fs\n",
			r.RunID, r.Name, r.Track, r.Tag, r.StartTime.Format("2006-01-02 15:04:05"), r.Duration)
	}
	return w.Flush()
}
