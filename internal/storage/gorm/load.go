package gormstorage

import (
	"errors"
	"fmt"

	"github.com/kartlab/vehiclesim/internal/model"
	"github.com/kartlab/vehiclesim/internal/model/convert"
	v1 "github.com/kartlab/vehiclesim/internal/storage/memory/export/v1"
	"github.com/kartlab/vehiclesim/pkg/core"

	"gorm.io/gorm"
)

// ErrRunNotFound is returned when no run matches the requested UUID.
var ErrRunNotFound = errors.New("run not found")

// LoadRun reads a stored run back into the shape the JSON export is built from.
func LoadRun(db *gorm.DB, runUUID string) (*v1.RunData, error) {
	var run model.Run
	if err := db.Where("run_uuid = ?", runUUID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runUUID)
		}
		return nil, fmt.Errorf("failed to load run %s: %w", runUUID, err)
	}

	var vehicles []model.Vehicle
	if err := db.Where("run_id = ?", run.ID).Order("object_id").Find(&vehicles).Error; err != nil {
		return nil, fmt.Errorf("failed to load vehicles: %w", err)
	}

	var states []model.VehicleState
	if err := db.Where("run_id = ?", run.ID).Order("vehicle_object_id, tick").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to load vehicle states: %w", err)
	}

	var warnings []model.TuningWarning
	if err := db.Where("run_id = ?", run.ID).Order("id").Find(&warnings).Error; err != nil {
		return nil, fmt.Errorf("failed to load tuning warnings: %w", err)
	}

	coreRun := convert.RunToCore(run)
	data := &v1.RunData{
		Run:      &coreRun,
		Vehicles: make(map[uint16]*v1.VehicleRecord, len(vehicles)),
		Warnings: make([]core.TuningWarning, 0, len(warnings)),
	}
	for _, v := range vehicles {
		data.Vehicles[v.ObjectID] = &v1.VehicleRecord{
			Vehicle: convert.VehicleToCore(v),
			States:  make([]core.VehicleState, 0),
		}
	}
	for _, s := range states {
		record, ok := data.Vehicles[s.VehicleObjectID]
		if !ok {
			continue
		}
		record.States = append(record.States, convert.VehicleStateToCore(s))
	}
	for _, w := range warnings {
		data.Warnings = append(data.Warnings, convert.TuningWarningToCore(w))
	}
	return data, nil
}

// ListRuns returns stored runs, newest first.
func ListRuns(db *gorm.DB) ([]core.Run, error) {
	var runs []model.Run
	if err := db.Order("start_time desc").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	out := make([]core.Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, convert.RunToCore(r))
	}
	return out, nil
}
