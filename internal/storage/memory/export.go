package memory

import (
	"cmp"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/geo"
	v1 "github.com/kartlab/vehiclesim/internal/storage/memory/export/v1"
	"github.com/kartlab/vehiclesim/pkg/core"
)

var unsafeFilenameChars = strings.NewReplacer(" ", "_", ":", "_", "/", "_", `\`, "_")

// exportBase names a run's files: its name made filesystem-safe and the
// start time, e.g. "Hot_Lap_20260315_143000".
func exportBase(run *core.Run) string {
	return unsafeFilenameChars.Replace(run.Name) + "_" + run.StartTime.Format("20060102_150405")
}

// Export writes data to a (optionally gzipped) JSON file in cfg.OutputDir
// and, when enabled, the driven paths to a GeoJSON file next to it. A
// GeoJSON failure still returns the JSON path.
func Export(cfg config.MemoryConfig, data *v1.RunData) (jsonPath, geoJSONPath string, err error) {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := filepath.Join(cfg.OutputDir, exportBase(data.Run))
	jsonPath = base + ".json"
	if cfg.CompressOutput {
		jsonPath += ".gz"
	}
	if err := writeFileAtomic(jsonPath, cfg.CompressOutput, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(v1.Build(data))
	}); err != nil {
		return "", "", err
	}

	if !cfg.ExportGeoJSON {
		return jsonPath, "", nil
	}
	geoJSONPath = base + ".geojson"
	if err := writeGeoJSON(geoJSONPath, data); err != nil {
		return jsonPath, "", err
	}
	return jsonPath, geoJSONPath, nil
}

// writeFileAtomic writes through fill into a temporary file that replaces
// path only once everything, gzip trailer included, reached the disk.
func writeFileAtomic(path string, compress bool, fill func(io.Writer) error) (err error) {
	tmp := path + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}

	err = fill(w)
	if gz != nil {
		err = errors.Join(err, gz.Close())
	}
	if err = errors.Join(err, f.Close()); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

func writeGeoJSON(path string, data *v1.RunData) error {
	projector, err := geo.NewProjector(data.Run.Origin)
	if err != nil {
		return fmt.Errorf("projecting paths: %w", err)
	}

	features := make([]geo.Feature, 0, len(data.Vehicles))
	for _, id := range slices.Sorted(maps.Keys(data.Vehicles)) {
		rec := data.Vehicles[id]
		// Sort a copy; the caller's slice keeps arrival order.
		states := slices.Clone(rec.States)
		slices.SortStableFunc(states, func(a, b core.VehicleState) int { return cmp.Compare(a.Tick, b.Tick) })
		features = append(features, geo.Feature{
			Name:      rec.Vehicle.Name,
			VehicleID: rec.Vehicle.ID,
			States:    states,
			Properties: map[string]any{
				"mass":     rec.Vehicle.Mass,
				"joinTick": rec.Vehicle.JoinTick,
			},
		})
	}

	out, err := projector.FeatureCollection(features)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, false, func(w io.Writer) error {
		_, err := w.Write(out)
		return err
	})
}
