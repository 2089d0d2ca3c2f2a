package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/storage"
	"github.com/kartlab/vehiclesim/pkg/core"
)

var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Uploadable = (*Backend)(nil)
)

func started(t *testing.T, run core.Run) *Backend {
	t.Helper()
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	if err := b.StartRun(&run); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	return b
}

func TestNothingRecordedBeforeStartRun(t *testing.T) {
	b := New(config.MemoryConfig{})

	calls := map[string]error{
		"AddVehicle":          b.AddVehicle(&core.Vehicle{ID: 1}),
		"RecordVehicleState":  b.RecordVehicleState(&core.VehicleState{VehicleID: 1}),
		"RecordTuningWarning": b.RecordTuningWarning(&core.TuningWarning{}),
		"EndRun":              b.EndRun(&core.Run{}),
	}
	for name, err := range calls {
		if !errors.Is(err, storage.ErrNoActiveRun) {
			t.Errorf("%s: expected ErrNoActiveRun, got %v", name, err)
		}
	}
	if meta := b.GetExportMetadata(); meta != (core.UploadMetadata{}) {
		t.Errorf("expected empty metadata, got %+v", meta)
	}
	if _, ok := b.GetVehicle(1); ok {
		t.Error("no vehicle should be known")
	}
}

func TestStartRunKeepsACopy(t *testing.T) {
	run := core.Run{Name: "Practice", Track: "oval"}
	b := started(t, run)

	run.Name = "changed"
	if got := b.GetExportMetadata().RunName; got != "Practice" {
		t.Errorf("stored run followed the caller's edit: %s", got)
	}
}

func TestStartRunDiscardsPreviousRecording(t *testing.T) {
	b := started(t, core.Run{Name: "First"})
	_ = b.AddVehicle(&core.Vehicle{ID: 1})
	_ = b.RecordTuningWarning(&core.TuningWarning{VehicleID: 1})

	_ = b.StartRun(&core.Run{Name: "Second"})

	if _, ok := b.GetVehicle(1); ok {
		t.Error("vehicle survived StartRun")
	}
	if n := len(b.rec.warnings); n != 0 {
		t.Errorf("%d warnings survived StartRun", n)
	}
}

func TestVehiclesAndStates(t *testing.T) {
	b := started(t, core.Run{Name: "Test"})
	if err := b.AddVehicle(&core.Vehicle{ID: 3, Name: "kart-3", Mass: 15}); err != nil {
		t.Fatal(err)
	}

	v, ok := b.GetVehicle(3)
	if !ok || v.Name != "kart-3" {
		t.Fatalf("GetVehicle(3) = %+v, %v", v, ok)
	}

	for tick := uint(1); tick <= 3; tick++ {
		if err := b.RecordVehicleState(&core.VehicleState{VehicleID: 3, Tick: tick}); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(b.rec.vehicles[3].States); n != 3 {
		t.Errorf("expected 3 states, got %d", n)
	}

	err := b.RecordVehicleState(&core.VehicleState{VehicleID: 9})
	if !errors.Is(err, storage.ErrUnknownVehicle) {
		t.Errorf("expected ErrUnknownVehicle, got %v", err)
	}
}

func TestExportMetadata(t *testing.T) {
	tests := []struct {
		name   string
		dt     float64
		ticks  map[uint16]uint // vehicle -> last tick
		ended  float64         // duration passed to EndRun, 0 to skip
		expect float64
	}{
		{name: "no states", dt: 0.02, expect: 0},
		{name: "estimated from ticks", dt: 0.02, ticks: map[uint16]uint{1: 100}, expect: 2},
		{name: "latest vehicle wins", dt: 0.5, ticks: map[uint16]uint{1: 50, 2: 200}, expect: 100},
		{name: "ended run reports its duration", dt: 0.02, ticks: map[uint16]uint{1: 100}, ended: 12, expect: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := started(t, core.Run{Name: "Meta", Track: "oval", Tag: "tuning", FixedDeltaTime: tt.dt})
			for id, tick := range tt.ticks {
				_ = b.AddVehicle(&core.Vehicle{ID: id})
				_ = b.RecordVehicleState(&core.VehicleState{VehicleID: id, Tick: tick})
			}
			if tt.ended > 0 {
				if err := b.EndRun(&core.Run{Duration: tt.ended, EndTime: time.Now()}); err != nil {
					t.Fatal(err)
				}
			}

			meta := b.GetExportMetadata()
			want := core.UploadMetadata{RunName: "Meta", Track: "oval", Tag: "tuning", Duration: tt.expect}
			if meta != want {
				t.Errorf("got %+v, want %+v", meta, want)
			}
		})
	}
}

func TestEndRunTakesFinalTiming(t *testing.T) {
	start := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	b := started(t, core.Run{Name: "Timed", StartTime: start})

	end := start.Add(12 * time.Second)
	if err := b.EndRun(&core.Run{EndTime: end, Duration: 12}); err != nil {
		t.Fatalf("EndRun: %v", err)
	}
	if !b.rec.run.EndTime.Equal(end) {
		t.Errorf("EndTime = %v, want %v", b.rec.run.EndTime, end)
	}
}

func TestConcurrentRecording(t *testing.T) {
	const vehicles, perVehicle = 10, 100
	b := started(t, core.Run{Name: "Concurrent"})
	for id := uint16(1); id <= vehicles; id++ {
		_ = b.AddVehicle(&core.Vehicle{ID: id})
	}

	var wg sync.WaitGroup
	for id := uint16(1); id <= vehicles; id++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for tick := range uint(perVehicle) {
				_ = b.RecordVehicleState(&core.VehicleState{VehicleID: id, Tick: tick})
			}
		}()
		go func() {
			defer wg.Done()
			for range perVehicle {
				_, _ = b.GetVehicle(id)
				_ = b.GetExportMetadata()
			}
		}()
	}
	wg.Wait()

	for id := uint16(1); id <= vehicles; id++ {
		if n := len(b.rec.vehicles[id].States); n != perVehicle {
			t.Errorf("vehicle %d: %d states, want %d", id, n, perVehicle)
		}
	}
}
