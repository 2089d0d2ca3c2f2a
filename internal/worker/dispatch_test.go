package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartlab/vehiclesim/internal/cache"
	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/internal/dispatcher"
	"github.com/kartlab/vehiclesim/internal/input"
	"github.com/kartlab/vehiclesim/internal/physics"
	"github.com/kartlab/vehiclesim/internal/sim"
	"github.com/kartlab/vehiclesim/internal/storage"
	"github.com/kartlab/vehiclesim/internal/storage/memory"
	v1 "github.com/kartlab/vehiclesim/internal/storage/memory/export/v1"
	"github.com/kartlab/vehiclesim/pkg/core"
	"github.com/kartlab/vehiclesim/pkg/dynamics"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Debug(msg string, _ ...any) { l.log(msg) }
func (l *mockLogger) Info(msg string, _ ...any)  { l.log(msg) }
func (l *mockLogger) Error(msg string, _ ...any) { l.log(msg) }

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu sync.Mutex

	started       []*core.Run
	ended         []*core.Run
	vehicles      []*core.Vehicle
	vehicleStates []*core.VehicleState
	warnings      []*core.TuningWarning

	startErr error
	stateErr error
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	run.ID = uint(len(b.started) + 1)
	b.started = append(b.started, run)
	return nil
}

func (b *mockBackend) EndRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = append(b.ended, run)
	return nil
}

func (b *mockBackend) AddVehicle(v *core.Vehicle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vehicles = append(b.vehicles, v)
	return nil
}

func (b *mockBackend) RecordVehicleState(s *core.VehicleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stateErr != nil {
		return b.stateErr
	}
	b.vehicleStates = append(b.vehicleStates, s)
	return nil
}

func (b *mockBackend) RecordTuningWarning(w *core.TuningWarning) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.warnings = append(b.warnings, w)
	return nil
}

type durationBackend struct {
	mockBackend
}

func (b *durationBackend) GetLastDBWriteDuration() time.Duration { return 42 * time.Millisecond }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestManager(b storage.Backend) *Manager {
	return NewManager(Dependencies{
		VehicleCache: cache.NewVehicleCache(),
		Logger:       quietLogger(),
	}, b)
}

func event(cmd string, p any) dispatcher.Event {
	return dispatcher.Event{Command: cmd, Payload: p}
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Dependencies{}, &mockBackend{})
	assert.NotNil(t, m.deps.VehicleCache)
	assert.NotNil(t, m.deps.Logger)
	_, ok := m.Run()
	assert.False(t, ok)
}

func TestRegisterHandlers_RegistersAllCommands(t *testing.T) {
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	defer d.Close()

	newTestManager(&mockBackend{}).RegisterHandlers(d)

	for _, cmd := range []string{
		sim.CmdRunStart, sim.CmdRunEnd, sim.CmdVehicleAdd,
		sim.CmdVehicleState, sim.CmdVehicleWarning,
	} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}
}

func TestStartRun_CopiesRun(t *testing.T) {
	b := &mockBackend{}
	m := newTestManager(b)
	m.deps.VehicleCache.Add(core.Vehicle{ID: 9})

	src := &core.Run{RunID: "r1", Name: "sprint"}
	id, err := m.startRun(src)
	require.NoError(t, err)
	assert.Equal(t, uint(1), id)

	require.Len(t, b.started, 1)
	assert.NotSame(t, src, b.started[0])
	assert.Zero(t, src.ID, "simulator record must not be touched")
	assert.Zero(t, m.deps.VehicleCache.Len(), "cache is reset per run")

	run, ok := m.Run()
	require.True(t, ok)
	assert.Equal(t, "sprint", run.Name)
	assert.Equal(t, uint(1), run.ID)
}

func TestStartRun_BackendError(t *testing.T) {
	b := &mockBackend{startErr: errors.New("db down")}
	m := newTestManager(b)

	_, err := m.startRun(&core.Run{RunID: "r1"})
	require.Error(t, err)
	_, ok := m.Run()
	assert.False(t, ok)
}

func TestTyped_RejectsWrongPayload(t *testing.T) {
	m := newTestManager(&mockBackend{})
	handlers := map[string]dispatcher.HandlerFunc{
		sim.CmdRunStart:       typed(m.startRun),
		sim.CmdRunEnd:         typed(m.finishRun),
		sim.CmdVehicleAdd:     typed(m.addVehicle),
		sim.CmdVehicleState:   typed(m.recordState),
		sim.CmdVehicleWarning: typed(m.recordWarning),
	}
	for cmd, h := range handlers {
		t.Run(cmd, func(t *testing.T) {
			_, err := h(event(cmd, "not a record"))
			assert.ErrorIs(t, err, ErrUnexpectedPayload)

			_, err = h(event(cmd, nil))
			assert.ErrorIs(t, err, ErrUnexpectedPayload)
		})
	}
}

func TestRecordState_TooEarly(t *testing.T) {
	b := &mockBackend{}
	m := newTestManager(b)

	_, err := m.recordState(&core.VehicleState{VehicleID: 3})
	assert.ErrorIs(t, err, ErrTooEarlyForStateAssociation)
	assert.Empty(t, b.vehicleStates)

	recorded, dropped := m.StateCounts()
	assert.Equal(t, 0, recorded)
	assert.Equal(t, 1, dropped)
}

func TestRecordState_AfterAdd(t *testing.T) {
	b := &mockBackend{}
	m := newTestManager(b)

	_, err := m.addVehicle(&core.Vehicle{ID: 3, Name: "kart"})
	require.NoError(t, err)
	_, err = m.recordState(&core.VehicleState{VehicleID: 3, Tick: 5})
	require.NoError(t, err)

	require.Len(t, b.vehicleStates, 1)
	assert.Equal(t, uint(5), b.vehicleStates[0].Tick)
	recorded, dropped := m.StateCounts()
	assert.Equal(t, 1, recorded)
	assert.Equal(t, 0, dropped)
}

func TestRecordState_BackendError(t *testing.T) {
	b := &mockBackend{stateErr: storage.ErrNoActiveRun}
	m := newTestManager(b)
	m.deps.VehicleCache.Add(core.Vehicle{ID: 1})

	_, err := m.recordState(&core.VehicleState{VehicleID: 1})
	assert.ErrorIs(t, err, storage.ErrNoActiveRun)
	_, dropped := m.StateCounts()
	assert.Equal(t, 1, dropped)
}

func TestRecordWarning(t *testing.T) {
	b := &mockBackend{}
	m := newTestManager(b)

	w := &core.TuningWarning{VehicleID: 2, Field: "turnStrength", Value: 100}
	_, err := m.recordWarning(w)
	assert.ErrorIs(t, err, ErrTooEarlyForStateAssociation)

	m.deps.VehicleCache.Add(core.Vehicle{ID: 2})
	_, err = m.recordWarning(w)
	require.NoError(t, err)
	require.Len(t, b.warnings, 1)
	assert.Equal(t, "turnStrength", b.warnings[0].Field)
}

func TestFinishRun_UnknownRun(t *testing.T) {
	m := newTestManager(&mockBackend{})
	_, err := m.finishRun(&core.Run{RunID: "nope"})
	assert.Error(t, err)
}

func TestEndRun_WithoutStart(t *testing.T) {
	m := newTestManager(&mockBackend{})
	assert.ErrorIs(t, m.EndRun(), storage.ErrNoActiveRun)
}

func TestEndRun_PassesTiming(t *testing.T) {
	b := &mockBackend{}
	m := newTestManager(b)

	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &core.Run{RunID: "r1", StartTime: start}
	_, err := m.startRun(src)
	require.NoError(t, err)

	src.EndTime = start.Add(90 * time.Second)
	src.Duration = 90
	_, err = m.finishRun(src)
	require.NoError(t, err)
	assert.Empty(t, b.ended, "backend is only closed by EndRun")

	require.NoError(t, m.EndRun())
	require.Len(t, b.ended, 1)
	assert.Equal(t, uint(1), b.ended[0].ID)
	assert.Equal(t, 90.0, b.ended[0].Duration)
	assert.Equal(t, start.Add(90*time.Second), b.ended[0].EndTime)

	assert.ErrorIs(t, m.EndRun(), storage.ErrNoActiveRun, "run can only be ended once")
}

func TestGetLastDBWriteDuration(t *testing.T) {
	assert.Zero(t, newTestManager(&mockBackend{}).GetLastDBWriteDuration())
	assert.Equal(t, 42*time.Millisecond, newTestManager(&durationBackend{}).GetLastDBWriteDuration())
}

func TestDispatch_BufferedStatesDrainBeforeEndRun(t *testing.T) {
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)

	b := &mockBackend{}
	m := newTestManager(b)
	m.RegisterHandlers(d)

	run := &core.Run{RunID: "r1"}
	_, err = d.Dispatch(event(sim.CmdRunStart, run))
	require.NoError(t, err)
	_, err = d.Dispatch(event(sim.CmdVehicleAdd, &core.Vehicle{ID: 1}))
	require.NoError(t, err)
	for tick := uint(1); tick <= 500; tick++ {
		_, err = d.Dispatch(event(sim.CmdVehicleState, &core.VehicleState{VehicleID: 1, Tick: tick}))
		require.NoError(t, err)
	}
	_, err = d.Dispatch(event(sim.CmdRunEnd, run))
	require.NoError(t, err)

	d.Close()
	require.NoError(t, m.EndRun())

	assert.Len(t, b.vehicleStates, 500)
	assert.Len(t, b.ended, 1)
}

func TestSimulatorToMemoryExport(t *testing.T) {
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)

	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, backend.Init())
	m := newTestManager(backend)
	m.RegisterHandlers(d)

	body := physics.DefaultBodySpec()
	body.Position = mgl64.Vec3{0, 0.5, 0}
	weakBody := body
	weakBody.Position = mgl64.Vec3{10, 0.5, 0}
	weak := dynamics.DefaultConfig()
	weak.TurnStrength = 100
	specs := []sim.VehicleSpec{
		{Name: "kart", Body: body, Tuning: dynamics.DefaultConfig(), Script: input.Script{{At: 0, Vertical: 1}}},
		{Name: "weak", Body: weakBody, Tuning: weak, Script: input.Script{{At: 0, Vertical: 1}}},
	}

	opts := sim.DefaultOptions()
	opts.Name = "sprint"
	opts.Duration = 1
	opts.CaptureEvery = 5
	s, err := sim.New(opts, &physics.Terrain{}, specs, sim.WithEmitter(d), sim.WithLogger(quietLogger()))
	require.NoError(t, err)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	d.Close()
	require.NoError(t, m.EndRun())

	path := backend.GetExportedFilePath()
	require.NotEmpty(t, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var export v1.Export
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, "sprint", export.RunName)
	assert.Equal(t, summary.RunID, export.RunID)
	require.Len(t, export.Vehicles, 3, "sparse by id, index 0 unused")
	assert.Len(t, export.Vehicles[1].States, int(summary.Ticks)/5)
	assert.NotEmpty(t, export.Warnings, "weak steering raises a tuning warning")

	recorded, dropped := m.StateCounts()
	assert.Equal(t, 2*int(summary.Ticks)/5, recorded)
	assert.Zero(t, dropped)
}
