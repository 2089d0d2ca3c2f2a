package storage_test

import (
	"errors"
	"testing"

	"github.com/kartlab/vehiclesim/internal/storage"
	"github.com/kartlab/vehiclesim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	calls []string
	err   error
}

func (r *recordingBackend) record(name string) error {
	r.calls = append(r.calls, name)
	return r.err
}

func (r *recordingBackend) Init() error { return r.record("init") }
func (r *recordingBackend) Close() error { return r.record("close") }
func (r *recordingBackend) StartRun(*core.Run) error { return r.record("start") }
func (r *recordingBackend) EndRun(*core.Run) error { return r.record("end") }
func (r *recordingBackend) AddVehicle(*core.Vehicle) error { return r.record("vehicle") }
func (r *recordingBackend) RecordVehicleState(*core.VehicleState) error {
	return r.record("state")
}
func (r *recordingBackend) RecordTuningWarning(*core.TuningWarning) error {
	return r.record("warning")
}

type uploadableBackend struct {
	recordingBackend
	path string
}

func (u *uploadableBackend) GetExportedFilePath() string { return u.path }
func (u *uploadableBackend) GetExportMetadata() core.UploadMetadata {
	return core.UploadMetadata{RunName: "upload"}
}

func TestMultiFansOutEveryCall(t *testing.T) {
	a, b := &recordingBackend{}, &recordingBackend{}
	m := storage.Multi{a, b}

	require.NoError(t, m.Init())
	require.NoError(t, m.StartRun(&core.Run{}))
	require.NoError(t, m.AddVehicle(&core.Vehicle{ID: 1}))
	require.NoError(t, m.RecordVehicleState(&core.VehicleState{VehicleID: 1}))
	require.NoError(t, m.RecordTuningWarning(&core.TuningWarning{VehicleID: 1}))
	require.NoError(t, m.EndRun(&core.Run{}))
	require.NoError(t, m.Close())

	want := []string{"init", "start", "vehicle", "state", "warning", "end", "close"}
	assert.Equal(t, want, a.calls)
	assert.Equal(t, want, b.calls)
}

func TestMultiJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	a := &recordingBackend{err: errA}
	b := &recordingBackend{err: errB}
	ok := &recordingBackend{}

	err := storage.Multi{a, ok, b}.RecordVehicleState(&core.VehicleState{})

	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	// a failing member does not stop the others
	assert.Equal(t, []string{"state"}, ok.calls)
}

func TestMultiEmpty(t *testing.T) {
	var m storage.Multi
	assert.NoError(t, m.Init())
	_, ok := m.Uploadable()
	assert.False(t, ok)
}

func TestMultiUploadable(t *testing.T) {
	up := &uploadableBackend{path: "/tmp/run.json.gz"}
	m := storage.Multi{&recordingBackend{}, up}

	u, ok := m.Uploadable()
	require.True(t, ok)
	assert.Equal(t, "/tmp/run.json.gz", u.GetExportedFilePath())
	assert.Equal(t, "upload", u.GetExportMetadata().RunName)
}

func TestMultiSatisfiesBackend(t *testing.T) {
	var _ storage.Backend = storage.Multi{}
}
