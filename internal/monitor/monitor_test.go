package monitor

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartlab/vehiclesim/pkg/core"
)

type fakeWorker struct {
	mu       sync.Mutex
	run      *core.Run
	recorded int
	dropped  int
}

func (f *fakeWorker) Run() (core.Run, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.run == nil {
		return core.Run{}, false
	}
	return *f.run, true
}

func (f *fakeWorker) StateCounts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recorded, f.dropped
}

func (f *fakeWorker) GetLastDBWriteDuration() time.Duration { return 1500 * time.Microsecond }

type queuedBackend struct{}

func (queuedBackend) QueueLengths() (int, int) { return 42, 3 }
func (queuedBackend) DroppedStates() uint64 { return 5 }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetStatus_NoRun(t *testing.T) {
	s := NewService(Dependencies{Worker: &fakeWorker{}, Logger: quietLogger()})
	_, ok := s.GetStatus()
	assert.False(t, ok)
}

func TestGetStatus(t *testing.T) {
	w := &fakeWorker{run: &core.Run{RunID: "abc"}, recorded: 10, dropped: 2}

	s := NewService(Dependencies{Worker: w, Backend: queuedBackend{}, Logger: quietLogger()})
	status, ok := s.GetStatus()
	require.True(t, ok)
	assert.Equal(t, "abc", status.RunID)
	assert.Equal(t, 10, status.RecordedStates)
	assert.Equal(t, 2, status.DroppedStates)
	assert.Equal(t, 42, status.QueuedStates)
	assert.Equal(t, 3, status.QueuedWarnings)
	assert.Equal(t, uint64(5), status.DiscardedRows)
	assert.InDelta(t, 1.5, status.LastWriteMs, 1e-9)
}

func TestGetStatus_UnqueuedBackend(t *testing.T) {
	w := &fakeWorker{run: &core.Run{RunID: "abc"}}
	s := NewService(Dependencies{Worker: w, Backend: struct{}{}, Logger: quietLogger()})
	status, ok := s.GetStatus()
	require.True(t, ok)
	assert.Zero(t, status.QueuedStates)
}

func TestDefaults(t *testing.T) {
	s := NewService(Dependencies{Worker: &fakeWorker{}})
	assert.Equal(t, DefaultInterval, s.deps.Interval)
	assert.NotNil(t, s.deps.Logger)
}

func TestStartWritesStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w := &fakeWorker{run: &core.Run{RunID: "live"}, recorded: 7}

	s := NewService(Dependencies{
		Worker:     w,
		Logger:     quietLogger(),
		StatusPath: path,
		Interval:   5 * time.Millisecond,
	})
	s.Start()
	s.Start() // second start is a no-op
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Status
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "live", got.RunID)
	assert.Equal(t, 7, got.RecordedStates)
}

func TestNoSamplesWithoutRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{
		Worker:     &fakeWorker{},
		Logger:     quietLogger(),
		StatusPath: path,
		Interval:   2 * time.Millisecond,
	})
	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	assert.NoFileExists(t, path)
}
