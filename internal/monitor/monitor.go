// Package monitor reports the health of a run in progress: how many states
// reached storage, how far the database writer lags behind and how long its
// last flush took.
package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kartlab/vehiclesim/internal/influx"
	"github.com/kartlab/vehiclesim/pkg/core"
)

// DefaultInterval is the sampling period when none is configured.
const DefaultInterval = time.Second

// RunSource is the worker-side view of the active run.
type RunSource interface {
	Run() (core.Run, bool)
	StateCounts() (recorded, dropped int)
	GetLastDBWriteDuration() time.Duration
}

// QueueLengthProvider is implemented by backends that buffer writes.
type QueueLengthProvider interface {
	QueueLengths() (states, warnings int)
}

// DiscardCounter is implemented by backends whose bounded queues discard
// rows under pressure.
type DiscardCounter interface {
	DroppedStates() uint64
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Worker     RunSource
	Backend    any             // checked for QueueLengthProvider and DiscardCounter
	Influx     *influx.Manager // optional
	Logger     *slog.Logger
	StatusPath string // rewritten on every sample, empty to skip
	Interval   time.Duration
}

// Status is one sample.
type Status struct {
	Time           time.Time `json:"time"`
	RunID          string    `json:"runId"`
	RecordedStates int       `json:"recordedStates"`
	DroppedStates  int       `json:"droppedStates"`
	QueuedStates   int       `json:"queuedStates"`
	QueuedWarnings int       `json:"queuedWarnings"`
	DiscardedRows  uint64    `json:"discardedRows"`
	LastWriteMs    float64   `json:"lastWriteMs"`
}

// Service manages status monitoring
type Service struct {
	deps Dependencies

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// GetStatus samples the current state. ok is false when no run is active.
func (s *Service) GetStatus() (status Status, ok bool) {
	run, active := s.deps.Worker.Run()
	if !active {
		return Status{}, false
	}
	recorded, dropped := s.deps.Worker.StateCounts()
	status = Status{
		Time:           time.Now(),
		RunID:          run.RunID,
		RecordedStates: recorded,
		DroppedStates:  dropped,
		LastWriteMs:    float64(s.deps.Worker.GetLastDBWriteDuration()) / float64(time.Millisecond),
	}
	if q, isQueued := s.deps.Backend.(QueueLengthProvider); isQueued {
		status.QueuedStates, status.QueuedWarnings = q.QueueLengths()
	}
	if d, discards := s.deps.Backend.(DiscardCounter); discards {
		status.DiscardedRows = d.DroppedStates()
	}
	return status, true
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
}

// Stop stops the status monitor and waits for the last sample to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	logger := s.deps.Logger
	logger.Debug("Starting status monitor", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			status, ok := s.GetStatus()
			if !ok {
				continue
			}
			s.publish(status)
		}
	}
}

func (s *Service) publish(status Status) {
	logger := s.deps.Logger

	if s.deps.StatusPath != "" {
		if err := writeStatusFile(s.deps.StatusPath, status); err != nil {
			logger.Error("Error writing status file", "path", s.deps.StatusPath, "error", err)
		}
	}

	if s.deps.Influx != nil {
		err := s.deps.Influx.WritePerformance(status.RunID, map[string]any{
			"recordedStates": status.RecordedStates,
			"droppedStates":  status.DroppedStates,
			"queuedStates":   status.QueuedStates,
			"queuedWarnings": status.QueuedWarnings,
			"discardedRows":  int64(status.DiscardedRows),
			"lastDBWriteMs":  status.LastWriteMs,
		}, status.Time)
		if err != nil {
			logger.Error("Error writing status to InfluxDB", "error", err)
		}
	}
}

func writeStatusFile(path string, status Status) error {
	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0644)
}
