// Package websocket streams run telemetry live to a dashboard server.
//
// run_start and run_end wait for the server's ack; everything else is
// queued and written in order by one goroutine. After a dropped socket the
// run header (run_start plus every add_vehicle) is replayed on the new one
// so the server can resume the run.
package websocket

import (
	"log/slog"
	"time"

	"github.com/kartlab/vehiclesim/pkg/core"
	"github.com/kartlab/vehiclesim/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
	// AckTimeout bounds the wait for run_start and run_end acks.
	// Zero means 10s.
	AckTimeout time.Duration
}

// Backend implements storage.Backend. It keeps nothing on disk, so it is
// never storage.Uploadable.
type Backend struct {
	cfg  Config
	link *link
}

func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	return &Backend{cfg: cfg, link: newLink(logger.With("backend", "websocket"))}
}

// Init connects to the server.
func (b *Backend) Init() error {
	return b.link.open(b.cfg.URL, b.cfg.Secret)
}

func (b *Backend) Close() error {
	b.link.close()
	return nil
}

// Dropped reports how many frames never reached the server.
func (b *Backend) Dropped() uint64 {
	return b.link.dropped.Load()
}

func (b *Backend) StartRun(run *core.Run) error {
	frame, err := streaming.Encode(streaming.TypeRunStart, streaming.RunStartPayload{Run: run})
	if err != nil {
		return err
	}
	b.link.setHeader(frame)
	return b.link.request(streaming.TypeRunStart, frame, b.cfg.AckTimeout)
}

// EndRun closes the run on the server. The ack also confirms every frame
// queued before it arrived.
func (b *Backend) EndRun(run *core.Run) error {
	defer b.link.setHeader()

	payload := streaming.RunEndPayload{RunID: run.RunID, Duration: run.Duration}
	if !run.EndTime.IsZero() {
		payload.EndTime = run.EndTime.UTC().Format(time.RFC3339Nano)
	}
	frame, err := streaming.Encode(streaming.TypeRunEnd, payload)
	if err != nil {
		return err
	}
	return b.link.request(streaming.TypeRunEnd, frame, b.cfg.AckTimeout)
}

func (b *Backend) AddVehicle(v *core.Vehicle) error {
	frame, err := streaming.Encode(streaming.TypeAddVehicle, v)
	if err != nil {
		return err
	}
	b.link.appendHeader(frame)
	b.link.send(frame)
	return nil
}

func (b *Backend) RecordVehicleState(s *core.VehicleState) error {
	return b.stream(streaming.TypeVehicleState, s)
}

func (b *Backend) RecordTuningWarning(w *core.TuningWarning) error {
	return b.stream(streaming.TypeTuningWarning, w)
}

func (b *Backend) stream(frameType string, payload any) error {
	frame, err := streaming.Encode(frameType, payload)
	if err != nil {
		return err
	}
	b.link.send(frame)
	return nil
}
