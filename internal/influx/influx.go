// Package influx publishes sampled vehicle states and run health to
// InfluxDB. When the server cannot be reached at startup, points are kept
// as gzip-compressed line protocol on disk for a later import.
package influx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/kartlab/vehiclesim/internal/config"
	"github.com/kartlab/vehiclesim/pkg/core"
)

const (
	// PerformanceBucket receives sim_performance points next to the
	// configured telemetry bucket.
	PerformanceBucket = "sim_performance"

	defaultTelemetryBucket = "telemetry"
	retention              = 90 * 24 * time.Hour

	writeBatchSize     = 2500
	writeFlushInterval = time.Second
)

var (
	// ErrDisabled is returned by Connect when influx.enabled is false.
	ErrDisabled = errors.New("influxdb is disabled")
	// ErrNotConnected is returned by writes before Connect or after Close.
	ErrNotConnected = errors.New("influxdb not connected")
)

// Mode says where points go.
type Mode int

const (
	ModeNone Mode = iota
	ModeServer
	ModeBackup
)

func (m Mode) String() string {
	switch m {
	case ModeServer:
		return "server"
	case ModeBackup:
		return "backup"
	}
	return "none"
}

// sink accepts points for a bucket.
type sink interface {
	write(bucket string, p point) error
	close() error
}

// Manager routes points to the server or, failing that, the backup file.
type Manager struct {
	cfg        config.InfluxConfig
	log        zerolog.Logger
	backupPath string
	buckets    []string

	mu   sync.RWMutex
	out  sink
	mode Mode
}

func NewManager(log zerolog.Logger, cfg config.InfluxConfig, backupPath string) *Manager {
	telemetry := cfg.Bucket
	if telemetry == "" {
		telemetry = defaultTelemetryBucket
	}
	return &Manager{
		cfg:        cfg,
		log:        log,
		backupPath: backupPath,
		buckets:    []string{telemetry, PerformanceBucket},
	}
}

// TelemetryBucket is the bucket vehicle_state points go to.
func (m *Manager) TelemetryBucket() string { return m.buckets[0] }

// Buckets lists every bucket the manager writes to.
func (m *Manager) Buckets() []string { return append([]string(nil), m.buckets...) }

// Mode reports where points currently go.
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Connect pings the server and provisions the organization and buckets.
// An unreachable server is not an error: points then go to the backup
// file.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(m.cfg.URL(), m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(writeBatchSize).
			SetFlushInterval(uint(writeFlushInterval/time.Millisecond)),
	)

	if up, err := client.Ping(ctx); err != nil || !up {
		client.Close()
		m.log.Warn().Err(err).Str("url", m.cfg.URL()).Str("backupPath", m.backupPath).
			Msg("InfluxDB unreachable, writing points to backup file")
		backup, err := openBackup(m.backupPath)
		if err != nil {
			return err
		}
		m.use(backup, ModeBackup)
		return nil
	}

	if err := m.provision(ctx, client); err != nil {
		client.Close()
		return err
	}
	m.use(newServerSink(client, m.cfg.Org, m.buckets, m.log), ModeServer)
	m.log.Info().Str("url", m.cfg.URL()).Strs("buckets", m.buckets).Msg("InfluxDB connected")
	return nil
}

func (m *Manager) use(s sink, mode Mode) {
	m.mu.Lock()
	m.out, m.mode = s, mode
	m.mu.Unlock()
}

// provision creates the organization and any missing bucket.
func (m *Manager) provision(ctx context.Context, client influxdb2.Client) error {
	orgs := client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Creating InfluxDB organization")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("creating organization %s: %w", m.cfg.Org, err)
		}
	}

	buckets := client.BucketsAPI()
	expire := domain.RetentionRuleTypeExpire
	for _, name := range m.buckets {
		if _, err := buckets.FindBucketByName(ctx, name); err == nil {
			continue
		}
		m.log.Info().Str("bucket", name).Msg("Creating InfluxDB bucket")
		_, err := buckets.CreateBucketWithName(ctx, org, name, domain.RetentionRule{
			Type:         &expire,
			EverySeconds: int64(retention / time.Second),
		})
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) write(bucket string, p point) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.out == nil {
		return ErrNotConnected
	}
	return m.out.write(bucket, p)
}

// WriteVehicleState writes one sampled state to the telemetry bucket.
func (m *Manager) WriteVehicleState(runID string, state *core.VehicleState) error {
	return m.write(m.TelemetryBucket(), statePoint(runID, state))
}

// WritePerformance writes a sim_performance sample with the given fields.
func (m *Manager) WritePerformance(runID string, fields map[string]any, at time.Time) error {
	return m.write(PerformanceBucket, performancePoint(runID, fields, at))
}

// Close flushes pending points. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out == nil {
		return nil
	}
	err := m.out.close()
	m.out, m.mode = nil, ModeNone
	return err
}
