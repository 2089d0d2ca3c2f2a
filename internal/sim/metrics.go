package sim

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kartlab/vehiclesim/internal/sim"

type metrics struct {
	ticks        metric.Int64Counter
	clamps       metric.Int64Counter
	airborne     metric.Int64Counter
	tickDuration metric.Float64Histogram
}

// newMetrics uses the global meter provider, a no-op unless otel is configured.
func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	var (
		out metrics
		err error
	)

	out.ticks, err = m.Int64Counter(
		"sim.ticks",
		metric.WithDescription("Fixed physics steps executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	out.clamps, err = m.Int64Counter(
		"sim.speed.clamps",
		metric.WithDescription("Ticks where a vehicle hit its speed cap"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating clamps counter: %w", err)
	}

	out.airborne, err = m.Int64Counter(
		"sim.airborne.ticks",
		metric.WithDescription("Vehicle ticks without ground contact"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating airborne counter: %w", err)
	}

	out.tickDuration, err = m.Float64Histogram(
		"sim.tick.duration",
		metric.WithDescription("Wall time spent in one fixed step"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	return &out, nil
}

func (m *metrics) recordTick(ctx context.Context, took time.Duration) {
	m.ticks.Add(ctx, 1)
	m.tickDuration.Record(ctx, took.Seconds())
}

func (m *metrics) recordVehicle(ctx context.Context, name string, clamped, grounded bool) {
	attrs := metric.WithAttributes(attribute.String("vehicle", name))
	if clamped {
		m.clamps.Add(ctx, 1, attrs)
	}
	if !grounded {
		m.airborne.Add(ctx, 1, attrs)
	}
}
