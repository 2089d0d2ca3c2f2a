package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kartlab/vehiclesim/internal/dispatcher"

type instruments struct {
	pending  metric.Int64ObservableGauge
	handled  metric.Int64Counter
	failed   metric.Int64Counter
	dropped  metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(d *Dispatcher) (*instruments, error) {
	m := otel.Meter(instrumentationName)
	inst := &instruments{}

	var err error
	if inst.pending, err = m.Int64ObservableGauge(
		"dispatcher.lane.pending",
		metric.WithDescription("Events waiting in a lane"),
	); err != nil {
		return nil, fmt.Errorf("creating pending gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, s := range d.Stats() {
			o.ObserveInt64(inst.pending, int64(s.Pending), metric.WithAttributes(commandAttr(cmd)))
		}
		return nil
	}, inst.pending); err != nil {
		return nil, fmt.Errorf("registering pending callback: %w", err)
	}

	if inst.handled, err = m.Int64Counter(
		"dispatcher.events.handled",
		metric.WithDescription("Events passed to a handler"),
	); err != nil {
		return nil, fmt.Errorf("creating handled counter: %w", err)
	}
	if inst.failed, err = m.Int64Counter(
		"dispatcher.events.failed",
		metric.WithDescription("Events whose handler returned an error"),
	); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	if inst.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Events rejected by a full lane"),
	); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if inst.duration, err = m.Float64Histogram(
		"dispatcher.handler.duration",
		metric.WithDescription("Time spent in handlers"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	return inst, nil
}

func commandAttr(cmd string) attribute.KeyValue {
	return attribute.String("command", cmd)
}

func (i *instruments) recordHandled(cmd string, took time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(commandAttr(cmd))
	i.handled.Add(ctx, 1, attrs)
	if err != nil {
		i.failed.Add(ctx, 1, attrs)
	}
	i.duration.Record(ctx, float64(took)/float64(time.Millisecond), attrs)
}

func (i *instruments) recordDrop(cmd string) {
	i.dropped.Add(context.Background(), 1, metric.WithAttributes(commandAttr(cmd)))
}
