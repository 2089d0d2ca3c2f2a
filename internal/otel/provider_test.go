package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false, LogWriter: &bytes.Buffer{}})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.Nil(t, p.MeterProvider())
	p.InstallGlobal()
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutExporterFails(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "vehiclesim"})
	assert.ErrorIs(t, err, ErrNoExporter)
}

func TestNew_EndpointOnlyHasNoMetrics(t *testing.T) {
	p, err := New(Config{Enabled: true, ServiceName: "vehiclesim", Endpoint: "127.0.0.1:4318", Insecure: true})
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	assert.Nil(t, p.MeterProvider())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestNew_FileExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:        true,
		ServiceName:    "vehiclesim",
		ServiceVersion: "0.1.0",
		BatchTimeout:   time.Second,
		MetricInterval: time.Hour,
		LogWriter:      &buf,
	})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	var rec log.Record
	rec.SetBody(log.StringValue("run finished"))
	p.LoggerProvider().Logger("test").Emit(context.Background(), rec)

	require.NotNil(t, p.MeterProvider())
	ticks, err := p.MeterProvider().Meter("test").Int64Counter("sim.ticks")
	require.NoError(t, err)
	ticks.Add(context.Background(), 50)

	require.NoError(t, p.Flush(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "run finished")
	assert.Contains(t, out, "vehiclesim")
	assert.Contains(t, out, "sim.ticks")

	require.NoError(t, p.Shutdown(context.Background()))
}
