package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/flowstudio/config"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/execution"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumInt(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", agg)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecorder_ExportsExecutionMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	rec, err := NewRecorder(mp)
	require.NoError(t, err)

	rec.RecordExecutionStarted("wf-1")
	rec.RecordExecutionStarted("wf-2")
	rec.RecordExecutionFinished("wf-1", execution.StatusCompleted, 1500*time.Millisecond)
	rec.RecordNodeFinished(workflow.NodeTypeModel, false, 200*time.Millisecond)
	rec.RecordNodeFinished(workflow.NodeTypeTool, true, 10*time.Millisecond)
	rec.RecordUsage("wf-1", execution.Usage{TokensUsed: 300, Cost: 0.01})
	rec.RecordUsage("wf-1", execution.Usage{APICalls: 1})
	rec.RecordHandlerPanic()

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumInt(t, data["flowstudio.executions.started"]))
	assert.Equal(t, int64(1), sumInt(t, data["flowstudio.executions.finished"]))
	assert.Equal(t, int64(2), sumInt(t, data["flowstudio.nodes.finished"]))
	assert.Equal(t, int64(300), sumInt(t, data["flowstudio.tokens"]))
	assert.Equal(t, int64(1), sumInt(t, data["flowstudio.subscriber.panics"]))

	hist, ok := data["flowstudio.executions.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 1e-9)
}

func TestNewRecorder_DisabledProviders(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)

	rec, err := NewRecorder(p.MeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		rec.RecordExecutionStarted("wf-1")
		rec.RecordHandlerPanic()
	})
}
