package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/execution"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.executionsStarted)
	assert.NotNil(t, collector.nodeRunsTotal)
	assert.NotNil(t, collector.storeOpDuration)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/v1/workflows", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/api/v1/workflows", 204, 50*time.Millisecond, 512, 0)
	collector.RecordHTTPRequest("POST", "/api/v1/workflows", 400, 5*time.Millisecond, 10, 100)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/workflows", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/workflows", "4xx")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_ExecutionLifecycle(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordExecutionStarted("wf-1")
	collector.RecordExecutionStarted("wf-1")
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.executionsActive))

	collector.RecordExecutionFinished("wf-1", execution.StatusCompleted, 2*time.Second)
	collector.RecordExecutionFinished("wf-1", execution.StatusCancelled, 0)

	assert.Equal(t, 0.0, testutil.ToFloat64(collector.executionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.executionsStarted.WithLabelValues("wf-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.executionsFinished.WithLabelValues("wf-1", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.executionsFinished.WithLabelValues("wf-1", "cancelled")))
}

func TestCollector_RecordNodeFinished(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordNodeFinished(workflow.NodeTypeModel, false, 300*time.Millisecond)
	collector.RecordNodeFinished(workflow.NodeTypeModel, true, 100*time.Millisecond)
	collector.RecordNodeFinished(workflow.NodeTypeTool, false, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.nodeRunsTotal.WithLabelValues("model", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.nodeRunsTotal.WithLabelValues("model", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.nodeDuration))
}

func TestCollector_RecordUsage(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordUsage("wf-1", execution.Usage{TokensUsed: 120, APICalls: 1, Cost: 0.002})
	collector.RecordUsage("wf-1", execution.Usage{TokensUsed: 30})
	collector.RecordUsage("wf-2", execution.Usage{MemoryUsage: 1 << 20})

	assert.Equal(t, 150.0, testutil.ToFloat64(collector.tokensUsed.WithLabelValues("wf-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.apiCalls.WithLabelValues("wf-1")))
	assert.InDelta(t, 0.002, testutil.ToFloat64(collector.cost.WithLabelValues("wf-1")), 1e-9)
	// 只有内存用量时不产生计数序列
	assert.Equal(t, 1, testutil.CollectAndCount(collector.tokensUsed))
}

func TestCollector_EditorMetrics(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordValidation(true)
	collector.RecordValidation(false)
	collector.RecordValidation(false)
	collector.RecordAnalysis("medium")
	collector.SubscriberOpened()
	collector.SubscriberOpened()
	collector.SubscriberClosed()
	collector.RecordHandlerPanic()

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.validationsTotal.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.analysesTotal.WithLabelValues("medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.subscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.handlerPanics))
}

func TestCollector_RecordStoreOp(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordStoreOp("redis", "save", 3*time.Millisecond, nil)
	collector.RecordStoreOp("redis", "get", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2, testutil.CollectAndCount(collector.storeOpDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.storeOpErrors.WithLabelValues("redis", "get")))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordExecutionStarted("wf")
			collector.RecordExecutionFinished("wf", execution.StatusFailed, time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.executionsActive))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(201))
	assert.Equal(t, "3xx", statusCode(304))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(101))
}
