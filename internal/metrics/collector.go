// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/execution"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 执行指标
	executionsStarted  *prometheus.CounterVec
	executionsFinished *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	executionsActive   prometheus.Gauge
	nodeRunsTotal      *prometheus.CounterVec
	nodeDuration       *prometheus.HistogramVec
	tokensUsed         *prometheus.CounterVec
	apiCalls           *prometheus.CounterVec
	cost               *prometheus.CounterVec
	handlerPanics      prometheus.Counter

	// 编辑器指标
	validationsTotal *prometheus.CounterVec
	analysesTotal    *prometheus.CounterVec
	subscribers      prometheus.Gauge

	// 存储指标
	storeOpDuration *prometheus.HistogramVec
	storeOpErrors   *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

var _ execution.Recorder = (*Collector)(nil)

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 执行指标
	c.executionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_started_total",
			Help:      "Total number of executions created",
		},
		[]string{"workflow_id"},
	)

	c.executionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_finished_total",
			Help:      "Total number of executions that reached a terminal status",
		},
		[]string{"workflow_id", "status"},
	)

	c.executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Execution wall time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"workflow_id", "status"},
	)

	c.executionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_active",
			Help:      "Number of queued or running executions",
		},
	)

	c.nodeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_runs_total",
			Help:      "Total number of node runs",
		},
		[]string{"node_type", "status"},
	)

	c.nodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"node_type"},
	)

	c.tokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens used by executions",
		},
		[]string{"workflow_id"},
	)

	c.apiCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_calls_total",
			Help:      "Total number of external API calls made by executions",
		},
		[]string{"workflow_id"},
	)

	c.cost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_cost_total",
			Help:      "Total execution cost in USD",
		},
		[]string{"workflow_id"},
	)

	c.handlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_panics_total",
			Help:      "Total number of recovered panics in event subscribers",
		},
	)

	// 编辑器指标
	c.validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Total number of workflow validations",
		},
		[]string{"result"},
	)

	c.analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of workflow analyses by complexity level",
		},
		[]string{"level"},
	)

	c.subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_stream_subscribers",
			Help:      "Number of open execution event streams",
		},
	)

	// 存储指标
	c.storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Graph store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	c.storeOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operation_errors_total",
			Help:      "Total number of failed graph store operations",
		},
		[]string{"backend", "operation"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// ⚙️ 执行指标记录（execution.Recorder）
// =============================================================================

// RecordExecutionStarted 记录执行创建
func (c *Collector) RecordExecutionStarted(workflowID string) {
	c.executionsStarted.WithLabelValues(workflowID).Inc()
	c.executionsActive.Inc()
}

// RecordExecutionFinished 记录执行进入终态
func (c *Collector) RecordExecutionFinished(workflowID string, status execution.Status, duration time.Duration) {
	c.executionsFinished.WithLabelValues(workflowID, string(status)).Inc()
	c.executionDuration.WithLabelValues(workflowID, string(status)).Observe(duration.Seconds())
	c.executionsActive.Dec()
}

// RecordNodeFinished 记录节点运行结束
func (c *Collector) RecordNodeFinished(nodeType workflow.NodeType, failed bool, duration time.Duration) {
	status := "success"
	if failed {
		status = "failed"
	}
	c.nodeRunsTotal.WithLabelValues(string(nodeType), status).Inc()
	c.nodeDuration.WithLabelValues(string(nodeType)).Observe(duration.Seconds())
}

// RecordUsage 记录资源用量增量
func (c *Collector) RecordUsage(workflowID string, u execution.Usage) {
	if u.TokensUsed > 0 {
		c.tokensUsed.WithLabelValues(workflowID).Add(float64(u.TokensUsed))
	}
	if u.APICalls > 0 {
		c.apiCalls.WithLabelValues(workflowID).Add(float64(u.APICalls))
	}
	if u.Cost > 0 {
		c.cost.WithLabelValues(workflowID).Add(u.Cost)
	}
}

// RecordHandlerPanic 记录订阅回调 panic
func (c *Collector) RecordHandlerPanic() {
	c.handlerPanics.Inc()
	c.logger.Warn("event subscriber panicked")
}

// =============================================================================
// ✏️ 编辑器指标记录
// =============================================================================

// RecordValidation 记录一次校验
func (c *Collector) RecordValidation(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	c.validationsTotal.WithLabelValues(result).Inc()
}

// RecordAnalysis 记录一次分析
func (c *Collector) RecordAnalysis(level string) {
	c.analysesTotal.WithLabelValues(level).Inc()
}

// SubscriberOpened 记录事件流打开
func (c *Collector) SubscriberOpened() {
	c.subscribers.Inc()
}

// SubscriberClosed 记录事件流关闭
func (c *Collector) SubscriberClosed() {
	c.subscribers.Dec()
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStoreOp 记录存储操作
func (c *Collector) RecordStoreOp(backend, operation string, duration time.Duration, err error) {
	c.storeOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		c.storeOpErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
