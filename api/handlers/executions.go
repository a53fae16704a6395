package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/api"
	"github.com/BaSui01/flowstudio/types"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/store"
)

// EventSnapshot 事件流建立后推送的第一帧，描述执行的当前状态
const EventSnapshot execution.EventType = "snapshot"

const (
	defaultStreamBuffer = 64
	streamWriteTimeout  = 10 * time.Second
)

// Coordinator 执行协调器
type Coordinator interface {
	Start(ctx context.Context, def *workflow.Definition, input map[string]any) (string, error)
	Retry(ctx context.Context, id string) (string, error)
	Stop(id string) error
	Get(id string) (*execution.Execution, error)
	List() []*execution.Execution
	ListByWorkflow(workflowID string) []*execution.Execution
	ListByStatus(status execution.Status) []*execution.Execution
	Evict(id string) error
	Subscribe(executionID string, handler execution.Handler) (string, error)
	SubscribeAll(handler execution.Handler) string
	Unsubscribe(subID string) bool
}

// =============================================================================
// ▶️ 执行 Handler
// =============================================================================

// ExecutionHandler 执行的启动、控制、查询与事件流
type ExecutionHandler struct {
	coord          Coordinator
	store          store.GraphStore
	recorder       Recorder
	originPatterns []string
	buffer         int
	logger         *zap.Logger
}

// ExecutionOption 配置 ExecutionHandler
type ExecutionOption func(*ExecutionHandler)

// WithExecutionRecorder 设置指标记录器
func WithExecutionRecorder(r Recorder) ExecutionOption {
	return func(h *ExecutionHandler) {
		if r != nil {
			h.recorder = r
		}
	}
}

// WithOriginPatterns 设置事件流允许的跨域来源
func WithOriginPatterns(patterns ...string) ExecutionOption {
	return func(h *ExecutionHandler) { h.originPatterns = patterns }
}

// WithStreamBuffer 设置每个事件流的缓冲事件数，缓冲写满的慢订阅者会被断开
func WithStreamBuffer(n int) ExecutionOption {
	return func(h *ExecutionHandler) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewExecutionHandler 创建执行处理器。st 用于按 workflowId 启动执行，可为 nil。
func NewExecutionHandler(coord Coordinator, st store.GraphStore, logger *zap.Logger, opts ...ExecutionOption) *ExecutionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ExecutionHandler{
		coord:    coord,
		store:    st,
		recorder: nopRecorder{},
		buffer:   defaultStreamBuffer,
		logger:   logger.With(zap.String("component", "execution_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes 挂载到 /api/v1/executions
func (h *ExecutionHandler) Routes(r chi.Router) {
	r.Post("/", h.HandleStart)
	r.Get("/", h.HandleList)
	r.Get("/events", h.HandleAllEvents)
	r.Get("/{id}", h.HandleGet)
	r.Delete("/{id}", h.HandleEvict)
	r.Post("/{id}/stop", h.HandleStop)
	r.Post("/{id}/retry", h.HandleRetry)
	r.Get("/{id}/events", h.HandleEvents)
}

// =============================================================================
// 🎯 生命周期端点
// =============================================================================

// HandleStart 启动执行，立即返回执行 ID
func (h *ExecutionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req api.StartExecutionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	def := req.Definition
	if req.WorkflowID != "" {
		if h.store == nil {
			WriteError(w, r, types.NewInvalidRequestError("no workflow store configured; send the definition inline"), h.logger)
			return
		}
		stored, err := h.store.Get(r.Context(), req.WorkflowID)
		if err != nil {
			WriteErr(w, r, storeError(err, req.WorkflowID), h.logger)
			return
		}
		def = stored
	}

	id, err := h.coord.Start(r.Context(), def, req.Input)
	if err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}
	WriteStatus(w, r, http.StatusAccepted, api.ExecutionRef{ExecutionID: id})
}

// HandleStop 停止执行，返回停止请求后的状态
func (h *ExecutionHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.coord.Stop(id); err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}
	exec, err := h.coord.Get(id)
	if err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}
	WriteStatus(w, r, http.StatusAccepted, exec)
}

// HandleRetry 以新执行重跑失败的执行
func (h *ExecutionHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	newID, err := h.coord.Retry(r.Context(), id)
	if err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}
	WriteStatus(w, r, http.StatusAccepted, api.ExecutionRef{ExecutionID: newID, RetryOf: id})
}

// HandleEvict 淘汰已结束的执行
func (h *ExecutionHandler) HandleEvict(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.Evict(chi.URLParam(r, "id")); err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// 🔍 查询端点
// =============================================================================

// HandleGet 返回执行快照
func (h *ExecutionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	exec, err := h.coord.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, exec)
}

// HandleList 列出执行，可按 workflowId 与 status 过滤
func (h *ExecutionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := api.ExecutionFilter{
		WorkflowID: r.URL.Query().Get("workflowId"),
		Status:     r.URL.Query().Get("status"),
	}
	if apiErr := ValidateStruct(&filter); apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return
	}

	var list []*execution.Execution
	switch {
	case filter.WorkflowID != "":
		list = h.coord.ListByWorkflow(filter.WorkflowID)
		if filter.Status != "" {
			list = filterStatus(list, execution.Status(filter.Status))
		}
	case filter.Status != "":
		list = h.coord.ListByStatus(execution.Status(filter.Status))
	default:
		list = h.coord.List()
	}
	if list == nil {
		list = []*execution.Execution{}
	}
	WriteSuccess(w, r, list)
}

func filterStatus(list []*execution.Execution, status execution.Status) []*execution.Execution {
	out := list[:0]
	for _, exec := range list {
		if exec.Status == status {
			out = append(out, exec)
		}
	}
	return out
}

// =============================================================================
// 📡 事件流（websocket）
// =============================================================================

// HandleEvents 推送单个执行的事件。第一帧为快照；执行结束后服务端正常关闭连接。
func (h *ExecutionHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	feed := newEventFeed(h.buffer)

	// 先订阅再取快照，快照之后的事件不会丢失
	subID, err := h.coord.Subscribe(id, feed.push)
	if err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}
	defer h.coord.Unsubscribe(subID)

	exec, err := h.coord.Get(id)
	if err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}

	conn, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer conn.CloseNow()

	h.recorder.SubscriberOpened()
	defer h.recorder.SubscriberClosed()

	ctx := conn.CloseRead(r.Context())
	if err := writeEvent(ctx, conn, snapshot(exec)); err != nil {
		return
	}
	if exec.Status.Terminal() {
		conn.Close(websocket.StatusNormalClosure, "execution finished")
		return
	}
	h.pump(ctx, conn, feed, true)
}

// HandleAllEvents 推送全部执行的事件，直到客户端断开
func (h *ExecutionHandler) HandleAllEvents(w http.ResponseWriter, r *http.Request) {
	feed := newEventFeed(h.buffer)
	subID := h.coord.SubscribeAll(feed.push)
	defer h.coord.Unsubscribe(subID)

	conn, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer conn.CloseNow()

	h.recorder.SubscriberOpened()
	defer h.recorder.SubscriberClosed()

	h.pump(conn.CloseRead(r.Context()), conn, feed, false)
}

func (h *ExecutionHandler) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	// 事件流是长连接，不受服务器写超时约束
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return nil, false
	}
	return conn, true
}

func (h *ExecutionHandler) pump(ctx context.Context, conn *websocket.Conn, feed *eventFeed, closeOnTerminal bool) {
	for {
		select {
		case ev := <-feed.events:
			if err := writeEvent(ctx, conn, ev); err != nil {
				h.logger.Debug("event stream write failed", zap.Error(err))
				return
			}
			if closeOnTerminal && ev.Status.Terminal() {
				conn.Close(websocket.StatusNormalClosure, "execution finished")
				return
			}
		case <-feed.overflow:
			h.logger.Warn("closing slow event subscriber")
			conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			return
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev execution.Event) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

// eventFeed 把协调器回调转为有界通道，回调永不阻塞
type eventFeed struct {
	events   chan execution.Event
	overflow chan struct{}
	once     sync.Once
}

func newEventFeed(size int) *eventFeed {
	return &eventFeed{
		events:   make(chan execution.Event, size),
		overflow: make(chan struct{}),
	}
}

func (f *eventFeed) push(ev execution.Event) {
	select {
	case f.events <- ev:
	default:
		f.once.Do(func() { close(f.overflow) })
	}
}

func snapshot(exec *execution.Execution) execution.Event {
	return execution.Event{
		Type:           EventSnapshot,
		ExecutionID:    exec.ID,
		WorkflowID:     exec.WorkflowID,
		Status:         exec.Status,
		Progress:       exec.Progress,
		CompletedSteps: exec.CompletedSteps,
		TotalSteps:     exec.TotalSteps,
		CurrentStep:    exec.CurrentStep,
		Error:          exec.Error,
		Result:         exec.Result,
		Metrics:        exec.Metrics,
		Timestamp:      time.Now(),
	}
}
