package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/api"
	"github.com/BaSui01/flowstudio/types"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/analytics"
	"github.com/BaSui01/flowstudio/workflow/store"
	"github.com/BaSui01/flowstudio/workflow/validation"
)

// =============================================================================
// 📊 指标与缓存接口
// =============================================================================

// Recorder 记录 API 层指标
type Recorder interface {
	RecordValidation(valid bool)
	RecordAnalysis(level string)
	SubscriberOpened()
	SubscriberClosed()
}

type nopRecorder struct{}

func (nopRecorder) RecordValidation(bool) {}
func (nopRecorder) RecordAnalysis(string) {}
func (nopRecorder) SubscriberOpened() {}
func (nopRecorder) SubscriberClosed() {}

// ReportCache 按定义内容缓存分析报告
type ReportCache interface {
	Get(ctx context.Context, def *workflow.Definition) (analytics.Report, bool)
	Put(ctx context.Context, def *workflow.Definition, report analytics.Report)
}

// =============================================================================
// 🗂️ 工作流 Handler
// =============================================================================

// WorkflowHandler 工作流定义的存储、校验与分析
type WorkflowHandler struct {
	store    store.GraphStore
	reports  ReportCache
	options  []analytics.Option
	recorder Recorder
	now      func() time.Time
	logger   *zap.Logger
}

// WorkflowOption 配置 WorkflowHandler
type WorkflowOption func(*WorkflowHandler)

// WithReportCache 启用分析报告缓存
func WithReportCache(c ReportCache) WorkflowOption {
	return func(h *WorkflowHandler) { h.reports = c }
}

// WithAnalyticsOptions 设置分析选项
func WithAnalyticsOptions(opts ...analytics.Option) WorkflowOption {
	return func(h *WorkflowHandler) { h.options = opts }
}

// WithWorkflowRecorder 设置指标记录器
func WithWorkflowRecorder(r Recorder) WorkflowOption {
	return func(h *WorkflowHandler) {
		if r != nil {
			h.recorder = r
		}
	}
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(st store.GraphStore, logger *zap.Logger, opts ...WorkflowOption) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &WorkflowHandler{
		store:    st,
		recorder: nopRecorder{},
		now:      time.Now,
		logger:   logger.With(zap.String("component", "workflow_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes 挂载到 /api/v1/workflows
func (h *WorkflowHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/validate", h.HandleValidate)
	r.Post("/analyze", h.HandleAnalyze)
	r.Get("/{id}", h.HandleGet)
	r.Put("/{id}", h.HandlePut)
	r.Delete("/{id}", h.HandleDelete)
	r.Get("/{id}/validation", h.HandleValidateStored)
	r.Get("/{id}/analysis", h.HandleAnalyzeStored)
}

// =============================================================================
// 🎯 存储端点
// =============================================================================

// HandleList 分页列出已存储的工作流
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q, apiErr := parseListQuery(r)
	if apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return
	}
	items, err := h.store.List(r.Context(), store.ListOptions{Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		WriteErr(w, r, storeError(err, ""), h.logger)
		return
	}
	WriteSuccess(w, r, api.WorkflowList{Items: items, Limit: q.Limit, Offset: q.Offset})
}

func parseListQuery(r *http.Request) (api.ListWorkflowsQuery, *types.Error) {
	var q api.ListWorkflowsQuery
	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, types.NewInvalidRequestError(name + " must be an integer")
		}
		*dst = n
	}
	if apiErr := ValidateStruct(&q); apiErr != nil {
		return q, apiErr
	}
	return q, nil
}

// HandleGet 返回一个工作流定义
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	def, err := h.store.Get(r.Context(), id)
	if err != nil {
		WriteErr(w, r, storeError(err, id), h.logger)
		return
	}
	WriteSuccess(w, r, def)
}

// HandlePut 创建或替换工作流定义。?validate=true 时拒绝无法执行的定义。
func (h *WorkflowHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	def, err := DecodeDefinition(w, r, h.logger)
	if err != nil {
		return
	}
	if def.ID == "" {
		def.ID = id
	}
	if def.ID != id {
		WriteError(w, r, types.NewInvalidRequestError("definition id does not match the path"), h.logger)
		return
	}

	if strictParam(r, "validate") {
		res := validation.Validate(def)
		h.recorder.RecordValidation(res.IsValid)
		if !res.IsValid {
			WriteError(w, r, types.Errorf(types.ErrValidationFailed, "workflow %s is not valid: %s", id, res.Summary()).
				WithDetails(res).
				WithHTTPStatus(http.StatusUnprocessableEntity), h.logger)
			return
		}
	}

	status := http.StatusOK
	existing, err := h.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusCreated
	case err != nil:
		WriteErr(w, r, storeError(err, id), h.logger)
		return
	case def.Metadata.CreatedAt.IsZero():
		def.Metadata.CreatedAt = existing.Metadata.CreatedAt
	}
	def.Touch(h.now().UTC())

	if err := h.store.Save(r.Context(), def); err != nil {
		WriteErr(w, r, storeError(err, id), h.logger)
		return
	}
	h.logger.Info("workflow saved", zap.String("workflow_id", id), zap.Int("nodes", len(def.Nodes)))
	WriteStatus(w, r, status, def)
}

// HandleDelete 删除工作流定义
func (h *WorkflowHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		WriteErr(w, r, storeError(err, id), h.logger)
		return
	}
	h.logger.Info("workflow deleted", zap.String("workflow_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// 🔍 校验与分析端点
// =============================================================================

// HandleValidate 校验请求体中的定义。无效定义同样返回 200，结果中 isValid 为 false。
func (h *WorkflowHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	def, err := DecodeDefinition(w, r, h.logger)
	if err != nil {
		return
	}
	WriteSuccess(w, r, h.validate(def))
}

// HandleValidateStored 校验已存储的定义
func (h *WorkflowHandler) HandleValidateStored(w http.ResponseWriter, r *http.Request) {
	def, ok := h.load(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, r, h.validate(def))
}

// HandleAnalyze 分析请求体中的定义
func (h *WorkflowHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	def, err := DecodeDefinition(w, r, h.logger)
	if err != nil {
		return
	}
	WriteSuccess(w, r, h.analyze(w, r, def))
}

// HandleAnalyzeStored 分析已存储的定义
func (h *WorkflowHandler) HandleAnalyzeStored(w http.ResponseWriter, r *http.Request) {
	def, ok := h.load(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, r, h.analyze(w, r, def))
}

func (h *WorkflowHandler) load(w http.ResponseWriter, r *http.Request) (*workflow.Definition, bool) {
	id := chi.URLParam(r, "id")
	def, err := h.store.Get(r.Context(), id)
	if err != nil {
		WriteErr(w, r, storeError(err, id), h.logger)
		return nil, false
	}
	return def, true
}

func (h *WorkflowHandler) validate(def *workflow.Definition) validation.Result {
	res := validation.Validate(def)
	h.recorder.RecordValidation(res.IsValid)
	return res
}

func (h *WorkflowHandler) analyze(w http.ResponseWriter, r *http.Request, def *workflow.Definition) analytics.Report {
	if h.reports != nil {
		if report, ok := h.reports.Get(r.Context(), def); ok {
			w.Header().Set("X-Cache", "HIT")
			h.recorder.RecordAnalysis(string(report.ComplexityLevel))
			return report
		}
		w.Header().Set("X-Cache", "MISS")
	}
	report := analytics.Analyze(def, h.options...)
	h.recorder.RecordAnalysis(string(report.ComplexityLevel))
	if h.reports != nil {
		h.reports.Put(r.Context(), def, report)
	}
	return report
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// storeError 把存储层错误转换为 API 错误
func storeError(err error, id string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return types.NewNotFoundError("workflow", id)
	case errors.Is(err, store.ErrInvalidInput):
		return types.NewInvalidRequestError(err.Error())
	case errors.Is(err, store.ErrStoreClosed):
		return types.NewError(types.ErrServiceUnavailable, "workflow store is closed").
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithCause(err)
	default:
		return types.NewInternalError("workflow store failed", err)
	}
}

func strictParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
