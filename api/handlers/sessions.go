package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/api"
	"github.com/BaSui01/flowstudio/types"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/history"
	"github.com/BaSui01/flowstudio/workflow/store"
)

// DefaultSessionTTL 编辑会话默认空闲过期时间
const DefaultSessionTTL = 30 * time.Minute

// =============================================================================
// ✏️ 编辑会话 Handler
// =============================================================================

// session 一个编辑会话，拥有独立的撤销/重做时间线与剪贴板
type session struct {
	id         string
	workflowID string
	history    *history.History
	expires    time.Time
}

// SessionHandler 管理服务端编辑会话。会话只存在于内存中，空闲超过 TTL 后失效。
type SessionHandler struct {
	store    store.GraphStore
	options  []history.Option
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
	mu       sync.Mutex
	sessions map[string]*session
}

// SessionOption 配置 SessionHandler
type SessionOption func(*SessionHandler)

// WithHistoryOptions 设置每个会话的编辑历史选项
func WithHistoryOptions(opts ...history.Option) SessionOption {
	return func(h *SessionHandler) { h.options = opts }
}

// WithSessionTTL 设置会话空闲过期时间
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(h *SessionHandler) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// WithSessionClock 设置时钟，用于测试
func WithSessionClock(now func() time.Time) SessionOption {
	return func(h *SessionHandler) { h.now = now }
}

// NewSessionHandler 创建编辑会话处理器。st 用于打开和保存已存储的工作流，可为 nil。
func NewSessionHandler(st store.GraphStore, logger *zap.Logger, opts ...SessionOption) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &SessionHandler{
		store:    st,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger.With(zap.String("component", "session_handler")),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes 挂载到 /api/v1/sessions
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/", h.HandleCreate)
	r.Get("/{id}", h.HandleGet)
	r.Delete("/{id}", h.HandleClose)
	r.Post("/{id}/edits", h.HandleEdit)
	r.Post("/{id}/undo", h.HandleUndo)
	r.Post("/{id}/redo", h.HandleRedo)
	r.Post("/{id}/copy", h.HandleCopy)
	r.Post("/{id}/paste", h.HandlePaste)
	r.Post("/{id}/save", h.HandleSave)
}

// Len 返回未过期的会话数
func (h *SessionHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepLocked(h.now())
	return len(h.sessions)
}

// =============================================================================
// 🎯 会话端点
// =============================================================================

// HandleCreate 打开编辑会话，定义来自存储或请求体
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
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

	opts := append([]history.Option{history.WithLogger(h.logger)}, h.options...)
	s := &session{
		id:         h.newID(),
		workflowID: def.ID,
		history:    history.New(def, opts...),
	}

	h.mu.Lock()
	now := h.now()
	h.sweepLocked(now)
	s.expires = now.Add(h.ttl)
	h.sessions[s.id] = s
	view := h.viewLocked(s)
	h.mu.Unlock()

	h.logger.Info("edit session opened", zap.String("session_id", s.id), zap.String("workflow_id", s.workflowID))
	WriteStatus(w, r, http.StatusCreated, view)
}

// HandleGet 返回会话当前状态
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(s *session) (any, *types.Error) {
		return nil, nil
	})
}

// HandleClose 关闭会话
func (h *SessionHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		WriteError(w, r, types.NewNotFoundError("session", id), h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEdit 提交一次编辑。不改变定义的编辑不产生历史记录。
func (h *SessionHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	var req api.EditRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	h.with(w, r, func(s *session) (any, *types.Error) {
		m, apiErr := mutation(s.history.Current(), req)
		if apiErr != nil {
			return nil, apiErr
		}
		s.history.Commit(m)
		return nil, nil
	})
}

// HandleUndo 撤销。没有可撤销的编辑时状态不变。
func (h *SessionHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(s *session) (any, *types.Error) {
		s.history.Undo()
		return nil, nil
	})
}

// HandleRedo 重做。没有可重做的编辑时状态不变。
func (h *SessionHandler) HandleRedo(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(s *session) (any, *types.Error) {
		s.history.Redo()
		return nil, nil
	})
}

// HandleCopy 复制选中节点及其内部连线到会话剪贴板
func (h *SessionHandler) HandleCopy(w http.ResponseWriter, r *http.Request) {
	var req api.CopyRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	h.with(w, r, func(s *session) (any, *types.Error) {
		cb := s.history.Copy(req.NodeIDs)
		return api.ClipboardInfo{Nodes: len(cb.Nodes), Edges: len(cb.Edges)}, nil
	})
}

// HandlePaste 粘贴会话剪贴板，节点与连线获得新 ID
func (h *SessionHandler) HandlePaste(w http.ResponseWriter, r *http.Request) {
	var idMap map[string]string
	h.withView(w, r, func(s *session) *types.Error {
		if s.history.Clipboard().Empty() {
			return types.NewInvalidOperationError("clipboard is empty")
		}
		_, idMap = s.history.Paste(nil)
		return nil
	}, func(view api.SessionView) any {
		return api.PasteResult{Session: view, IDMap: idMap}
	})
}

// HandleSave 把会话当前定义写回存储
func (h *SessionHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, r, types.NewInvalidOperationError("no workflow store configured"), h.logger)
		return
	}
	h.with(w, r, func(s *session) (any, *types.Error) {
		def := s.history.Current()
		if def.ID == "" {
			def.ID = s.workflowID
		}
		if def.ID == "" {
			return nil, types.NewInvalidRequestError("definition has no id; set one before saving")
		}
		if err := h.store.Save(r.Context(), def); err != nil {
			apiErr, _ := types.AsError(storeError(err, def.ID))
			return nil, apiErr
		}
		s.workflowID = def.ID
		h.logger.Info("edit session saved", zap.String("session_id", s.id), zap.String("workflow_id", def.ID))
		return nil, nil
	})
}

// =============================================================================
// 🔧 会话辅助
// =============================================================================

// with 在会话锁内执行 fn。fn 返回 nil 数据时响应会话视图。
func (h *SessionHandler) with(w http.ResponseWriter, r *http.Request, fn func(s *session) (any, *types.Error)) {
	var data any
	h.withView(w, r, func(s *session) *types.Error {
		var apiErr *types.Error
		data, apiErr = fn(s)
		return apiErr
	}, func(view api.SessionView) any {
		if data != nil {
			return data
		}
		return view
	})
}

func (h *SessionHandler) withView(w http.ResponseWriter, r *http.Request, fn func(s *session) *types.Error, render func(api.SessionView) any) {
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	now := h.now()
	s, ok := h.sessions[id]
	if ok && !now.Before(s.expires) {
		delete(h.sessions, id)
		ok = false
	}
	if !ok {
		h.mu.Unlock()
		WriteError(w, r, types.NewNotFoundError("session", id), h.logger)
		return
	}
	s.expires = now.Add(h.ttl)
	apiErr := fn(s)
	view := h.viewLocked(s)
	h.mu.Unlock()

	if apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return
	}
	WriteSuccess(w, r, render(view))
}

func (h *SessionHandler) viewLocked(s *session) api.SessionView {
	undo, redo := s.history.Depth()
	return api.SessionView{
		ID:         s.id,
		WorkflowID: s.workflowID,
		Definition: s.history.Current(),
		CanUndo:    undo > 0,
		CanRedo:    redo > 0,
		UndoDepth:  undo,
		RedoDepth:  redo,
		ExpiresAt:  s.expires,
	}
}

func (h *SessionHandler) sweepLocked(now time.Time) {
	for id, s := range h.sessions {
		if !now.Before(s.expires) {
			delete(h.sessions, id)
			h.logger.Debug("edit session expired", zap.String("session_id", id))
		}
	}
}

// mutation 把编辑请求转换为历史提交
func mutation(current *workflow.Definition, req api.EditRequest) (history.Mutation, *types.Error) {
	switch req.Op {
	case api.OpAddNode:
		n := req.Node.Clone()
		if n.Config == nil {
			n.Config = workflow.DefaultConfig(n.Type)
		}
		return func(d *workflow.Definition) { d.AddNode(n) }, nil
	case api.OpRemoveNode:
		return func(d *workflow.Definition) { d.RemoveNode(req.NodeID) }, nil
	case api.OpUpdateNode:
		return func(d *workflow.Definition) { d.UpdateNode(req.NodeID, req.Label, req.Description) }, nil
	case api.OpMoveNode:
		pos := *req.Position
		return func(d *workflow.Definition) { d.MoveNode(req.NodeID, pos) }, nil
	case api.OpUpdateConfig:
		node, ok := current.Node(req.NodeID)
		if !ok {
			return nil, types.NewNotFoundError("node", req.NodeID)
		}
		cfg, unknown, err := workflow.DecodeConfig(node.Type, req.Config)
		if err != nil {
			return nil, types.NewInvalidRequestError(err.Error())
		}
		if len(unknown) > 0 {
			return nil, types.NewInvalidRequestError("unknown config fields: " + strings.Join(unknown, ", "))
		}
		return func(d *workflow.Definition) { d.UpdateNodeConfig(req.NodeID, cfg) }, nil
	case api.OpAddEdge:
		e := req.Edge.Clone()
		return func(d *workflow.Definition) { d.AddEdge(e) }, nil
	case api.OpRemoveEdge:
		return func(d *workflow.Definition) { d.RemoveEdge(req.EdgeID) }, nil
	case api.OpSetName:
		return func(d *workflow.Definition) { d.SetName(req.Name) }, nil
	case api.OpDeclareVariable:
		v := *req.Variable
		return func(d *workflow.Definition) { d.DeclareVariable(req.Name, v) }, nil
	case api.OpRemoveVariable:
		return func(d *workflow.Definition) { d.RemoveVariable(req.Name) }, nil
	case api.OpRenameVariable:
		return func(d *workflow.Definition) { d.RenameVariable(req.OldName, req.NewName) }, nil
	case api.OpUpdateSettings:
		s := *req.Settings
		return func(d *workflow.Definition) { d.UpdateSettings(s) }, nil
	default:
		return nil, types.NewInvalidRequestError("unsupported edit op: " + req.Op)
	}
}
