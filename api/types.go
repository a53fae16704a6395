package api

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/store"
)

// =============================================================================
// 工作流类型
// =============================================================================

// ListWorkflowsQuery 分页查询参数
type ListWorkflowsQuery struct {
	Limit  int `json:"limit" validate:"gte=0,lte=1000"`
	Offset int `json:"offset" validate:"gte=0"`
}

// WorkflowList 工作流列表响应
type WorkflowList struct {
	Items  []store.Summary `json:"items"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// =============================================================================
// 执行类型
// =============================================================================

// StartExecutionRequest 启动执行请求。WorkflowID 与 Definition 二选一。
type StartExecutionRequest struct {
	// 已存储的工作流 ID
	WorkflowID string `json:"workflowId,omitempty" validate:"required_without=Definition,excluded_with=Definition,max=256"`
	// 内联工作流定义
	Definition *workflow.Definition `json:"definition,omitempty" validate:"-"`
	// 执行输入
	Input map[string]any `json:"input,omitempty" validate:"-"`
}

// ExecutionFilter 执行列表过滤条件
type ExecutionFilter struct {
	WorkflowID string `json:"workflowId" validate:"omitempty,max=256"`
	Status     string `json:"status" validate:"omitempty,oneof=queued running completed failed cancelled"`
}

// ExecutionRef 新建执行的引用
type ExecutionRef struct {
	ExecutionID string `json:"executionId"`
	RetryOf     string `json:"retryOf,omitempty"`
}

// =============================================================================
// 编辑会话类型
// =============================================================================

// CreateSessionRequest 打开编辑会话。WorkflowID 与 Definition 二选一。
type CreateSessionRequest struct {
	WorkflowID string               `json:"workflowId,omitempty" validate:"required_without=Definition,excluded_with=Definition,max=256"`
	Definition *workflow.Definition `json:"definition,omitempty" validate:"-"`
}

// Edit operations
const (
	OpAddNode         = "addNode"
	OpRemoveNode      = "removeNode"
	OpUpdateNode      = "updateNode"
	OpUpdateConfig    = "updateConfig"
	OpMoveNode        = "moveNode"
	OpAddEdge         = "addEdge"
	OpRemoveEdge      = "removeEdge"
	OpSetName         = "setName"
	OpDeclareVariable = "declareVariable"
	OpRemoveVariable  = "removeVariable"
	OpRenameVariable  = "renameVariable"
	OpUpdateSettings  = "updateSettings"
)

// EditRequest 一次编辑操作，作为一个撤销单元提交
type EditRequest struct {
	Op string `json:"op" validate:"required,oneof=addNode removeNode updateNode updateConfig moveNode addEdge removeEdge setName declareVariable removeVariable renameVariable updateSettings"`

	Node     *workflow.Node     `json:"node,omitempty" validate:"required_if=Op addNode"`
	Edge     *workflow.Edge     `json:"edge,omitempty" validate:"required_if=Op addEdge"`
	NodeID   string             `json:"nodeId,omitempty" validate:"required_if=Op removeNode,required_if=Op updateNode,required_if=Op updateConfig,required_if=Op moveNode"`
	EdgeID   string             `json:"edgeId,omitempty" validate:"required_if=Op removeEdge"`
	Position *workflow.Position `json:"position,omitempty" validate:"required_if=Op moveNode"`
	Config   json.RawMessage    `json:"config,omitempty" validate:"required_if=Op updateConfig"`
	Settings *workflow.Settings `json:"settings,omitempty" validate:"required_if=Op updateSettings"`
	Variable *workflow.Variable `json:"variable,omitempty" validate:"required_if=Op declareVariable"`

	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Name        string `json:"name,omitempty" validate:"required_if=Op setName,required_if=Op declareVariable,required_if=Op removeVariable"`
	NewName     string `json:"newName,omitempty" validate:"required_if=Op renameVariable"`
	OldName     string `json:"oldName,omitempty" validate:"required_if=Op renameVariable"`
}

// CopyRequest 复制选中节点
type CopyRequest struct {
	NodeIDs []string `json:"nodeIds" validate:"required,min=1,dive,required"`
}

// ClipboardInfo 剪贴板内容概要
type ClipboardInfo struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// SessionView 编辑会话状态
type SessionView struct {
	ID         string               `json:"id"`
	WorkflowID string               `json:"workflowId"`
	Definition *workflow.Definition `json:"definition"`
	CanUndo    bool                 `json:"canUndo"`
	CanRedo    bool                 `json:"canRedo"`
	UndoDepth  int                  `json:"undoDepth"`
	RedoDepth  int                  `json:"redoDepth"`
	ExpiresAt  time.Time            `json:"expiresAt"`
}

// PasteResult 粘贴结果，IDMap 为旧节点 ID 到新节点 ID 的映射
type PasteResult struct {
	Session SessionView       `json:"session"`
	IDMap   map[string]string `json:"idMap"`
}
