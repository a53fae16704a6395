// =============================================================================
// 📦 测试数据工厂 - 工作流样例
// =============================================================================
// 提供预定义的工作流图，用于校验、分析、编辑历史和执行测试
// =============================================================================
package fixtures

import (
	"fmt"
	"math/rand"

	"github.com/BaSui01/flowstudio/workflow"
)

// Float 返回 float64 指针
func Float(f float64) *float64 { return &f }

// ValidModel 返回一个通过校验的模型配置
func ValidModel(model string) workflow.ModelConfig {
	return workflow.ModelConfig{
		Model:       model,
		Temperature: Float(0.7),
		MaxTokens:   512,
		Prompt:      "Summarise: ${input.text}",
	}
}

// =============================================================================
// ✅ 合法工作流
// =============================================================================

// LinearWorkflow start → draft(model) → search(tool) → save(memory)
func LinearWorkflow() *workflow.Definition {
	return workflow.NewBuilder("wf-linear", "linear").
		Start("start").
		Model("draft", ValidModel("gpt-4o")).
		Tool("search", workflow.ToolConfig{ToolName: "web_search", TimeoutMs: 5000}).
		Memory("save", workflow.MemoryConfig{Operation: workflow.MemoryWrite, Key: "summary", Value: "${output}"}).
		Connect("start", "draft").
		Connect("draft", "search").
		Connect("search", "save").
		Build()
}

// BranchingWorkflow 条件分支：score 高于阈值走工具，否则走检索，最终汇总
func BranchingWorkflow() *workflow.Definition {
	return workflow.NewBuilder("wf-branch", "branching").
		Variable("threshold", "number", 0.5).
		Start("start").
		Model("classify", ValidModel("gpt-4o-mini")).
		Conditional("route", "output.score > threshold").
		Tool("act", workflow.ToolConfig{ToolName: "ticket", TimeoutMs: 3000}).
		Retrieval("lookup", workflow.RetrievalConfig{Query: "${input.text}", TopK: 3, TimeoutMs: 2000}).
		Model("summarise", ValidModel("gpt-4o")).
		Connect("start", "classify").
		Connect("classify", "route").
		ConnectVia("route", "act", workflow.HandleTrue).
		ConnectVia("route", "lookup", workflow.HandleFalse).
		Connect("act", "summarise").
		Connect("lookup", "summarise").
		Build()
}

// LoopWorkflow 有界循环：loop 通过 body 边重复执行 refine
func LoopWorkflow() *workflow.Definition {
	return workflow.NewBuilder("wf-loop", "loop").
		Variable("attempts", "number", 0).
		Start("start").
		Loop("repeat", workflow.LoopConfig{Condition: "iteration < 3", MaxIterations: 5}).
		Model("refine", ValidModel("gpt-4o")).
		SetVariable("count", "attempts", "iteration").
		Connect("start", "repeat").
		ConnectVia("repeat", "refine", workflow.HandleBody).
		Connect("repeat", "count").
		Build()
}

// ErrorHandlingWorkflow flaky 工具失败时经 error 边进入 handler
func ErrorHandlingWorkflow() *workflow.Definition {
	return workflow.NewBuilder("wf-error", "error handling").
		Start("start").
		Tool("flaky", workflow.ToolConfig{ToolName: "flaky", TimeoutMs: 1000}).
		Model("answer", ValidModel("gpt-4o")).
		ErrorHandler("handler", workflow.ErrorHandlerConfig{MaxRetries: 1, RetryDelayMs: 1, Fallback: "fallback"}).
		Connect("start", "flaky").
		Connect("flaky", "answer").
		OnError("flaky", "handler").
		Build()
}

// BoundedLoopCycle 两个有界 loop 节点互相指向，形成被允许的环
func BoundedLoopCycle() *workflow.Definition {
	return workflow.NewBuilder("wf-loop-cycle", "bounded loop cycle").
		Start("start").
		Loop("outer", workflow.LoopConfig{MaxIterations: 3}).
		Loop("inner", workflow.LoopConfig{Condition: "iteration < 2"}).
		Delay("pause", 0).
		Connect("start", "outer").
		Connect("outer", "inner").
		Connect("inner", "outer").
		Connect("inner", "pause").
		Build()
}

// =============================================================================
// ❌ 非法工作流
// =============================================================================

// CyclicWorkflow 含普通节点组成的环
func CyclicWorkflow() *workflow.Definition {
	return workflow.NewBuilder("wf-cycle", "cyclic").
		Start("start").
		Model("a", ValidModel("gpt-4o")).
		Tool("b", workflow.ToolConfig{ToolName: "t"}).
		Delay("end", 10).
		Connect("start", "a").
		Connect("a", "b").
		Connect("b", "a").
		Connect("b", "end").
		Build()
}

// NoStartWorkflow 没有 start 节点
func NoStartWorkflow() *workflow.Definition {
	return workflow.NewBuilder("wf-nostart", "no start").
		Model("a", ValidModel("gpt-4o")).
		Delay("b", 10).
		Connect("a", "b").
		Build()
}

// =============================================================================
// 🎲 随机图
// =============================================================================

var randomTypes = []workflow.NodeType{
	workflow.NodeTypeModel,
	workflow.NodeTypeTool,
	workflow.NodeTypeMemory,
	workflow.NodeTypeRetrieval,
	workflow.NodeTypeConditional,
	workflow.NodeTypeLoop,
	workflow.NodeTypeVariable,
	workflow.NodeTypeErrorHandler,
	workflow.NodeTypeDelay,
}

// RandomDefinition 生成随机图：starts 个 start 节点、nodes 个其他节点、最多 edges 条边。
// 边端点均有效，但图可能含环、不可达节点或缺失配置。
func RandomDefinition(r *rand.Rand, starts, nodes, edges int) *workflow.Definition {
	def := workflow.New(fmt.Sprintf("wf-rand-%d", r.Int63()), "random")
	for i := 0; i < starts; i++ {
		def.AddNode(workflow.NewNode(fmt.Sprintf("s%d", i), workflow.NodeTypeStart))
	}
	for i := 0; i < nodes; i++ {
		t := randomTypes[r.Intn(len(randomTypes))]
		n := workflow.NewNode(fmt.Sprintf("n%d", i), t)
		switch t {
		case workflow.NodeTypeLoop:
			n.Config = &workflow.LoopConfig{MaxIterations: r.Intn(3)}
		case workflow.NodeTypeModel:
			cfg := ValidModel("gpt-4o")
			n.Config = &cfg
		case workflow.NodeTypeTool:
			n.Config = &workflow.ToolConfig{ToolName: "t", TimeoutMs: r.Intn(2) * 1000}
		}
		def.AddNode(n)
	}
	ids := def.NodeIDs()
	if len(ids) == 0 {
		return def
	}
	handles := []string{"", "", workflow.HandleTrue, workflow.HandleFalse, workflow.HandleBody}
	for i := 0; i < edges; i++ {
		e := &workflow.Edge{
			ID:           fmt.Sprintf("e%d", i),
			Source:       ids[r.Intn(len(ids))],
			Target:       ids[r.Intn(len(ids))],
			SourceHandle: handles[r.Intn(len(handles))],
		}
		def.AddEdge(e)
	}
	return def
}
