package workflow

import (
	"fmt"

	"go.uber.org/zap"
)

// Builder provides a fluent API for constructing workflow definitions.
// Invalid requests are logged and skipped; Build never fails, structural
// problems are reported by the validator.
type Builder struct {
	def     *Definition
	edgeSeq int
	logger  *zap.Logger
}

// NewBuilder creates a new builder for a workflow with the given id and name.
func NewBuilder(id, name string) *Builder {
	return &Builder{
		def:    New(id, name),
		logger: zap.NewNop(),
	}
}

// WithLogger sets a custom logger
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b.logger = logger.With(zap.String("component", "workflow_builder"))
	return b
}

// WithDescription sets the workflow description
func (b *Builder) WithDescription(desc string) *Builder {
	b.def.Metadata.Description = desc
	return b
}

// WithVersion sets the workflow version
func (b *Builder) WithVersion(version string) *Builder {
	b.def.Metadata.Version = version
	return b
}

// WithSettings sets the editor settings
func (b *Builder) WithSettings(s Settings) *Builder {
	b.def.Settings = s
	return b
}

// Variable declares a workflow variable
func (b *Builder) Variable(name, typ string, def any) *Builder {
	b.def.DeclareVariable(name, Variable{Type: typ, Default: def})
	return b
}

// Node adds a node with an explicit config
func (b *Builder) Node(id string, nodeType NodeType, cfg NodeConfig) *Builder {
	n := &Node{ID: id, Type: nodeType, Config: cfg}
	if cfg == nil {
		n.Config = DefaultConfig(nodeType)
	}
	n.Position = Position{X: 0, Y: float64(len(b.def.Nodes)) * 120}
	if !b.def.AddNode(n) {
		b.logger.Debug("node skipped", zap.String("node_id", id))
	}
	return b
}

// Start adds the start node
func (b *Builder) Start(id string) *Builder {
	return b.Node(id, NodeTypeStart, &StartConfig{})
}

// Model adds a model node
func (b *Builder) Model(id string, cfg ModelConfig) *Builder {
	return b.Node(id, NodeTypeModel, &cfg)
}

// Tool adds a tool node
func (b *Builder) Tool(id string, cfg ToolConfig) *Builder {
	return b.Node(id, NodeTypeTool, &cfg)
}

// Memory adds a memory node
func (b *Builder) Memory(id string, cfg MemoryConfig) *Builder {
	return b.Node(id, NodeTypeMemory, &cfg)
}

// Retrieval adds a retrieval node
func (b *Builder) Retrieval(id string, cfg RetrievalConfig) *Builder {
	return b.Node(id, NodeTypeRetrieval, &cfg)
}

// Conditional adds a conditional node
func (b *Builder) Conditional(id, predicate string) *Builder {
	return b.Node(id, NodeTypeConditional, &ConditionalConfig{Predicate: predicate})
}

// Loop adds a loop node
func (b *Builder) Loop(id string, cfg LoopConfig) *Builder {
	return b.Node(id, NodeTypeLoop, &cfg)
}

// SetVariable adds a variable node
func (b *Builder) SetVariable(id, name, expression string) *Builder {
	return b.Node(id, NodeTypeVariable, &VariableConfig{Name: name, Expression: expression})
}

// ErrorHandler adds an error handler node
func (b *Builder) ErrorHandler(id string, cfg ErrorHandlerConfig) *Builder {
	return b.Node(id, NodeTypeErrorHandler, &cfg)
}

// Delay adds a delay node
func (b *Builder) Delay(id string, durationMs int) *Builder {
	return b.Node(id, NodeTypeDelay, &DelayConfig{DurationMs: durationMs})
}

// Connect adds a plain edge
func (b *Builder) Connect(from, to string) *Builder {
	return b.addEdge(&Edge{Source: from, Target: to})
}

// ConnectVia adds an edge leaving through a source handle
func (b *Builder) ConnectVia(from, to, handle string) *Builder {
	return b.addEdge(&Edge{Source: from, Target: to, SourceHandle: handle})
}

// ConnectIf adds an edge guarded by a condition
func (b *Builder) ConnectIf(from, to, condition string) *Builder {
	return b.addEdge(&Edge{Source: from, Target: to, Condition: condition})
}

// OnError routes failures of from to an error handler
func (b *Builder) OnError(from, handler string) *Builder {
	return b.ConnectVia(from, handler, HandleError)
}

func (b *Builder) addEdge(e *Edge) *Builder {
	b.edgeSeq++
	e.ID = fmt.Sprintf("e%d", b.edgeSeq)
	if !b.def.AddEdge(e) {
		b.logger.Debug("edge skipped",
			zap.String("source", e.Source),
			zap.String("target", e.Target),
		)
	}
	return b
}

// Build returns the constructed definition. The builder must not be reused.
func (b *Builder) Build() *Definition {
	b.logger.Debug("workflow built",
		zap.String("name", b.def.Metadata.Name),
		zap.Int("nodes", len(b.def.Nodes)),
		zap.Int("edges", len(b.def.Edges)),
	)
	return b.def
}
