package workflow

// NodeType defines the type of a workflow node.
type NodeType string

const (
	// NodeTypeStart is the single entry point of a workflow
	NodeTypeStart NodeType = "start"
	// NodeTypeModel calls a language model
	NodeTypeModel NodeType = "model"
	// NodeTypeTool invokes a registered tool
	NodeTypeTool NodeType = "tool"
	// NodeTypeMemory reads or writes the memory store
	NodeTypeMemory NodeType = "memory"
	// NodeTypeRetrieval queries a retrieval source
	NodeTypeRetrieval NodeType = "retrieval"
	// NodeTypeConditional branches on a predicate
	NodeTypeConditional NodeType = "conditional"
	// NodeTypeLoop repeats its body edges
	NodeTypeLoop NodeType = "loop"
	// NodeTypeVariable assigns a workflow variable
	NodeTypeVariable NodeType = "variable"
	// NodeTypeErrorHandler receives failures through error edges
	NodeTypeErrorHandler NodeType = "errorHandler"
	// NodeTypeDelay pauses the run
	NodeTypeDelay NodeType = "delay"
)

var allNodeTypes = []NodeType{
	NodeTypeStart,
	NodeTypeModel,
	NodeTypeTool,
	NodeTypeMemory,
	NodeTypeRetrieval,
	NodeTypeConditional,
	NodeTypeLoop,
	NodeTypeVariable,
	NodeTypeErrorHandler,
	NodeTypeDelay,
}

// AllNodeTypes returns every known node type in declaration order.
func AllNodeTypes() []NodeType {
	out := make([]NodeType, len(allNodeTypes))
	copy(out, allNodeTypes)
	return out
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, known := range allNodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Well-known edge source handles.
const (
	HandleTrue    = "true"
	HandleFalse   = "false"
	HandleDefault = "default"
	HandleBody    = "body"
	HandleError   = "error"
)

// Position is the canvas position of a node. Layout only.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a single step of a workflow.
type Node struct {
	ID          string     `json:"id" yaml:"id"`
	Type        NodeType   `json:"type" yaml:"type"`
	Position    Position   `json:"position" yaml:"position"`
	Config      NodeConfig `json:"config,omitempty" yaml:"config,omitempty"`
	Label       string     `json:"label,omitempty" yaml:"label,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`

	// UnknownFields lists config keys that are not part of the type's config.
	// Populated when decoding; the validator reports them.
	UnknownFields []string `json:"-" yaml:"-"`
}

// NewNode creates a node of the given type with an empty config.
func NewNode(id string, nodeType NodeType) *Node {
	return &Node{ID: id, Type: nodeType, Config: DefaultConfig(nodeType)}
}

// WithConfig sets the node config.
func (n *Node) WithConfig(cfg NodeConfig) *Node {
	n.Config = cfg
	return n
}

// WithLabel sets the node label.
func (n *Node) WithLabel(label string) *Node {
	n.Label = label
	return n
}

// At sets the node position.
func (n *Node) At(x, y float64) *Node {
	n.Position = Position{X: x, Y: y}
	return n
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Config != nil {
		c.Config = n.Config.cloneConfig()
	}
	if n.UnknownFields != nil {
		c.UnknownFields = append([]string(nil), n.UnknownFields...)
	}
	return &c
}

// Edge connects two nodes.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
	Condition    string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// NewEdge creates an edge between source and target.
func NewEdge(id, source, target string) *Edge {
	return &Edge{ID: id, Source: source, Target: target}
}

// WithHandle sets the source handle.
func (e *Edge) WithHandle(handle string) *Edge {
	e.SourceHandle = handle
	return e
}

// WithCondition sets the edge condition.
func (e *Edge) WithCondition(condition string) *Edge {
	e.Condition = condition
	return e
}

// Clone returns a copy of the edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// SameRoute reports whether e and other connect the same pair through the
// same handles and condition.
func (e *Edge) SameRoute(other *Edge) bool {
	return e.Source == other.Source &&
		e.Target == other.Target &&
		e.SourceHandle == other.SourceHandle &&
		e.TargetHandle == other.TargetHandle &&
		e.Condition == other.Condition
}

// IsErrorEdge reports whether the edge routes failures of its source.
func (e *Edge) IsErrorEdge() bool {
	return e.SourceHandle == HandleError
}

// BranchKey identifies the branch an edge represents on a conditional node.
func (e *Edge) BranchKey() string {
	if e.SourceHandle != "" {
		return e.SourceHandle
	}
	return e.Condition
}
