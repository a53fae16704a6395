package workflow

import (
	"reflect"
	"time"

	"github.com/BaSui01/flowstudio/workflow/expr"
)

// Metadata describes a workflow definition.
type Metadata struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Variable is a declared workflow variable.
type Variable struct {
	Type        string `json:"type" yaml:"type"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Settings holds editor behaviour flags stored with the definition.
type Settings struct {
	AutoSave         bool `json:"autoSave" yaml:"autoSave"`
	EnableValidation bool `json:"enableValidation" yaml:"enableValidation"`
	EnableAnalytics  bool `json:"enableAnalytics" yaml:"enableAnalytics"`
}

// DefaultSettings returns the settings applied to new definitions.
func DefaultSettings() Settings {
	return Settings{AutoSave: true, EnableValidation: true, EnableAnalytics: true}
}

// Definition is an authored workflow graph. Nodes and edges are kept in
// insertion order and addressed by id; they are owned by one definition only.
//
// Mutation methods are total: they never panic and report whether anything
// changed. Requests that reference unknown ids are no-ops.
type Definition struct {
	ID        string              `json:"id,omitempty" yaml:"id,omitempty"`
	Nodes     []*Node             `json:"nodes" yaml:"nodes"`
	Edges     []*Edge             `json:"edges" yaml:"edges"`
	Metadata  Metadata            `json:"metadata" yaml:"metadata"`
	Variables map[string]Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
	Settings  Settings            `json:"settings" yaml:"settings"`
}

// New creates an empty definition.
func New(id, name string) *Definition {
	now := time.Now().UTC()
	return &Definition{
		ID:        id,
		Nodes:     []*Node{},
		Edges:     []*Edge{},
		Metadata:  Metadata{Name: name, Version: "1.0.0", CreatedAt: now, UpdatedAt: now},
		Variables: map[string]Variable{},
		Settings:  DefaultSettings(),
	}
}

// ============================================================
// Queries
// ============================================================

func (d *Definition) nodePos(id string) int {
	for i, n := range d.Nodes {
		if n != nil && n.ID == id {
			return i
		}
	}
	return -1
}

func (d *Definition) edgePos(id string) int {
	for i, e := range d.Edges {
		if e != nil && e.ID == id {
			return i
		}
	}
	return -1
}

// Node returns the node with the given id.
func (d *Definition) Node(id string) (*Node, bool) {
	if i := d.nodePos(id); i >= 0 {
		return d.Nodes[i], true
	}
	return nil, false
}

// Edge returns the edge with the given id.
func (d *Definition) Edge(id string) (*Edge, bool) {
	if i := d.edgePos(id); i >= 0 {
		return d.Edges[i], true
	}
	return nil, false
}

// HasNode reports whether a node with the id exists.
func (d *Definition) HasNode(id string) bool {
	return d.nodePos(id) >= 0
}

// Outgoing returns the edges leaving the node, in edge order.
func (d *Definition) Outgoing(id string) []*Edge {
	var out []*Edge
	for _, e := range d.Edges {
		if e != nil && e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// Incoming returns the edges entering the node, in edge order.
func (d *Definition) Incoming(id string) []*Edge {
	var in []*Edge
	for _, e := range d.Edges {
		if e != nil && e.Target == id {
			in = append(in, e)
		}
	}
	return in
}

// StartNodes returns every start node, in node order.
func (d *Definition) StartNodes() []*Node {
	var starts []*Node
	for _, n := range d.Nodes {
		if n != nil && n.Type == NodeTypeStart {
			starts = append(starts, n)
		}
	}
	return starts
}

// NodeIDs returns node ids in order.
func (d *Definition) NodeIDs() []string {
	ids := make([]string, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		if n != nil {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Clone returns a fully independent deep copy.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := &Definition{
		ID:       d.ID,
		Metadata: d.Metadata,
		Settings: d.Settings,
	}
	if d.Nodes != nil {
		c.Nodes = make([]*Node, len(d.Nodes))
		for i, n := range d.Nodes {
			c.Nodes[i] = n.Clone()
		}
	}
	if d.Edges != nil {
		c.Edges = make([]*Edge, len(d.Edges))
		for i, e := range d.Edges {
			c.Edges[i] = e.Clone()
		}
	}
	if d.Variables != nil {
		c.Variables = make(map[string]Variable, len(d.Variables))
		for k, v := range d.Variables {
			v.Default = cloneValue(v.Default)
			c.Variables[k] = v
		}
	}
	return c
}

// Equal reports whether two definitions are deeply equal.
func (d *Definition) Equal(other *Definition) bool {
	return reflect.DeepEqual(d, other)
}

// Touch stamps UpdatedAt.
func (d *Definition) Touch(now time.Time) {
	if d.Metadata.CreatedAt.IsZero() {
		d.Metadata.CreatedAt = now
	}
	d.Metadata.UpdatedAt = now
}

// ============================================================
// Mutations
// ============================================================

// AddNode appends a node. Nil nodes, empty ids and duplicate ids are ignored.
func (d *Definition) AddNode(n *Node) bool {
	if n == nil || n.ID == "" || d.HasNode(n.ID) {
		return false
	}
	d.Nodes = append(d.Nodes, n)
	return true
}

// RemoveNode removes a node together with every edge that touches it.
func (d *Definition) RemoveNode(id string) bool {
	i := d.nodePos(id)
	if i < 0 {
		return false
	}
	d.Nodes = append(d.Nodes[:i:i], d.Nodes[i+1:]...)
	kept := d.Edges[:0:0]
	for _, e := range d.Edges {
		if e != nil && (e.Source == id || e.Target == id) {
			continue
		}
		kept = append(kept, e)
	}
	d.Edges = kept
	return true
}

// AddEdge appends an edge. The edge is ignored when its id is empty or taken,
// when either endpoint is missing, or when an edge with the same route exists.
func (d *Definition) AddEdge(e *Edge) bool {
	if e == nil || e.ID == "" || d.edgePos(e.ID) >= 0 {
		return false
	}
	if !d.HasNode(e.Source) || !d.HasNode(e.Target) {
		return false
	}
	for _, existing := range d.Edges {
		if existing != nil && existing.SameRoute(e) {
			return false
		}
	}
	d.Edges = append(d.Edges, e)
	return true
}

// RemoveEdge removes an edge by id.
func (d *Definition) RemoveEdge(id string) bool {
	i := d.edgePos(id)
	if i < 0 {
		return false
	}
	d.Edges = append(d.Edges[:i:i], d.Edges[i+1:]...)
	return true
}

// UpdateNodeConfig replaces a node's config. The config must match the node type.
func (d *Definition) UpdateNodeConfig(id string, cfg NodeConfig) bool {
	n, ok := d.Node(id)
	if !ok || cfg == nil || cfg.NodeType() != n.Type {
		return false
	}
	if reflect.DeepEqual(n.Config, cfg) && len(n.UnknownFields) == 0 {
		return false
	}
	n.Config = cfg
	n.UnknownFields = nil
	return true
}

// UpdateNode sets a node's label and description.
func (d *Definition) UpdateNode(id, label, description string) bool {
	n, ok := d.Node(id)
	if !ok || (n.Label == label && n.Description == description) {
		return false
	}
	n.Label = label
	n.Description = description
	return true
}

// MoveNode sets a node's position.
func (d *Definition) MoveNode(id string, pos Position) bool {
	n, ok := d.Node(id)
	if !ok || n.Position == pos {
		return false
	}
	n.Position = pos
	return true
}

// DeclareVariable adds or replaces a variable declaration.
func (d *Definition) DeclareVariable(name string, v Variable) bool {
	if name == "" {
		return false
	}
	if existing, ok := d.Variables[name]; ok && reflect.DeepEqual(existing, v) {
		return false
	}
	if d.Variables == nil {
		d.Variables = make(map[string]Variable)
	}
	d.Variables[name] = v
	return true
}

// RemoveVariable removes a variable declaration. References are left in place.
func (d *Definition) RemoveVariable(name string) bool {
	if _, ok := d.Variables[name]; !ok {
		return false
	}
	delete(d.Variables, name)
	return true
}

// RenameVariable renames a declared variable and rewrites every reference to
// it in predicates, loop conditions, edge conditions, variable nodes and
// ${...} interpolations. Renaming onto an existing name is ignored.
func (d *Definition) RenameVariable(oldName, newName string) bool {
	if oldName == newName || newName == "" {
		return false
	}
	v, ok := d.Variables[oldName]
	if !ok {
		return false
	}
	if _, taken := d.Variables[newName]; taken {
		return false
	}
	delete(d.Variables, oldName)
	d.Variables[newName] = v

	renameExpr := func(s string) string { return expr.RenameIdentifier(s, oldName, newName) }
	renameRef := func(s string) string { return expr.RenameReference(s, oldName, newName) }

	for _, n := range d.Nodes {
		if n == nil {
			continue
		}
		switch cfg := n.Config.(type) {
		case *ModelConfig:
			cfg.Prompt = renameRef(cfg.Prompt)
			cfg.SystemPrompt = renameRef(cfg.SystemPrompt)
		case *ToolConfig:
			cfg.Params = renameParams(cfg.Params, renameRef)
		case *MemoryConfig:
			cfg.Key = renameRef(cfg.Key)
			cfg.Value = renameRef(cfg.Value)
		case *RetrievalConfig:
			cfg.Query = renameRef(cfg.Query)
		case *ConditionalConfig:
			cfg.Predicate = renameExpr(cfg.Predicate)
		case *LoopConfig:
			cfg.Condition = renameExpr(cfg.Condition)
		case *VariableConfig:
			if cfg.Name == oldName {
				cfg.Name = newName
			}
			cfg.Expression = renameExpr(cfg.Expression)
		}
	}
	for _, e := range d.Edges {
		if e != nil && e.Condition != "" {
			e.Condition = renameExpr(e.Condition)
		}
	}
	return true
}

func renameParams(params map[string]any, rename func(string) string) map[string]any {
	for k, v := range params {
		switch val := v.(type) {
		case string:
			params[k] = rename(val)
		case map[string]any:
			params[k] = renameParams(val, rename)
		}
	}
	return params
}

// SetName sets the workflow name.
func (d *Definition) SetName(name string) bool {
	if d.Metadata.Name == name {
		return false
	}
	d.Metadata.Name = name
	return true
}

// UpdateSettings replaces the settings block.
func (d *Definition) UpdateSettings(s Settings) bool {
	if d.Settings == s {
		return false
	}
	d.Settings = s
	return true
}
