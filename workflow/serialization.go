package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// nodeDoc is the wire shape of a node with an untyped config.
type nodeDoc struct {
	ID          string   `json:"id" yaml:"id"`
	Type        NodeType `json:"type" yaml:"type"`
	Position    Position `json:"position" yaml:"position"`
	Config      any      `json:"config,omitempty" yaml:"config,omitempty"`
	Label       string   `json:"label,omitempty" yaml:"label,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

func (n *Node) doc() nodeDoc {
	d := nodeDoc{
		ID:          n.ID,
		Type:        n.Type,
		Position:    n.Position,
		Label:       n.Label,
		Description: n.Description,
	}
	switch cfg := n.Config.(type) {
	case nil:
	case *UnknownConfig:
		if len(cfg.Values) > 0 {
			d.Config = cfg.Values
		}
	default:
		d.Config = cfg
	}
	return d
}

// MarshalJSON serializes a Node to JSON
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.doc())
}

// UnmarshalJSON deserializes a Node from JSON, dispatching the config on the node type.
func (n *Node) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID          string          `json:"id"`
		Type        NodeType        `json:"type"`
		Position    Position        `json:"position"`
		Config      json.RawMessage `json:"config"`
		Label       string          `json:"label"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal node: %w", err)
	}
	cfg, unknown, err := DecodeConfig(aux.Type, aux.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", aux.ID, err)
	}
	*n = Node{
		ID:            aux.ID,
		Type:          aux.Type,
		Position:      aux.Position,
		Config:        cfg,
		Label:         aux.Label,
		Description:   aux.Description,
		UnknownFields: unknown,
	}
	return nil
}

// MarshalYAML serializes a Node to YAML
func (n *Node) MarshalYAML() (interface{}, error) {
	return n.doc(), nil
}

// UnmarshalYAML deserializes a Node from YAML through the JSON config decoder.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		ID          string         `yaml:"id"`
		Type        NodeType       `yaml:"type"`
		Position    Position       `yaml:"position"`
		Config      map[string]any `yaml:"config"`
		Label       string         `yaml:"label"`
		Description string         `yaml:"description"`
	}
	if err := value.Decode(&aux); err != nil {
		return fmt.Errorf("failed to unmarshal node: %w", err)
	}
	var raw json.RawMessage
	if aux.Config != nil {
		b, err := json.Marshal(aux.Config)
		if err != nil {
			return fmt.Errorf("node %s: %w", aux.ID, err)
		}
		raw = b
	}
	cfg, unknown, err := DecodeConfig(aux.Type, raw)
	if err != nil {
		return fmt.Errorf("node %s: %w", aux.ID, err)
	}
	*n = Node{
		ID:            aux.ID,
		Type:          aux.Type,
		Position:      aux.Position,
		Config:        cfg,
		Label:         aux.Label,
		Description:   aux.Description,
		UnknownFields: unknown,
	}
	return nil
}

// ToJSON converts a Definition to an indented JSON string
func (d *Definition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a Definition to YAML string
func (d *Definition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// FromJSON decodes a Definition. Structural problems are left for the validator.
func FromJSON(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	def.compact()
	return &def, nil
}

// FromYAML decodes a Definition. Structural problems are left for the validator.
func FromYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	def.compact()
	return &def, nil
}

// compact drops null entries so traversal code never sees nil nodes or edges.
func (d *Definition) compact() {
	if d.Nodes == nil {
		d.Nodes = []*Node{}
	}
	if d.Edges == nil {
		d.Edges = []*Edge{}
	}
	nodes := d.Nodes[:0]
	for _, n := range d.Nodes {
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	d.Nodes = nodes
	edges := d.Edges[:0]
	for _, e := range d.Edges {
		if e != nil {
			edges = append(edges, e)
		}
	}
	d.Edges = edges
}

// LoadFile loads a Definition from a .json, .yaml or .yml file
func LoadFile(filename string) (*Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FromYAML(data)
	default:
		return FromJSON(data)
	}
}

// SaveFile saves a Definition as JSON or YAML depending on the extension
func (d *Definition) SaveFile(filename string) error {
	var (
		out string
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		out, err = d.ToYAML()
	default:
		out, err = d.ToJSON()
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
