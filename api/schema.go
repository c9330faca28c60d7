package api

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Scene is the root of a scene file: a forest of user nodes plus the links
// between their properties.
type Scene struct {
	// Version of the scene format.
	Version string `yaml:"version"`
	// Root nodes. Templates must appear here, never nested.
	Nodes []Node `yaml:"nodes,omitempty"`
	Links []Link `yaml:"links,omitempty"`
}

// Node is one user-authored node. Instances list no children: their content
// is generated from the template.
type Node struct {
	Name string `yaml:"name"`
	// Kind is "object" (default), "template" or "instance".
	Kind string `yaml:"kind,omitempty"`
	// Type selects the node's capability hooks.
	Type string `yaml:"type,omitempty"`
	// Interface marks an override point of a template.
	Interface bool `yaml:"interface,omitempty"`
	// Template is the slash-separated name path of the instantiated template.
	Template string `yaml:"template,omitempty"`
	// External instances are managed elsewhere and never synchronized.
	External bool       `yaml:"external,omitempty"`
	Props    Properties `yaml:"props,omitempty"`
	Children []Node     `yaml:"children,omitempty"`
}

// Property is a typed value. Exactly one of Value, Ref, Fields or Items is
// meaningful, depending on Type.
type Property struct {
	// Type is bool, int, int64, double, string, ref, struct, table or array.
	Type  string `yaml:"type"`
	Value any    `yaml:"value,omitempty"`
	// Ref is the name path of the referenced node.
	Ref    string     `yaml:"ref,omitempty"`
	Fields Properties `yaml:"fields,omitempty"`
	Items  []Property `yaml:"items,omitempty"`
	// Link is "start", "end" or "both".
	Link string `yaml:"link,omitempty"`
	URI  bool   `yaml:"uri,omitempty"`
}

type NamedProperty struct {
	Name string
	Property
}

// Properties is an ordered mapping from property name to Property.
type Properties []NamedProperty

func (ps *Properties) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", n.Line)
	}
	out := make(Properties, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		var p Property
		if err := n.Content[i+1].Decode(&p); err != nil {
			return err
		}
		out = append(out, NamedProperty{Name: n.Content[i].Value, Property: p})
	}
	*ps = out
	return nil
}

func (ps Properties) MarshalYAML() (any, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range ps {
		var v yaml.Node
		if err := v.Encode(p.Property); err != nil {
			return nil, err
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: p.Name}, &v)
	}
	return m, nil
}

// Link connects two properties addressed as "Root/Child#prop/sub".
type Link struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Weak  bool   `yaml:"weak,omitempty"`
}
