package core

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

func nodeKindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		panic(fmt.Sprintf("unreachable: unknown YAML kind: %v", k))
	}
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.ShortTag() == TagNull)
}

func isMergeKey(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Value == "<<" && node.ShortTag() == TagMerge
}

func newString(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: TagStr, Value: value}
}

func newBool(value bool) *yaml.Node {
	v := "false"
	if value {
		v = "true"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: TagBool, Value: v}
}

func newStringSequence(values []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: TagSeq}
	for _, v := range values {
		seq.Content = append(seq.Content, newString(v))
	}
	return seq
}

// newMapping builds a block mapping from alternating key and value nodes.
func newMapping(pairs ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: TagMap, Content: pairs}
}

// newEmptyFlowMapping is rendered as "{}".
func newEmptyFlowMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: TagMap, Style: yaml.FlowStyle}
}

// mappingValue returns the value stored under key and the index of the key node in m.Content.
// The index is -1 when the key is missing.
func mappingValue(m *yaml.Node, key string) (*yaml.Node, int) {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil, -1
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1], i
		}
	}
	return nil, -1
}

// setMappingValue overwrites the value of an existing key in place, or appends the pair.
func setMappingValue(m *yaml.Node, key string, value *yaml.Node) {
	if _, i := mappingValue(m, key); i >= 0 {
		m.Content[i+1] = value
		return
	}
	m.Content = append(m.Content, newString(key), value)
}

// aliasCycle returns the first alias which is reached again while its own value is
// being expanded, or nil when every alias can be expanded.
func aliasCycle(node *yaml.Node) *yaml.Node {
	return findAliasCycle(node, map[*yaml.Node]struct{}{})
}

func findAliasCycle(node *yaml.Node, expanding map[*yaml.Node]struct{}) *yaml.Node {
	if node == nil {
		return nil
	}
	if node.Kind == yaml.AliasNode {
		if _, ok := expanding[node.Alias]; ok {
			return node
		}
		expanding[node.Alias] = struct{}{}
		defer delete(expanding, node.Alias)
		return findAliasCycle(node.Alias, expanding)
	}
	for _, c := range node.Content {
		if a := findAliasCycle(c, expanding); a != nil {
			return a
		}
	}
	return nil
}

// inlineNode returns a deep copy of node where every alias is replaced by a copy of
// its anchored value, anchors are dropped and merge keys are expanded in place.
// The result never shares a node with the input, so it can be emitted any number
// of times without the encoder producing anchors. node must not contain an alias
// cycle (see aliasCycle).
func inlineNode(node *yaml.Node) *yaml.Node {
	if node == nil {
		return nil
	}
	if node.Kind == yaml.AliasNode {
		return inlineNode(node.Alias)
	}

	c := *node
	c.Anchor = ""
	c.Alias = nil
	c.Content = nil

	if node.Kind == yaml.MappingNode {
		inlineMapping(node, &c)
		return &c
	}
	if len(node.Content) > 0 {
		c.Content = make([]*yaml.Node, 0, len(node.Content))
		for _, child := range node.Content {
			c.Content = append(c.Content, inlineNode(child))
		}
	}
	return &c
}

// inlineMapping copies the pairs of src into dst. Keys written explicitly win over
// merged ones, and an earlier merge source wins over a later one.
func inlineMapping(src, dst *yaml.Node) {
	explicit := make(map[string]struct{}, len(src.Content)/2)
	for i := 0; i+1 < len(src.Content); i += 2 {
		if !isMergeKey(src.Content[i]) {
			explicit[src.Content[i].Value] = struct{}{}
		}
	}

	merged := map[string]struct{}{}
	for i := 0; i+1 < len(src.Content); i += 2 {
		k, v := src.Content[i], src.Content[i+1]
		if !isMergeKey(k) {
			dst.Content = append(dst.Content, inlineNode(k), inlineNode(v))
			continue
		}
		for _, m := range mergeSources(v) {
			for j := 0; j+1 < len(m.Content); j += 2 {
				key := m.Content[j].Value
				if _, ok := explicit[key]; ok {
					continue
				}
				if _, ok := merged[key]; ok {
					continue
				}
				merged[key] = struct{}{}
				dst.Content = append(dst.Content, m.Content[j], m.Content[j+1])
			}
		}
	}
}

// mergeSources resolves the value of a "<<" key into inlined mappings.
func mergeSources(v *yaml.Node) []*yaml.Node {
	var sources []*yaml.Node
	if v.Kind == yaml.SequenceNode {
		for _, item := range v.Content {
			if m := inlineNode(item); m.Kind == yaml.MappingNode {
				sources = append(sources, m)
			}
		}
		return sources
	}
	if m := inlineNode(v); m.Kind == yaml.MappingNode {
		sources = append(sources, m)
	}
	return sources
}
