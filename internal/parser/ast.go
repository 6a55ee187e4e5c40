package parser

import (
	"strings"

	"go.yaml.in/yaml/v3"
)

// Position is a zero-based line and UTF-16 code unit offset.
type Position struct {
	Line      int
	Character int
}

func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Character < o.Character
}

func (p Position) After(o Position) bool {
	return o.Before(p)
}

// Range is half-open: Start is inside, End is not.
type Range struct {
	Start Position
	End   Position
}

func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

func (r Range) Contains(p Position) bool {
	return !p.Before(r.Start) && p.Before(r.End)
}

func (r Range) ContainsRange(o Range) bool {
	return !o.Start.Before(r.Start) && !o.End.After(r.End)
}

type NodeKind int

const (
	ScalarNode NodeKind = iota
	MappingNode
	SequenceNode
)

func (k NodeKind) String() string {
	switch k {
	case MappingNode:
		return "mapping"
	case SequenceNode:
		return "sequence"
	default:
		return "scalar"
	}
}

// ItemStep is the path element used for sequence items.
const ItemStep = "[]"

// Node is one parsed element. A mapping entry is represented by its value
// node with Key set; its Range spans from the key to the end of the value.
type Node struct {
	Kind       NodeKind
	Key        string
	HasKey     bool
	KeyRange   Range
	Range      Range
	ValueRange Range
	Value      string
	Tag        string
	Style      yaml.Style
	Children   []*Node

	parent *Node
}

func (n *Node) Parent() *Node {
	return n.parent
}

// Get returns the first child entry with the given key.
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != MappingNode {
		return nil
	}
	for _, c := range n.Children {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// Lookup follows a chain of mapping keys.
func (n *Node) Lookup(keys ...string) *Node {
	cur := n
	for _, k := range keys {
		cur = cur.Get(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Keys returns the entry keys of a mapping in source order.
func (n *Node) Keys() []string {
	if n == nil || n.Kind != MappingNode {
		return nil
	}
	keys := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		keys = append(keys, c.Key)
	}
	return keys
}

func (n *Node) IsNull() bool {
	return n != nil && n.Kind == ScalarNode && n.Tag == "!!null"
}

// IsEmpty reports a null value, an empty string or an empty collection.
func (n *Node) IsEmpty() bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case ScalarNode:
		return n.IsNull() || strings.TrimSpace(n.Value) == ""
	default:
		return len(n.Children) == 0
	}
}

// StringValue returns the scalar value, or "" for non-scalars and nulls.
func (n *Node) StringValue() string {
	if n == nil || n.Kind != ScalarNode || n.IsNull() {
		return ""
	}
	return n.Value
}

// Path returns the mapping keys from the document root to n.
func (n *Node) Path() []string {
	var rev []string
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		if cur.HasKey {
			rev = append(rev, cur.Key)
		} else {
			rev = append(rev, ItemStep)
		}
	}
	path := make([]string, len(rev))
	for i, s := range rev {
		path[len(rev)-1-i] = s
	}
	return path
}

// Root walks up to the document root.
func (n *Node) Root() *Node {
	cur := n
	for cur != nil && cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Walk visits n and its descendants depth-first in source order until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// FindNodeAt returns the innermost node under n whose range contains pos.
func (n *Node) FindNodeAt(pos Position) *Node {
	if n == nil || !n.Range.Contains(pos) {
		return nil
	}
	cur := n
	for {
		var next *Node
		for _, c := range cur.Children {
			if c.Range.Contains(pos) {
				next = c
				break
			}
		}
		if next == nil {
			return cur
		}
		cur = next
	}
}

// OnKey reports whether pos falls on the key text of a mapping entry.
func (n *Node) OnKey(pos Position) bool {
	return n != nil && n.HasKey && n.KeyRange.Contains(pos)
}

// JoinPath renders a path as "spec.tasks[].name".
func JoinPath(path []string) string {
	var b strings.Builder
	for i, p := range path {
		if p == ItemStep {
			b.WriteString(ItemStep)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}
