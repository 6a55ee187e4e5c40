package schema

import (
	"strings"

	"github.com/tektoncd/tekton-lsp/internal/parser"
)

type Type int

const (
	TypeString Type = iota
	TypeArray
	TypeObject
	TypeBoolean
	TypeInteger
	TypeAny
)

func (t Type) String() string {
	switch t {
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	case TypeBoolean:
		return "boolean"
	case TypeInteger:
		return "integer"
	case TypeAny:
		return "any"
	default:
		return "string"
	}
}

// Field is one schema entry of a group.
type Field struct {
	Name        string
	Description string
	Type        Type
	// Required fields are reported when missing; Recommended ones only warn.
	Required    bool
	Recommended bool
	// NonEmpty fields are reported when present but empty.
	NonEmpty     bool
	EmptyMessage string
	// SatisfiedBy names sibling keys that stand in for a missing field.
	SatisfiedBy []string
	Values      []string
	// Fields describes an object's members, Items the members of each
	// element of an array of objects.
	Fields *Group
	Items  *Group
}

// Group is the set of fields valid at one context path.
type Group struct {
	Name   string
	Fields []*Field
	// Open groups accept arbitrary keys.
	Open bool
}

func (g *Group) Field(name string) *Field {
	if g == nil {
		return nil
	}
	for _, f := range g.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Matches reports whether a node's shape fits the declared type. Nulls fit
// every type.
func (t Type) Matches(n *parser.Node) bool {
	if n == nil || n.IsNull() {
		return true
	}
	switch t {
	case TypeArray:
		return n.Kind == parser.SequenceNode
	case TypeObject:
		return n.Kind == parser.MappingNode
	case TypeBoolean:
		return n.Kind == parser.ScalarNode && n.Tag == "!!bool"
	case TypeInteger:
		return n.Kind == parser.ScalarNode && n.Tag == "!!int"
	case TypeString:
		return n.Kind == parser.ScalarNode
	default:
		return true
	}
}

// Detail renders "type" or "type (required)" for completion items.
func (f *Field) Detail() string {
	if f.Required {
		return f.Type.String() + " (required)"
	}
	return f.Type.String()
}

// Markdown renders the hover text of a field.
func (f *Field) Markdown() string {
	var b strings.Builder
	b.WriteString("**")
	b.WriteString(f.Name)
	b.WriteString("** `")
	b.WriteString(f.Detail())
	b.WriteString("`")
	if f.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(f.Description)
	}
	if len(f.Values) > 0 {
		b.WriteString("\n\nAllowed values: `")
		b.WriteString(strings.Join(f.Values, "`, `"))
		b.WriteString("`")
	}
	return b.String()
}

// Root returns the top-level group of a kind.
func Root(kind Kind) *Group {
	if g, ok := roots[kind]; ok {
		return g
	}
	return unknownRoot
}

// Resolve walks path from the kind's root group. It returns the group that
// applies at path, or nil when path leaves the schema or enters a scalar or
// open group.
func Resolve(kind Kind, path []string) *Group {
	g := Root(kind)
	var last *Field
	for _, step := range path {
		if g == nil {
			return nil
		}
		if step == parser.ItemStep {
			if last == nil || last.Items == nil {
				return nil
			}
			g = last.Items
			last = nil
			continue
		}
		if g.Open {
			return nil
		}
		f := g.Field(step)
		if f == nil {
			return nil
		}
		last = f
		switch {
		case f.Fields != nil:
			g = f.Fields
		case f.Items != nil:
			// stays on the field until an item step follows
			g = &Group{Name: f.Name}
		default:
			g = nil
		}
	}
	return g
}

// FieldAt returns the schema entry for the last key of path.
func FieldAt(kind Kind, path []string) *Field {
	if len(path) == 0 {
		return nil
	}
	last := path[len(path)-1]
	if last == parser.ItemStep {
		return nil
	}
	return Resolve(kind, path[:len(path)-1]).Field(last)
}
