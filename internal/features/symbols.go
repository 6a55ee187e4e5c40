package features

import (
	"fmt"

	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
)

type SymbolKind int

// Values match the protocol's SymbolKind numbering.
const (
	SymbolModule    SymbolKind = 2
	SymbolNamespace SymbolKind = 3
	SymbolClass     SymbolKind = 5
	SymbolProperty  SymbolKind = 7
	SymbolFunction  SymbolKind = 12
	SymbolVariable  SymbolKind = 13
	SymbolArray     SymbolKind = 18
	SymbolObject    SymbolKind = 19
)

type Symbol struct {
	Name           string
	Detail         string
	Kind           SymbolKind
	Range          parser.Range
	SelectionRange parser.Range
	Children       []Symbol
}

// functionLists hold items that execute.
var functionLists = map[string]bool{"steps": true, "sidecars": true}

// DocumentSymbols outlines every document of tree.
func DocumentSymbols(tree *parser.Tree) []Symbol {
	var out []Symbol
	for _, root := range tree.Roots {
		if root.Kind != parser.MappingNode {
			continue
		}
		out = append(out, resourceSymbol(root))
	}
	return out
}

func resourceSymbol(root *parser.Node) Symbol {
	kind := root.Get("kind").StringValue()
	if kind == "" {
		kind = "Resource"
	}
	name := root.Lookup("metadata", "name").StringValue()
	if name == "" {
		name = root.Lookup("metadata", "generateName").StringValue()
	}
	if name == "" {
		name = "unnamed"
	}
	sym := Symbol{
		Name:           fmt.Sprintf("%s: %s", kind, name),
		Detail:         root.Get("apiVersion").StringValue(),
		Kind:           SymbolClass,
		Range:          root.Range,
		SelectionRange: selection(root),
	}
	if md := root.Get("metadata"); md != nil {
		sym.Children = append(sym.Children, Symbol{
			Name:           "metadata",
			Kind:           SymbolNamespace,
			Range:          md.Range,
			SelectionRange: md.KeyRange,
		})
	}
	if spec := root.Get("spec"); spec != nil {
		sym.Children = append(sym.Children, Symbol{
			Name:           "spec",
			Kind:           SymbolModule,
			Range:          spec.Range,
			SelectionRange: spec.KeyRange,
			Children:       members(spec),
		})
	}
	return sym
}

// selection is the part of a document root an outline highlights: the
// kind value when present.
func selection(root *parser.Node) parser.Range {
	if k := root.Get("kind"); k != nil {
		return k.Range
	}
	return parser.Range{Start: root.Range.Start, End: root.Range.Start}
}

// members outlines the lists, references and embedded specs of a mapping.
func members(n *parser.Node) []Symbol {
	if n == nil || n.Kind != parser.MappingNode {
		return nil
	}
	var out []Symbol
	for _, c := range n.Children {
		switch {
		case c.Kind == parser.SequenceNode:
			out = append(out, listSymbol(c))
		case (c.Key == "taskRef" || c.Key == "pipelineRef") && c.Kind == parser.MappingNode:
			target := c.Get("name").StringValue()
			if target == "" {
				target = c.Get("resolver").StringValue()
			}
			out = append(out, Symbol{
				Name:           fmt.Sprintf("%s: %s", c.Key, target),
				Detail:         refDetail(c),
				Kind:           SymbolProperty,
				Range:          c.Range,
				SelectionRange: c.KeyRange,
			})
		case c.Kind == parser.MappingNode && (c.Key == "taskSpec" || c.Key == "pipelineSpec"):
			out = append(out, Symbol{
				Name:           c.Key,
				Kind:           SymbolObject,
				Range:          c.Range,
				SelectionRange: c.KeyRange,
				Children:       members(c),
			})
		}
	}
	return out
}

func refDetail(ref *parser.Node) string {
	if k := ref.Get("kind").StringValue(); k != "" {
		return k
	}
	if ref.Key == "pipelineRef" {
		return schema.KindPipeline.String()
	}
	if ref.Get("resolver") != nil {
		return "resolver"
	}
	return schema.KindTask.String()
}

func listSymbol(seq *parser.Node) Symbol {
	sym := Symbol{
		Name:           fmt.Sprintf("%s (%d)", seq.Key, len(seq.Children)),
		Kind:           SymbolArray,
		Range:          seq.Range,
		SelectionRange: seq.KeyRange,
	}
	itemKind := SymbolVariable
	if functionLists[seq.Key] {
		itemKind = SymbolFunction
	}
	for _, item := range seq.Children {
		if item.Kind != parser.MappingNode {
			continue
		}
		name := item.Get("name").StringValue()
		if name == "" {
			name = "unnamed"
		}
		sel := item.Range
		if n := item.Get("name"); n != nil {
			sel = n.Range
		}
		sym.Children = append(sym.Children, Symbol{
			Name:           name,
			Kind:           itemKind,
			Range:          item.Range,
			SelectionRange: sel,
			Children:       members(item),
		})
	}
	return sym
}
