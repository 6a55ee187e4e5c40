package features

import (
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
	"github.com/tektoncd/tekton-lsp/internal/validator"
)

// CodeAction is a quick fix for one diagnostic. Its edits apply to the
// document the diagnostic was reported for.
type CodeAction struct {
	Title      string
	Diagnostic validator.Diagnostic
	Edits      []TextEdit
	Preferred  bool
}

// CodeActions returns the quick fixes for diags, in diagnostic order.
// Diagnostics without a remediation are skipped.
func CodeActions(tree *parser.Tree, diags []validator.Diagnostic) []CodeAction {
	var out []CodeAction
	for _, d := range diags {
		if len(d.Fields) == 0 {
			continue
		}
		m := mappingAt(tree, d.Parent)
		if m == nil {
			continue
		}
		switch d.Tag {
		case validator.TagMissingRequiredField:
			if isFlow(m) {
				continue
			}
			if edit, ok := insertField(tree.Lines, m, d.Fields[0]); ok {
				out = append(out, CodeAction{
					Title:      fmt.Sprintf("Add missing field '%s'", d.Fields[0]),
					Diagnostic: d,
					Edits:      []TextEdit{edit},
					Preferred:  true,
				})
			}
		case validator.TagUnknownField:
			n := entryAt(m, d.Range, d.Fields[0])
			if n == nil {
				continue
			}
			out = append(out, CodeAction{
				Title:      fmt.Sprintf("Remove unknown field '%s'", d.Fields[0]),
				Diagnostic: d,
				Edits:      []TextEdit{deleteEntry(tree.Lines, n)},
				Preferred:  true,
			})
		case validator.TagMutuallyExclusiveFields:
			for _, field := range d.Fields {
				n := m.Get(field)
				if n == nil {
					continue
				}
				out = append(out, CodeAction{
					Title:      fmt.Sprintf("Remove '%s'", field),
					Diagnostic: d,
					Edits:      []TextEdit{deleteEntry(tree.Lines, n)},
				})
			}
		}
	}
	return out
}

// mappingAt returns the innermost mapping spanning exactly rng.
func mappingAt(tree *parser.Tree, rng parser.Range) *parser.Node {
	var found *parser.Node
	for _, root := range tree.Roots {
		if !root.Range.ContainsRange(rng) {
			continue
		}
		root.Walk(func(n *parser.Node) bool {
			if !n.Range.ContainsRange(rng) {
				return false
			}
			if n.Kind == parser.MappingNode && n.Range == rng {
				found = n
			}
			return true
		})
	}
	return found
}

// entryAt picks the entry whose key the diagnostic points at, so that the
// right one of two duplicate keys is removed.
func entryAt(m *parser.Node, keyRange parser.Range, key string) *parser.Node {
	for _, c := range m.Children {
		if c.KeyRange == keyRange {
			return c
		}
	}
	return m.Get(key)
}

// lastLine is the last line holding text of n. Block values may end at the
// start of the following line.
func lastLine(n *parser.Node) int {
	end := n.Range.End
	if end.Character == 0 && end.Line > n.Range.Start.Line {
		return end.Line - 1
	}
	return end.Line
}

// insertField adds a template for field as the last entry of m.
func insertField(lines *parser.LineIndex, m *parser.Node, field string) (TextEdit, bool) {
	if len(m.Children) == 0 {
		return TextEdit{}, false
	}
	indent := strings.Repeat(" ", m.Children[0].KeyRange.Start.Character)
	tmpl := template(field, kindOf(m))
	for i, l := range tmpl {
		tmpl[i] = indent + l
	}
	body := strings.Join(tmpl, "\n")

	after := lastLine(m.Children[len(m.Children)-1])
	if after+1 < lines.LineCount() {
		pos := parser.Position{Line: after + 1}
		return TextEdit{Range: parser.Range{Start: pos, End: pos}, NewText: body + "\n"}, true
	}
	pos := lines.Position(lines.LineEnd(after))
	return TextEdit{Range: parser.Range{Start: pos, End: pos}, NewText: "\n" + body}, true
}

// template returns the lines inserted for a missing field, relative to the
// mapping's indentation.
func template(field string, kind schema.Kind) []string {
	switch field {
	case "apiVersion":
		return []string{"apiVersion: " + kind.APIVersion()}
	case "metadata":
		return []string{"metadata:", "  name: "}
	case "spec":
		switch kind {
		case schema.KindTask, schema.KindClusterTask:
			return []string{"spec:", "  steps:", "    - name: ", "      image: "}
		case schema.KindPipeline:
			return []string{"spec:", "  tasks:", "    - name: ", "      taskRef:", "        name: "}
		case schema.KindPipelineRun:
			return []string{"spec:", "  pipelineRef:", "    name: "}
		case schema.KindTaskRun:
			return []string{"spec:", "  taskRef:", "    name: "}
		}
		return []string{"spec: {}"}
	case "steps":
		return []string{"steps:", "  - name: ", "    image: "}
	case "tasks":
		return []string{"tasks:", "  - name: ", "    taskRef:", "      name: "}
	case "taskRef", "pipelineRef":
		return []string{field + ":", "  name: "}
	}
	return []string{field + ": "}
}

func isFlow(n *parser.Node) bool {
	return n != nil && n.Style&yaml.FlowStyle != 0
}

// deleteEntry removes a mapping entry. Entries on lines of their own lose
// their lines; the first entry of a sequence item gives its dash to the
// next entry.
func deleteEntry(lines *parser.LineIndex, n *parser.Node) TextEdit {
	if isFlow(n.Parent()) {
		return deleteFlowEntry(n)
	}
	start := n.Range.Start
	last := lastLine(n)
	text := lines.Text()

	off, err := lines.Offset(start)
	if err != nil {
		off = lines.LineStart(start.Line)
	}
	prefix := text[lines.LineStart(start.Line):off]

	if strings.TrimSpace(prefix) == "" {
		from := parser.Position{Line: start.Line}
		if last+1 < lines.LineCount() {
			return TextEdit{Range: parser.Range{Start: from, End: parser.Position{Line: last + 1}}}
		}
		if start.Line > 0 {
			from = lines.Position(lines.LineEnd(start.Line - 1))
		}
		return TextEdit{Range: parser.Range{Start: from, End: lines.Position(lines.LineEnd(last))}}
	}

	if next := nextSibling(n); next != nil {
		return TextEdit{Range: parser.Range{Start: start, End: next.Range.Start}}
	}
	return TextEdit{Range: parser.Range{Start: start, End: lines.Position(lines.LineEnd(last))}}
}

func nextSibling(n *parser.Node) *parser.Node {
	p := n.Parent()
	if p == nil {
		return nil
	}
	for i, c := range p.Children {
		if c == n && i+1 < len(p.Children) {
			return p.Children[i+1]
		}
	}
	return nil
}

// deleteFlowEntry removes an entry of a flow mapping together with the comma
// that separates it from a neighbour.
func deleteFlowEntry(n *parser.Node) TextEdit {
	siblings := n.Parent().Children
	for i, c := range siblings {
		if c != n {
			continue
		}
		switch {
		case i+1 < len(siblings):
			return TextEdit{Range: parser.Range{Start: n.Range.Start, End: siblings[i+1].Range.Start}}
		case i > 0:
			return TextEdit{Range: parser.Range{Start: siblings[i-1].Range.End, End: n.Range.End}}
		}
	}
	return TextEdit{Range: n.Range}
}
