// Package features answers editor queries from a parsed document and the
// workspace index. Every provider is read-only.
package features

import (
	"strings"

	"github.com/tektoncd/tekton-lsp/internal/index"
	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
)

// Resolver is the part of the workspace index the providers read.
type Resolver interface {
	FindResource(kind schema.Kind, name string) (index.Resource, bool)
	FindReferences(kind schema.Kind, name string) []index.Reference
	Names(kind schema.Kind) []string
}

type Location struct {
	URI   string
	Range parser.Range
}

type TextEdit struct {
	Range   parser.Range
	NewText string
}

// touches is Contains, but also accepts a cursor sitting right after the
// last character.
func touches(r parser.Range, pos parser.Position) bool {
	return r.Contains(pos) || pos == r.End
}

// kindAt reads the kind of the YAML document holding line by scanning its
// lines, so that documents too broken to parse still get a kind.
func kindAt(lines *parser.LineIndex, line int) schema.Kind {
	start := line
	for start > 0 && !isSeparator(lines.Line(start)) {
		start--
	}
	for i := start; i < lines.LineCount(); i++ {
		text := lines.Line(i)
		if i > start && isSeparator(text) {
			break
		}
		if rest, ok := strings.CutPrefix(text, "kind:"); ok {
			value, _, _ := strings.Cut(rest, "#")
			return schema.ParseKind(strings.Trim(strings.TrimSpace(value), `"'`))
		}
	}
	return schema.KindUnknown
}

func isSeparator(line string) bool {
	return line == "---" || strings.HasPrefix(line, "--- ")
}

// kindOf returns the kind of the document holding n.
func kindOf(n *parser.Node) schema.Kind {
	return schema.ParseKind(n.Root().Get("kind").StringValue())
}
