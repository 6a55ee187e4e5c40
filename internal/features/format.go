package features

import (
	"bytes"

	"github.com/tektoncd/tekton-lsp/internal/formatter"
	"github.com/tektoncd/tekton-lsp/internal/parser"
)

// Format returns a whole-document replacement, or no edits when the text is
// already formatted or cannot be parsed.
func Format(tree *parser.Tree) []TextEdit {
	if len(tree.YAML()) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := formatter.Format(tree, &buf); err != nil {
		return nil
	}
	if buf.String() == tree.Text() {
		return nil
	}
	return []TextEdit{{
		Range:   parser.Range{End: tree.Lines.End()},
		NewText: buf.String(),
	}}
}
