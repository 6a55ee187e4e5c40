package formatter

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/tektoncd/tekton-lsp/internal/parser"
)

// Indent is the number of spaces per nesting level. Sequences are indented
// under their key.
const Indent = 2

var ErrParseErrors = errors.New("document has parse errors")

// Format writes the documents of tree with normalized indentation. Key
// order, scalar styles and comments come from the source. Trees with parse
// errors are refused since part of their text would be lost.
func Format(tree *parser.Tree, w io.Writer) error {
	if len(tree.Errors) > 0 {
		return ErrParseErrors
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(Indent)
	for _, doc := range tree.YAML() {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
	}
	return enc.Close()
}

// FormatText formats text and reports whether the result differs from it.
func FormatText(text string) (string, bool, error) {
	tree := parser.Parse(text)
	if len(tree.Errors) == 0 && len(tree.YAML()) == 0 {
		return text, false, nil
	}
	var buf bytes.Buffer
	if err := Format(tree, &buf); err != nil {
		return text, false, err
	}
	out := buf.String()
	return out, out != text, nil
}
