package cache

import (
	"fmt"
	"strings"

	"github.com/tektoncd/tekton-lsp/internal/parser"
)

// Change is one content change of a didChange notification. A nil Range
// replaces the whole text.
type Change struct {
	Range *parser.Range
	Text  string
}

// ApplyChanges splices changes into text in order. Each range addresses the
// text produced by the change before it.
func ApplyChanges(text string, changes []Change) (string, error) {
	for i, c := range changes {
		if c.Range == nil {
			text = c.Text
			continue
		}
		lines := parser.NewLineIndex(text)
		start, err := lines.Offset(c.Range.Start)
		if err != nil {
			return "", fmt.Errorf("%w: change %d start: %v", ErrOutOfRange, i, err)
		}
		end, err := lines.Offset(c.Range.End)
		if err != nil {
			return "", fmt.Errorf("%w: change %d end: %v", ErrOutOfRange, i, err)
		}
		if start > end {
			return "", fmt.Errorf("%w: change %d starts after it ends", ErrOutOfRange, i)
		}
		var b strings.Builder
		b.Grow(len(text) - (end - start) + len(c.Text))
		b.WriteString(text[:start])
		b.WriteString(c.Text)
		b.WriteString(text[end:])
		text = b.String()
	}
	return text, nil
}
