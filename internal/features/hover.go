package features

import (
	"fmt"
	"strings"

	"go.lsp.dev/uri"

	"github.com/tektoncd/tekton-lsp/internal/index"
	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
)

type Hover struct {
	// Contents is markdown.
	Contents string
	Range    parser.Range
}

// HoverAt documents the key or reference under pos.
func HoverAt(docURI string, tree *parser.Tree, pos parser.Position, idx Resolver) *Hover {
	if ref, ok := referenceAt(docURI, tree, pos); ok {
		return &Hover{Contents: referenceDoc(ref, idx), Range: ref.Range}
	}

	n := tree.FindNodeAt(pos)
	if n == nil || !n.HasKey {
		return nil
	}
	onKey := n.OnKey(pos)
	if !onKey && (n.Kind != parser.ScalarNode || !touches(n.ValueRange, pos)) {
		return nil
	}
	path := n.Path()
	kind := kindOf(n)

	if !onKey && len(path) == 1 && n.Key == "kind" {
		if doc, ok := schema.KindDocs[schema.ParseKind(n.Value)]; ok {
			return &Hover{Contents: doc, Range: n.ValueRange}
		}
	}

	f := schema.FieldAt(kind, path)
	if f == nil {
		return nil
	}
	rng := n.KeyRange
	if !onKey {
		rng = n.ValueRange
	}
	return &Hover{Contents: f.Markdown(), Range: rng}
}

func referenceDoc(ref index.Reference, idx Resolver) string {
	head := fmt.Sprintf("**%s** `%s`", ref.Kind, ref.Name)
	if idx == nil {
		return head
	}
	res, ok := idx.FindResource(ref.Kind, ref.Name)
	if !ok {
		return head + "\n\nNot found in the workspace."
	}
	return fmt.Sprintf("%s\n\nDefined in `%s` at line %d.", head, displayPath(res.URI), res.Range.Start.Line+1)
}

// displayPath shows file URIs as paths.
func displayPath(u string) string {
	if !strings.HasPrefix(u, "file://") {
		return u
	}
	return uri.URI(u).Filename()
}
