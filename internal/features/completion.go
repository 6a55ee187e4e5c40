package features

import (
	"fmt"
	"strings"

	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
)

type CompletionKind int

const (
	CompletionField CompletionKind = iota + 1
	CompletionValue
	CompletionStruct
	CompletionEnum
	CompletionReference
)

type CompletionItem struct {
	Label  string
	Kind   CompletionKind
	Detail string
	// Documentation is markdown.
	Documentation string
	InsertText    string
	Snippet       bool
	SortText      string
}

var apiVersions = []string{"tekton.dev/v1", "tekton.dev/v1beta1", "triggers.tekton.dev/v1beta1"}

// Complete returns the suggestions for pos. Keys are offered from the
// schema group at the cursor, values for enums, booleans, kind, apiVersion
// and names of resources the cursor refers to.
func Complete(tree *parser.Tree, pos parser.Position, names Resolver) []CompletionItem {
	ctx := parser.ContextAt(tree.Lines, pos)
	kind := kindAt(tree.Lines, pos.Line)
	if ctx.InValue {
		return filter(valueItems(kind, ctx, names), ctx.Prefix)
	}
	return filter(keyItems(kind, ctx), ctx.Prefix)
}

func filter(items []CompletionItem, prefix string) []CompletionItem {
	if prefix == "" {
		return items
	}
	var out []CompletionItem
	for _, it := range items {
		if strings.HasPrefix(it.Label, prefix) {
			out = append(out, it)
		}
	}
	return out
}

func keyItems(kind schema.Kind, ctx parser.Context) []CompletionItem {
	g := schema.Resolve(kind, ctx.Path)
	if g == nil {
		return nil
	}
	present := make(map[string]bool, len(ctx.Siblings))
	for _, k := range ctx.Siblings {
		present[k] = true
	}
	var items []CompletionItem
	for i, f := range g.Fields {
		if present[f.Name] {
			continue
		}
		items = append(items, CompletionItem{
			Label:         f.Name,
			Kind:          itemKind(f.Type),
			Detail:        f.Detail(),
			Documentation: f.Markdown(),
			InsertText:    snippet(f),
			Snippet:       true,
			SortText:      sortText(f, i),
		})
	}
	return items
}

func itemKind(t schema.Type) CompletionKind {
	switch t {
	case schema.TypeArray, schema.TypeBoolean:
		return CompletionValue
	case schema.TypeObject:
		return CompletionStruct
	default:
		return CompletionField
	}
}

// sortText puts required fields first and keeps schema order otherwise.
func sortText(f *schema.Field, i int) string {
	rank := 2
	switch {
	case f.Required:
		rank = 0
	case f.Recommended:
		rank = 1
	}
	return fmt.Sprintf("%d%03d", rank, i)
}

// snippet is the text inserted for a key. Clients re-indent continuation
// lines to the cursor's indentation.
func snippet(f *schema.Field) string {
	switch {
	case len(f.Values) > 0:
		return fmt.Sprintf("%s: ${1|%s|}", f.Name, strings.Join(f.Values, ","))
	case f.Type == schema.TypeBoolean:
		return f.Name + ": ${1|true,false|}"
	case f.Type == schema.TypeArray:
		return f.Name + ":\n  - $0"
	case f.Type == schema.TypeObject:
		return f.Name + ":\n  $0"
	default:
		return f.Name + ": $0"
	}
}

func valueItems(kind schema.Kind, ctx parser.Context, names Resolver) []CompletionItem {
	if len(ctx.Path) == 0 {
		switch ctx.Key {
		case "kind":
			var items []CompletionItem
			for _, k := range schema.Kinds() {
				items = append(items, CompletionItem{
					Label:         k.String(),
					Kind:          CompletionEnum,
					Detail:        k.APIVersion(),
					Documentation: schema.KindDocs[k],
					InsertText:    k.String(),
				})
			}
			return items
		case "apiVersion":
			var items []CompletionItem
			for _, v := range apiVersions {
				items = append(items, CompletionItem{Label: v, Kind: CompletionEnum, InsertText: v})
			}
			return items
		}
	}

	if kinds, ok := refTarget(ctx.Path, ctx.Key); ok {
		if names == nil {
			return nil
		}
		var items []CompletionItem
		for _, target := range kinds {
			for _, name := range names.Names(target) {
				items = append(items, CompletionItem{
					Label:      name,
					Kind:       CompletionReference,
					Detail:     target.String(),
					InsertText: name,
				})
			}
		}
		return items
	}

	f := schema.FieldAt(kind, append(append([]string(nil), ctx.Path...), ctx.Key))
	if f == nil {
		return nil
	}
	values := f.Values
	if len(values) == 0 && f.Type == schema.TypeBoolean {
		values = []string{"true", "false"}
	}
	var items []CompletionItem
	for _, v := range values {
		items = append(items, CompletionItem{Label: v, Kind: CompletionEnum, Detail: f.Name, InsertText: v})
	}
	return items
}

// refTarget reports the kinds a value at path.key names.
func refTarget(path []string, key string) ([]schema.Kind, bool) {
	if len(path) == 0 {
		return nil, false
	}
	parent := path[len(path)-1]
	switch {
	case parent == "taskRef" && key == "name":
		return []schema.Kind{schema.KindTask, schema.KindClusterTask}, true
	case parent == "pipelineRef" && key == "name":
		return []schema.Kind{schema.KindPipeline}, true
	case parent == "template" && key == "ref":
		return []schema.Kind{schema.KindTriggerTemplate}, true
	case parent == parser.ItemStep && key == "ref" && len(path) > 1 && path[len(path)-2] == "bindings":
		return []schema.Kind{schema.KindTriggerBinding}, true
	}
	return nil, false
}
