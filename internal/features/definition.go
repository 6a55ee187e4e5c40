package features

import (
	"github.com/tektoncd/tekton-lsp/internal/index"
	"github.com/tektoncd/tekton-lsp/internal/parser"
)

// referenceAt returns the reference site under pos.
func referenceAt(docURI string, tree *parser.Tree, pos parser.Position) (index.Reference, bool) {
	for _, ref := range index.ReferencesIn(docURI, tree) {
		if touches(ref.Range, pos) {
			return ref, true
		}
	}
	return index.Reference{}, false
}

// Definition resolves the reference under pos. Dangling references and
// positions that are not references give no location.
func Definition(docURI string, tree *parser.Tree, pos parser.Position, idx Resolver) []Location {
	if ref, ok := referenceAt(docURI, tree, pos); ok {
		res, found := idx.FindResource(ref.Kind, ref.Name)
		if !found {
			return nil
		}
		return []Location{{URI: res.URI, Range: res.Range}}
	}
	if task := runAfterTarget(tree, pos); task != nil {
		return []Location{{URI: docURI, Range: task.ValueRange}}
	}
	return nil
}

// runAfterTarget resolves a runAfter entry to the name of the pipeline task
// it waits for.
func runAfterTarget(tree *parser.Tree, pos parser.Position) *parser.Node {
	n := tree.FindNodeAt(pos)
	if n == nil || n.Kind != parser.ScalarNode || n.HasKey {
		return nil
	}
	seq := n.Parent()
	if seq == nil || seq.Key != "runAfter" {
		return nil
	}
	// runAfter -> task item -> tasks sequence
	item := seq.Parent()
	if item == nil {
		return nil
	}
	tasks := item.Parent()
	if tasks == nil || tasks.Kind != parser.SequenceNode {
		return nil
	}
	for _, task := range tasks.Children {
		if name := task.Get("name"); name != nil && name.StringValue() == n.Value {
			return name
		}
	}
	return nil
}

// declarationAt returns the resource whose metadata.name value is under pos.
func declarationAt(docURI string, tree *parser.Tree, pos parser.Position) (index.Resource, bool) {
	resources, _ := index.Extract(docURI, tree)
	for _, r := range resources {
		if touches(r.Range, pos) {
			return r, true
		}
	}
	return index.Resource{}, false
}

// References lists the reference sites naming the resource under pos, which
// may be its declaration or any reference to it.
func References(docURI string, tree *parser.Tree, pos parser.Position, idx Resolver, includeDeclaration bool) []Location {
	var key index.Key
	var decl *Location
	if res, ok := declarationAt(docURI, tree, pos); ok {
		key = res.Key()
		decl = &Location{URI: docURI, Range: res.Range}
	} else if ref, ok := referenceAt(docURI, tree, pos); ok {
		key = ref.Key()
		if res, found := idx.FindResource(ref.Kind, ref.Name); found {
			decl = &Location{URI: res.URI, Range: res.Range}
		}
	} else {
		return nil
	}

	var locs []Location
	if includeDeclaration && decl != nil {
		locs = append(locs, *decl)
	}
	for _, ref := range idx.FindReferences(key.Kind, key.Name) {
		locs = append(locs, Location{URI: ref.URI, Range: ref.Range})
	}
	return locs
}
