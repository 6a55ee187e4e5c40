package features

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tektoncd/tekton-lsp/internal/index"
	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
	"github.com/tektoncd/tekton-lsp/internal/validator"
)

const (
	taskURI     = "file:///work/task.yaml"
	pipelineURI = "file:///work/pipeline.yaml"
)

const taskText = `apiVersion: tekton.dev/v1
kind: Task
metadata:
  name: git-clone
spec:
  steps:
    - name: clone
      image: alpine/git
`

const pipelineText = `apiVersion: tekton.dev/v1
kind: Pipeline
metadata:
  name: build
spec:
  tasks:
    - name: fetch
      taskRef:
        name: git-clone
    - name: test
      runAfter:
        - fetch
      taskRef:
        name: go-test
`

func pos(line, char int) parser.Position {
	return parser.Position{Line: line, Character: char}
}

func rng(sl, sc, el, ec int) parser.Range {
	return parser.Range{Start: pos(sl, sc), End: pos(el, ec)}
}

func workspace(t *testing.T) *index.Index {
	t.Helper()
	ix := index.New(nil, nil)
	require.NoError(t, ix.IndexDocument(taskURI, parser.Parse(taskText)))
	require.NoError(t, ix.IndexDocument(pipelineURI, parser.Parse(pipelineText)))
	return ix
}

// apply applies edits computed against text.
func apply(t *testing.T, text string, edits []TextEdit) string {
	t.Helper()
	lines := parser.NewLineIndex(text)
	sorted := append([]TextEdit(nil), edits...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[j].Range.Start.Before(sorted[i].Range.Start)
	})
	for _, e := range sorted {
		start, err := lines.Offset(e.Range.Start)
		require.NoError(t, err)
		end, err := lines.Offset(e.Range.End)
		require.NoError(t, err)
		text = text[:start] + e.NewText + text[end:]
	}
	return text
}

func labels(items []CompletionItem) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Label)
	}
	return out
}

func TestDefinitionAcrossFiles(t *testing.T) {
	ix := workspace(t)
	tree := parser.Parse(pipelineText)

	want := []Location{{URI: taskURI, Range: rng(3, 8, 3, 17)}}
	assert.Equal(t, want, Definition(pipelineURI, tree, pos(8, 16), ix))
	assert.Equal(t, want, Definition(pipelineURI, tree, pos(8, 23), ix), "cursor right after the name")
	assert.Empty(t, Definition(pipelineURI, tree, pos(7, 8), ix))
}

func TestDefinitionDanglingReference(t *testing.T) {
	ix := workspace(t)
	require.NoError(t, ix.RemoveDocument(taskURI))

	tree := parser.Parse(pipelineText)
	assert.Empty(t, Definition(pipelineURI, tree, pos(8, 16), ix))
	assert.Empty(t, Definition(pipelineURI, tree, pos(13, 16), ix))
}

func TestDefinitionRunAfter(t *testing.T) {
	tree := parser.Parse(pipelineText)
	got := Definition(pipelineURI, tree, pos(11, 12), workspace(t))
	assert.Equal(t, []Location{{URI: pipelineURI, Range: rng(6, 12, 6, 17)}}, got)
}

func TestReferences(t *testing.T) {
	ix := workspace(t)

	fromDecl := References(taskURI, parser.Parse(taskText), pos(3, 10), ix, true)
	assert.Equal(t, []Location{
		{URI: taskURI, Range: rng(3, 8, 3, 17)},
		{URI: pipelineURI, Range: rng(8, 14, 8, 23)},
	}, fromDecl)

	fromRef := References(pipelineURI, parser.Parse(pipelineText), pos(8, 16), ix, false)
	assert.Equal(t, []Location{{URI: pipelineURI, Range: rng(8, 14, 8, 23)}}, fromRef)

	assert.Empty(t, References(taskURI, parser.Parse(taskText), pos(1, 2), ix, true))
}

func TestHover(t *testing.T) {
	ix := workspace(t)
	tree := parser.Parse(pipelineText)

	h := HoverAt(pipelineURI, tree, pos(7, 8), ix)
	require.NotNil(t, h)
	assert.Contains(t, h.Contents, "**taskRef**")
	assert.Equal(t, rng(7, 6, 7, 13), h.Range)

	h = HoverAt(pipelineURI, tree, pos(1, 8), ix)
	require.NotNil(t, h)
	assert.Equal(t, schema.KindDocs[schema.KindPipeline], h.Contents)

	h = HoverAt(pipelineURI, tree, pos(8, 16), ix)
	require.NotNil(t, h)
	assert.Contains(t, h.Contents, "**Task** `git-clone`")
	assert.Contains(t, h.Contents, "/work/task.yaml")
	assert.Contains(t, h.Contents, "line 4")
	assert.Equal(t, rng(8, 14, 8, 23), h.Range)

	h = HoverAt(pipelineURI, tree, pos(13, 16), ix)
	require.NotNil(t, h)
	assert.Contains(t, h.Contents, "Not found in the workspace.")

	assert.Nil(t, HoverAt(pipelineURI, parser.Parse("custom: 1\n"), pos(0, 2), ix))
}

func TestCompleteSpecKeys(t *testing.T) {
	text := "apiVersion: tekton.dev/v1\nkind: Pipeline\nmetadata:\n  name: build\nspec:\n  \n  params:\n    - name: revision\n"
	items := Complete(parser.Parse(text), pos(5, 2), nil)
	got := labels(items)
	assert.Subset(t, got, []string{"tasks", "finally", "workspaces"})
	assert.NotContains(t, got, "params")
	assert.NotContains(t, got, "steps")

	for _, it := range items {
		if it.Label == "tasks" {
			assert.Equal(t, CompletionValue, it.Kind)
			assert.Equal(t, "array", it.Detail)
			assert.Equal(t, "tasks:\n  - $0", it.InsertText)
			assert.Contains(t, it.Documentation, "Tasks executed by the Pipeline.")
		}
	}
}

func TestCompleteTopLevel(t *testing.T) {
	items := Complete(parser.Parse("apiVersion: tekton.dev/v1\nkind: Task\n\n"), pos(2, 0), nil)
	got := labels(items)
	assert.Contains(t, got, "metadata")
	assert.Contains(t, got, "spec")
	assert.NotContains(t, got, "kind")

	for _, it := range items {
		if it.Label == "metadata" {
			assert.Equal(t, CompletionStruct, it.Kind)
			assert.Equal(t, "object (required)", it.Detail)
		}
	}
}

func TestCompleteValues(t *testing.T) {
	kinds := Complete(parser.Parse("apiVersion: tekton.dev/v1\nkind: Pi\n"), pos(1, 8), nil)
	assert.Equal(t, []string{"Pipeline", "PipelineRun"}, labels(kinds))

	text := `apiVersion: tekton.dev/v1
kind: Pipeline
metadata:
  name: build
spec:
  tasks:
    - name: fetch
      taskRef:
        kind:
`
	assert.Equal(t, []string{"Task", "ClusterTask"}, labels(Complete(parser.Parse(text), pos(8, 13), nil)))
}

func TestCompleteReferenceNames(t *testing.T) {
	ix := workspace(t)
	text := `apiVersion: tekton.dev/v1
kind: Pipeline
metadata:
  name: other
spec:
  tasks:
    - name: fetch
      taskRef:
        name: gi
`
	items := Complete(parser.Parse(text), pos(8, 16), ix)
	require.Len(t, items, 1)
	assert.Equal(t, "git-clone", items[0].Label)
	assert.Equal(t, CompletionReference, items[0].Kind)
	assert.Equal(t, "Task", items[0].Detail)

	run := "apiVersion: tekton.dev/v1\nkind: PipelineRun\nspec:\n  pipelineRef:\n    name: \n"
	assert.Equal(t, []string{"build"}, labels(Complete(parser.Parse(run), pos(4, 10), ix)))
}

func TestDocumentSymbols(t *testing.T) {
	syms := DocumentSymbols(parser.Parse(pipelineText + "---\n" + taskText))
	require.Len(t, syms, 2)

	p := syms[0]
	assert.Equal(t, "Pipeline: build", p.Name)
	assert.Equal(t, "tekton.dev/v1", p.Detail)
	assert.Equal(t, SymbolClass, p.Kind)
	require.Len(t, p.Children, 2)
	assert.Equal(t, "metadata", p.Children[0].Name)
	assert.Equal(t, SymbolNamespace, p.Children[0].Kind)

	spec := p.Children[1]
	assert.Equal(t, SymbolModule, spec.Kind)
	require.Len(t, spec.Children, 1)
	tasks := spec.Children[0]
	assert.Equal(t, "tasks (2)", tasks.Name)
	assert.Equal(t, SymbolArray, tasks.Kind)
	require.Len(t, tasks.Children, 2)
	assert.Equal(t, "fetch", tasks.Children[0].Name)
	assert.Equal(t, SymbolVariable, tasks.Children[0].Kind)
	require.Len(t, tasks.Children[0].Children, 1)
	assert.Equal(t, "taskRef: git-clone", tasks.Children[0].Children[0].Name)
	assert.Equal(t, SymbolProperty, tasks.Children[0].Children[0].Kind)

	task := syms[1]
	assert.Equal(t, "Task: git-clone", task.Name)
	steps := task.Children[1].Children[0]
	assert.Equal(t, "steps (1)", steps.Name)
	assert.Equal(t, SymbolFunction, steps.Children[0].Kind)
	assert.Equal(t, "clone", steps.Children[0].Name)

	for _, s := range syms {
		assert.True(t, s.Range.ContainsRange(s.SelectionRange))
	}
}

func TestDocumentSymbolsRunRef(t *testing.T) {
	syms := DocumentSymbols(parser.Parse("apiVersion: tekton.dev/v1\nkind: PipelineRun\nmetadata:\n  generateName: build-\nspec:\n  pipelineRef:\n    name: build\n"))
	require.Len(t, syms, 1)
	assert.Equal(t, "PipelineRun: build-", syms[0].Name)
	ref := syms[0].Children[1].Children[0]
	assert.Equal(t, "pipelineRef: build", ref.Name)
	assert.Equal(t, "Pipeline", ref.Detail)
	assert.Equal(t, SymbolProperty, ref.Kind)
}

func TestFormat(t *testing.T) {
	text := "apiVersion: tekton.dev/v1\nkind: Task\nmetadata:\n    name: x\n"
	edits := Format(parser.Parse(text))
	require.Len(t, edits, 1)
	assert.Equal(t, rng(0, 0, 4, 0), edits[0].Range)
	assert.Equal(t, "apiVersion: tekton.dev/v1\nkind: Task\nmetadata:\n  name: x\n", apply(t, text, edits))

	assert.Empty(t, Format(parser.Parse(taskText)))
	assert.Empty(t, Format(parser.Parse("a: [1\n")))
}

func actionsFor(t *testing.T, text string, tag validator.Tag) (*parser.Tree, []CodeAction) {
	t.Helper()
	tree := parser.Parse(text)
	var diags []validator.Diagnostic
	for _, d := range validator.NewValidator(nil).ValidateTree(tree) {
		if d.Tag == tag {
			diags = append(diags, d)
		}
	}
	require.NotEmpty(t, diags, "no %s diagnostic", tag)
	return tree, CodeActions(tree, diags)
}

func TestCodeActionMutuallyExclusive(t *testing.T) {
	text := `apiVersion: tekton.dev/v1
kind: Pipeline
metadata:
  name: build
spec:
  tasks:
    - name: compile
      taskRef:
        name: go-build
      taskSpec:
        steps:
          - image: golang
`
	_, actions := actionsFor(t, text, validator.TagMutuallyExclusiveFields)
	require.Len(t, actions, 2)
	assert.Equal(t, "Remove 'taskRef'", actions[0].Title)
	assert.Equal(t, "Remove 'taskSpec'", actions[1].Title)

	fixed := apply(t, text, actions[0].Edits)
	assert.NotContains(t, fixed, "taskRef")
	assert.Contains(t, fixed, "      taskSpec:\n")
	for _, d := range validator.NewValidator(nil).ValidateTree(parser.Parse(fixed)) {
		assert.NotEqual(t, validator.TagMutuallyExclusiveFields, d.Tag)
	}

	fixed = apply(t, text, actions[1].Edits)
	assert.NotContains(t, fixed, "taskSpec")
	assert.True(t, strings.HasSuffix(fixed, "        name: go-build\n"))
}

func TestCodeActionMissingField(t *testing.T) {
	text := "apiVersion: tekton.dev/v1\nkind: Task\nmetadata:\n  namespace: ci\nspec:\n  steps:\n    - image: alpine\n"
	_, actions := actionsFor(t, text, validator.TagMissingRequiredField)
	require.Len(t, actions, 1)
	assert.Equal(t, "Add missing field 'name'", actions[0].Title)
	assert.True(t, actions[0].Preferred)
	assert.Contains(t, apply(t, text, actions[0].Edits), "metadata:\n  namespace: ci\n  name: \nspec:\n")
}

func TestCodeActionMissingSpecAtEnd(t *testing.T) {
	text := "apiVersion: tekton.dev/v1\nkind: Task\nmetadata:\n  name: t"
	_, actions := actionsFor(t, text, validator.TagMissingRequiredField)
	require.Len(t, actions, 1)
	assert.Equal(t, text+"\nspec:\n  steps:\n    - name: \n      image: ", apply(t, text, actions[0].Edits))
}

func TestCodeActionUnknownField(t *testing.T) {
	text := "apiVersion: tekton.dev/v1\nkind: Task\nmetadata:\n  name: t\n  colour: red\nspec:\n  steps:\n    - flavour: mint\n      image: alpine\n"
	_, actions := actionsFor(t, text, validator.TagUnknownField)
	require.Len(t, actions, 2)
	assert.Equal(t, "Remove unknown field 'colour'", actions[0].Title)
	assert.NotContains(t, apply(t, text, actions[0].Edits), "colour")

	fixed := apply(t, text, actions[1].Edits)
	assert.Contains(t, fixed, "  steps:\n    - image: alpine\n")
	assert.NotContains(t, fixed, "flavour")
}

func TestCodeActionFlowMapping(t *testing.T) {
	text := `apiVersion: tekton.dev/v1
kind: Pipeline
metadata:
  name: build
spec:
  tasks:
    - {name: compile, taskRef: {name: go-build}, taskSpec: {steps: [{image: golang}]}}
`
	_, actions := actionsFor(t, text, validator.TagMutuallyExclusiveFields)
	require.Len(t, actions, 2)

	fixed := apply(t, text, actions[0].Edits)
	assert.Contains(t, fixed, "    - {name: compile, taskSpec: {steps: [{image: golang}]}}\n")
	for _, d := range validator.NewValidator(nil).ValidateTree(parser.Parse(fixed)) {
		assert.NotEqual(t, validator.TagMutuallyExclusiveFields, d.Tag)
	}

	fixed = apply(t, text, actions[1].Edits)
	assert.Contains(t, fixed, "    - {name: compile, taskRef: {name: go-build}}\n")

	text = "apiVersion: tekton.dev/v1\nkind: Task\nmetadata: {name: t, colour: red}\nspec:\n  steps:\n    - image: alpine\n"
	_, actions = actionsFor(t, text, validator.TagUnknownField)
	require.Len(t, actions, 1)
	assert.Contains(t, apply(t, text, actions[0].Edits), "metadata: {name: t}\n")
}
