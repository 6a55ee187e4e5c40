package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/tektoncd/tekton-lsp/internal/features"
	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/validator"
)

func TestToChanges(t *testing.T) {
	changes := toChanges([]contentChange{
		{Text: "full"},
		{Range: &protocol.Range{Start: protocol.Position{Line: 0, Character: 0}, End: protocol.Position{Line: 0, Character: 0}}, Text: "x"},
	})
	require.Len(t, changes, 2)
	assert.Nil(t, changes[0].Range)
	require.NotNil(t, changes[1].Range)
	assert.True(t, changes[1].Range.IsEmpty())
}

func TestToDiagnostic(t *testing.T) {
	d := toDiagnostic(validator.Diagnostic{
		Range:    parser.Range{Start: parser.Position{Line: 6, Character: 6}, End: parser.Position{Line: 6, Character: 13}},
		Severity: validator.SeverityWarning,
		Message:  "unknown field \"colour\"",
		Tag:      validator.TagUnknownField,
		Fields:   []string{"colour"},
	})
	assert.Equal(t, "unknown-field", d.Code)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, d.Severity)
	assert.Equal(t, source, d.Source)
	assert.Equal(t, uint32(6), d.Range.Start.Line)
	data, ok := d.Data.(diagnosticData)
	require.True(t, ok)
	assert.Equal(t, []string{"colour"}, data.Fields)

	assert.NotNil(t, toDiagnostics(nil))
}

func TestToCompletionList(t *testing.T) {
	list := toCompletionList([]features.CompletionItem{
		{Label: "steps", Kind: features.CompletionField, InsertText: "steps:\n  - $0", Snippet: true, Documentation: "The steps."},
		{Label: "Task", Kind: features.CompletionEnum},
	})
	require.Len(t, list.Items, 2)
	assert.Equal(t, protocol.InsertTextFormatSnippet, list.Items[0].InsertTextFormat)
	assert.Equal(t, protocol.CompletionItemKindField, list.Items[0].Kind)
	assert.Equal(t, protocol.MarkupContent{Kind: protocol.Markdown, Value: "The steps."}, list.Items[0].Documentation)
	assert.Equal(t, protocol.InsertTextFormatPlainText, list.Items[1].InsertTextFormat)
	assert.Nil(t, list.Items[1].Documentation)
}

func TestToDocumentSymbols(t *testing.T) {
	assert.Nil(t, toDocumentSymbols(nil))
	out := toDocumentSymbols([]features.Symbol{{
		Name:     "Pipeline: build",
		Kind:     features.SymbolClass,
		Children: []features.Symbol{{Name: "fetch", Kind: features.SymbolFunction}},
	}})
	require.Len(t, out, 1)
	assert.Equal(t, protocol.SymbolKindClass, out[0].Kind)
	require.Len(t, out[0].Children, 1)
	assert.Equal(t, protocol.SymbolKindFunction, out[0].Children[0].Kind)
}

func TestToCodeActions(t *testing.T) {
	edit := features.TextEdit{Range: parser.Range{Start: parser.Position{Line: 4}, End: parser.Position{Line: 5}}}
	actions := toCodeActions(taskURI, []features.CodeAction{{
		Title:      "Remove \"colour\"",
		Diagnostic: validator.Diagnostic{Tag: validator.TagUnknownField},
		Edits:      []features.TextEdit{edit},
		Preferred:  true,
	}})
	require.Len(t, actions, 1)
	assert.Equal(t, protocol.QuickFix, actions[0].Kind)
	assert.True(t, actions[0].IsPreferred)
	require.NotNil(t, actions[0].Edit)
	edits := actions[0].Edit.Changes[uri.URI(taskURI)]
	require.Len(t, edits, 1)
	assert.Equal(t, uint32(4), edits[0].Range.Start.Line)
	assert.Equal(t, "", edits[0].NewText)
}
