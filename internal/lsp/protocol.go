package lsp

import (
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/tektoncd/tekton-lsp/internal/features"
	"github.com/tektoncd/tekton-lsp/internal/lsp/cache"
	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/validator"
)

const source = "tekton-lsp"

// didChangeParams mirrors the protocol type with an optional range, which
// tells a full-text change apart from an edit at the start of the document.
type didChangeParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChange                          `json:"contentChanges"`
}

type contentChange struct {
	Range *protocol.Range `json:"range,omitempty"`
	Text  string          `json:"text"`
}

// diagnosticData travels with each diagnostic so that quick fixes can be
// matched to the mapping they edit.
type diagnosticData struct {
	Fields []string       `json:"fields,omitempty"`
	Parent protocol.Range `json:"parent"`
}

func toPosition(p parser.Position) protocol.Position {
	return protocol.Position{Line: uint32(p.Line), Character: uint32(p.Character)}
}

func fromPosition(p protocol.Position) parser.Position {
	return parser.Position{Line: int(p.Line), Character: int(p.Character)}
}

func toRange(r parser.Range) protocol.Range {
	return protocol.Range{Start: toPosition(r.Start), End: toPosition(r.End)}
}

func fromRange(r protocol.Range) parser.Range {
	return parser.Range{Start: fromPosition(r.Start), End: fromPosition(r.End)}
}

func toChanges(in []contentChange) []cache.Change {
	out := make([]cache.Change, len(in))
	for i, c := range in {
		out[i].Text = c.Text
		if c.Range != nil {
			r := fromRange(*c.Range)
			out[i].Range = &r
		}
	}
	return out
}

func toSeverity(s validator.Severity) protocol.DiagnosticSeverity {
	switch s {
	case validator.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case validator.SeverityInformation:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityError
	}
}

// toDiagnostics never returns nil: an empty list clears the client's view.
func toDiagnostics(diags []validator.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, toDiagnostic(d))
	}
	return out
}

func toDiagnostic(d validator.Diagnostic) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    toRange(d.Range),
		Severity: toSeverity(d.Severity),
		Code:     string(d.Tag),
		Source:   source,
		Message:  d.Message,
		Data:     diagnosticData{Fields: d.Fields, Parent: toRange(d.Parent)},
	}
}

func toLocations(locs []features.Location) []protocol.Location {
	out := make([]protocol.Location, 0, len(locs))
	for _, l := range locs {
		out = append(out, protocol.Location{URI: uri.URI(l.URI), Range: toRange(l.Range)})
	}
	return out
}

var completionKinds = map[features.CompletionKind]protocol.CompletionItemKind{
	features.CompletionField:     protocol.CompletionItemKindField,
	features.CompletionValue:     protocol.CompletionItemKindValue,
	features.CompletionStruct:    protocol.CompletionItemKindStruct,
	features.CompletionEnum:      protocol.CompletionItemKindEnum,
	features.CompletionReference: protocol.CompletionItemKindReference,
}

func toCompletionList(items []features.CompletionItem) *protocol.CompletionList {
	list := &protocol.CompletionList{Items: make([]protocol.CompletionItem, 0, len(items))}
	for _, it := range items {
		ci := protocol.CompletionItem{
			Label:            it.Label,
			Kind:             completionKinds[it.Kind],
			Detail:           it.Detail,
			InsertText:       it.InsertText,
			InsertTextFormat: protocol.InsertTextFormatPlainText,
			SortText:         it.SortText,
		}
		if it.Snippet {
			ci.InsertTextFormat = protocol.InsertTextFormatSnippet
		}
		if it.Documentation != "" {
			ci.Documentation = protocol.MarkupContent{Kind: protocol.Markdown, Value: it.Documentation}
		}
		list.Items = append(list.Items, ci)
	}
	return list
}

func toHover(h *features.Hover) *protocol.Hover {
	if h == nil {
		return nil
	}
	rng := toRange(h.Range)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.Markdown, Value: h.Contents},
		Range:    &rng,
	}
}

func toDocumentSymbols(symbols []features.Symbol) []protocol.DocumentSymbol {
	if len(symbols) == 0 {
		return nil
	}
	out := make([]protocol.DocumentSymbol, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, protocol.DocumentSymbol{
			Name:           s.Name,
			Detail:         s.Detail,
			Kind:           protocol.SymbolKind(s.Kind),
			Range:          toRange(s.Range),
			SelectionRange: toRange(s.SelectionRange),
			Children:       toDocumentSymbols(s.Children),
		})
	}
	return out
}

func toTextEdits(edits []features.TextEdit) []protocol.TextEdit {
	out := make([]protocol.TextEdit, 0, len(edits))
	for _, e := range edits {
		out = append(out, protocol.TextEdit{Range: toRange(e.Range), NewText: e.NewText})
	}
	return out
}

func toCodeActions(docURI string, actions []features.CodeAction) []protocol.CodeAction {
	out := make([]protocol.CodeAction, 0, len(actions))
	for _, a := range actions {
		out = append(out, protocol.CodeAction{
			Title:       a.Title,
			Kind:        protocol.QuickFix,
			Diagnostics: []protocol.Diagnostic{toDiagnostic(a.Diagnostic)},
			IsPreferred: a.Preferred,
			Edit: &protocol.WorkspaceEdit{
				Changes: map[uri.URI][]protocol.TextEdit{
					uri.URI(docURI): toTextEdits(a.Edits),
				},
			},
		})
	}
	return out
}
