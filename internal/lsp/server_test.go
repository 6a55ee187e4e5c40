package lsp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tektoncd/tekton-lsp/internal/metrics"
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
`

type testClient struct {
	t       *testing.T
	conn    jsonrpc2.Conn
	diags   chan protocol.PublishDiagnosticsParams
	served  chan error
	metrics *metrics.Metrics
}

// startServer connects a client to a fresh server over an in-memory pipe.
func startServer(t *testing.T) *testClient {
	t.Helper()
	return startServerWithLogger(t, zap.NewNop())
}

func startServerWithLogger(t *testing.T, logger *zap.Logger) *testClient {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	m := metrics.New()
	s := NewServer(logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	tc := &testClient{
		t:       t,
		diags:   make(chan protocol.PublishDiagnosticsParams, 64),
		served:  make(chan error, 1),
		metrics: m,
	}
	go func() { tc.served <- s.Serve(ctx, jsonrpc2.NewStream(serverSide)) }()

	tc.conn = jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
	tc.conn.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		if req.Method() == protocol.MethodTextDocumentPublishDiagnostics {
			var p protocol.PublishDiagnosticsParams
			if err := json.Unmarshal(req.Params(), &p); err == nil {
				tc.diags <- p
			}
		}
		return reply(ctx, nil, nil)
	})
	t.Cleanup(func() {
		_ = tc.conn.Close()
		cancel()
		select {
		case <-tc.served:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return tc
}

func (c *testClient) call(method string, params, result interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.conn.Call(ctx, method, params, result)
	return err
}

func (c *testClient) notify(method string, params interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.Notify(context.Background(), method, params))
}

func (c *testClient) initialize(opts interface{}) *protocol.InitializeResult {
	c.t.Helper()
	var result protocol.InitializeResult
	require.NoError(c.t, c.call(protocol.MethodInitialize, &protocol.InitializeParams{
		InitializationOptions: opts,
	}, &result))
	c.notify(protocol.MethodInitialized, &protocol.InitializedParams{})
	return &result
}

func (c *testClient) open(u, text string) protocol.PublishDiagnosticsParams {
	c.t.Helper()
	c.notify(protocol.MethodTextDocumentDidOpen, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri.URI(u), LanguageID: "yaml", Version: 1, Text: text},
	})
	return c.waitDiagnostics()
}

func (c *testClient) waitDiagnostics() protocol.PublishDiagnosticsParams {
	c.t.Helper()
	select {
	case p := <-c.diags:
		return p
	case <-time.After(5 * time.Second):
		c.t.Fatal("no diagnostics published")
		return protocol.PublishDiagnosticsParams{}
	}
}

func codes(diags []protocol.Diagnostic) []interface{} {
	var out []interface{}
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func rpcCode(err error) jsonrpc2.Code {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}

func TestInitialize(t *testing.T) {
	c := startServer(t)

	err := c.call(protocol.MethodTextDocumentHover, &protocol.HoverParams{}, nil)
	assert.Equal(t, jsonrpc2.ServerNotInitialized, rpcCode(err))

	result := c.initialize(nil)
	require.NotNil(t, result.ServerInfo)
	assert.Equal(t, "tekton-lsp", result.ServerInfo.Name)
	assert.Equal(t, true, result.Capabilities.HoverProvider)
	assert.Equal(t, true, result.Capabilities.DocumentFormattingProvider)

	sync, ok := result.Capabilities.TextDocumentSync.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, sync["openClose"])
	assert.EqualValues(t, protocol.TextDocumentSyncKindIncremental, sync["change"])
}

func TestInitializationOptions(t *testing.T) {
	c := startServer(t)
	result := c.initialize(map[string]interface{}{"format": map[string]interface{}{"enabled": false}})
	assert.Equal(t, false, result.Capabilities.DocumentFormattingProvider)

	c2 := startServer(t)
	var res protocol.InitializeResult
	err := c2.call(protocol.MethodInitialize, &protocol.InitializeParams{
		InitializationOptions: map[string]interface{}{"index": map[string]interface{}{"backend": "redis"}},
	}, &res)
	assert.Equal(t, jsonrpc2.InvalidParams, rpcCode(err))
}

func TestDiagnosticsLifecycle(t *testing.T) {
	c := startServer(t)
	c.initialize(nil)

	text := "apiVersion: tekton.dev/v1\nkind: Pipeline\nmetadata:\n  namespace: default\nspec:\n  tasks: []\n"
	p := c.open(pipelineURI, text)
	assert.Equal(t, uri.URI(pipelineURI), p.URI)
	assert.EqualValues(t, 1, p.Version)
	assert.Equal(t, []interface{}{"missing-required-field", "empty-required-collection"}, codes(p.Diagnostics))
	for _, d := range p.Diagnostics {
		assert.Equal(t, "tekton-lsp", d.Source)
		assert.Equal(t, protocol.DiagnosticSeverityError, d.Severity)
	}

	c.notify(protocol.MethodTextDocumentDidChange, &didChangeParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: pipelineURI}, Version: 2},
		ContentChanges: []contentChange{{Text: pipelineText}},
	})
	p = c.waitDiagnostics()
	assert.EqualValues(t, 2, p.Version)
	assert.NotNil(t, p.Diagnostics)
	assert.Empty(t, p.Diagnostics)

	// A change older than the document is dropped without publishing.
	c.notify(protocol.MethodTextDocumentDidChange, &didChangeParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: pipelineURI}, Version: 2},
		ContentChanges: []contentChange{{Text: text}},
	})
	var symbols []protocol.DocumentSymbol
	require.NoError(t, c.call(protocol.MethodTextDocumentDocumentSymbol, &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: pipelineURI},
	}, &symbols))
	require.Len(t, symbols, 1)
	assert.Equal(t, "Pipeline: build", symbols[0].Name)
	assert.Empty(t, c.diags)

	c.notify(protocol.MethodTextDocumentDidClose, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: pipelineURI},
	})
	p = c.waitDiagnostics()
	assert.Empty(t, p.Diagnostics)
}

func TestIncrementalChange(t *testing.T) {
	c := startServer(t)
	c.initialize(nil)
	c.open(taskURI, taskText)
	c.open(pipelineURI, pipelineText)

	// Rename the task; the pipeline's reference now dangles.
	c.notify(protocol.MethodTextDocumentDidChange, &didChangeParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: taskURI}, Version: 2},
		ContentChanges: []contentChange{{
			Range: &protocol.Range{Start: protocol.Position{Line: 3, Character: 8}, End: protocol.Position{Line: 3, Character: 17}},
			Text:  "checkout",
		}},
	})
	c.waitDiagnostics()

	var locs []protocol.Location
	require.NoError(t, c.call(protocol.MethodTextDocumentDefinition, &protocol.DefinitionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: pipelineURI},
			Position:     protocol.Position{Line: 8, Character: 16},
		},
	}, &locs))
	assert.Empty(t, locs)

	// An out-of-range edit leaves the document as it was.
	c.notify(protocol.MethodTextDocumentDidChange, &didChangeParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: taskURI}, Version: 3},
		ContentChanges: []contentChange{{
			Range: &protocol.Range{Start: protocol.Position{Line: 30}, End: protocol.Position{Line: 30, Character: 2}},
			Text:  "x",
		}},
	})
	var symbols []protocol.DocumentSymbol
	require.NoError(t, c.call(protocol.MethodTextDocumentDocumentSymbol, &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: taskURI},
	}, &symbols))
	require.Len(t, symbols, 1)
	assert.Equal(t, "Task: checkout", symbols[0].Name)
}

func TestNavigation(t *testing.T) {
	c := startServer(t)
	c.initialize(nil)
	c.open(taskURI, taskText)
	c.open(pipelineURI, pipelineText)

	at := protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: pipelineURI},
		Position:     protocol.Position{Line: 8, Character: 16},
	}

	var locs []protocol.Location
	require.NoError(t, c.call(protocol.MethodTextDocumentDefinition, &protocol.DefinitionParams{TextDocumentPositionParams: at}, &locs))
	require.Len(t, locs, 1)
	assert.Equal(t, protocol.Location{
		URI: taskURI,
		Range: protocol.Range{
			Start: protocol.Position{Line: 3, Character: 8},
			End:   protocol.Position{Line: 3, Character: 17},
		},
	}, locs[0])

	var refs []protocol.Location
	require.NoError(t, c.call(protocol.MethodTextDocumentReferences, &protocol.ReferenceParams{
		TextDocumentPositionParams: at,
		Context:                    protocol.ReferenceContext{IncludeDeclaration: false},
	}, &refs))
	require.Len(t, refs, 1)
	assert.Equal(t, uri.URI(pipelineURI), refs[0].URI)

	var hover protocol.Hover
	require.NoError(t, c.call(protocol.MethodTextDocumentHover, &protocol.HoverParams{TextDocumentPositionParams: at}, &hover))
	assert.Equal(t, protocol.Markdown, hover.Contents.Kind)
	assert.Contains(t, hover.Contents.Value, "git-clone")
	require.NotNil(t, hover.Range)
	assert.EqualValues(t, 14, hover.Range.Start.Character)
}

func TestFormattingAndQuickFix(t *testing.T) {
	c := startServer(t)
	c.initialize(nil)
	text := "apiVersion: tekton.dev/v1\nkind: Task\nmetadata:\n    name: t\n    colour: red\nspec:\n    steps:\n    - image: alpine\n"
	p := c.open(taskURI, text)
	require.Equal(t, []interface{}{"unknown-field"}, codes(p.Diagnostics))

	var edits []protocol.TextEdit
	require.NoError(t, c.call(protocol.MethodTextDocumentFormatting, &protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: taskURI},
	}, &edits))
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0].NewText, "metadata:\n  name: t\n")

	var actions []protocol.CodeAction
	require.NoError(t, c.call(protocol.MethodTextDocumentCodeAction, &protocol.CodeActionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: taskURI},
		Range:        p.Diagnostics[0].Range,
		Context:      protocol.CodeActionContext{Diagnostics: p.Diagnostics},
	}, &actions))
	require.Len(t, actions, 1)
	assert.Equal(t, "Remove unknown field 'colour'", actions[0].Title)
	assert.Equal(t, protocol.QuickFix, actions[0].Kind)
	assert.True(t, actions[0].IsPreferred)
	require.NotNil(t, actions[0].Edit)
	assert.Len(t, actions[0].Edit.Changes[uri.URI(taskURI)], 1)
}

func TestErrors(t *testing.T) {
	c := startServer(t)
	c.initialize(nil)

	err := c.call(protocol.MethodTextDocumentHover, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: "file:///missing.yaml"},
		},
	}, nil)
	assert.Equal(t, jsonrpc2.InvalidParams, rpcCode(err))

	err = c.call("textDocument/rename", map[string]interface{}{}, nil)
	assert.Equal(t, jsonrpc2.MethodNotFound, rpcCode(err))

	err = c.call(protocol.MethodTextDocumentHover, []int{1, 2}, nil)
	assert.Equal(t, jsonrpc2.InvalidParams, rpcCode(err))

	// $/ notifications are ignored.
	c.notify("$/cancelRequest", map[string]interface{}{"id": 1})
	c.open(taskURI, taskText)
}

func TestShutdownAndExit(t *testing.T) {
	c := startServer(t)
	c.initialize(nil)
	require.NoError(t, c.call(protocol.MethodShutdown, nil, nil))

	err := c.call(protocol.MethodTextDocumentHover, &protocol.HoverParams{}, nil)
	assert.Equal(t, jsonrpc2.InvalidRequest, rpcCode(err))

	c.notify(protocol.MethodExit, nil)
	select {
	case err := <-c.served:
		assert.NoError(t, err)
		c.served <- nil
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit")
	}
}

func TestRequestMetrics(t *testing.T) {
	c := startServer(t)
	c.initialize(nil)
	c.open(taskURI, taskText)

	var hover protocol.Hover
	require.NoError(t, c.call(protocol.MethodTextDocumentHover, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: taskURI},
			Position:     protocol.Position{Line: 1, Character: 1},
		},
	}, &hover))

	count := func(method, status string) float64 {
		return testutil.ToFloat64(c.metrics.Requests.WithLabelValues(method, status))
	}
	assert.Equal(t, 1.0, count(protocol.MethodInitialize, "ok"))
	assert.Equal(t, 1.0, count(protocol.MethodTextDocumentHover, "ok"))
}

func TestOutOfOrderChangeIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := startServerWithLogger(t, zap.New(core))
	c.initialize(nil)
	c.open(taskURI, taskText)

	c.notify(protocol.MethodTextDocumentDidChange, &didChangeParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: taskURI}, Version: 1},
		ContentChanges: []contentChange{{Text: ""}},
	})
	// A call after the notification guarantees it was handled.
	var symbols []protocol.DocumentSymbol
	require.NoError(t, c.call(protocol.MethodTextDocumentDocumentSymbol, &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: taskURI},
	}, &symbols))
	require.Len(t, symbols, 1)

	entries := logs.FilterMessage("dropping out-of-order change").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int32(1), entries[0].ContextMap()["version"])
}
