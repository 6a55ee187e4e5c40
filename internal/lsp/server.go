package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/tektoncd/tekton-lsp/internal/config"
	"github.com/tektoncd/tekton-lsp/internal/index"
	"github.com/tektoncd/tekton-lsp/internal/lsp/cache"
	"github.com/tektoncd/tekton-lsp/internal/metrics"
	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/validator"
	"github.com/tektoncd/tekton-lsp/internal/workspace"
)

// Version is reported to the client in the initialize result.
var Version = "dev"

var errNotInitialized = jsonrpc2.NewError(jsonrpc2.ServerNotInitialized, "server not initialized")

// Server answers one client over one JSON-RPC connection. Messages are
// handled in arrival order.
type Server struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	ctx        context.Context
	conn       jsonrpc2.Conn
	client     protocol.Client
	ws         *workspace.Workspace
	visualizer *Visualizer
	shutdown   bool
	exited     bool
}

func NewServer(logger *zap.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{logger: logger, metrics: m}
}

// Serve runs until the client exits or the stream is closed.
func (s *Server) Serve(ctx context.Context, stream jsonrpc2.Stream) error {
	conn := jsonrpc2.NewConn(stream)
	s.mu.Lock()
	s.ctx = ctx
	s.conn = conn
	s.client = protocol.ClientDispatcher(conn, s.logger.Named("client"))
	s.mu.Unlock()

	conn.Go(ctx, s.Handler())
	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Close()
		<-conn.Done()
	}
	s.teardown()

	s.mu.Lock()
	exited := s.exited
	s.mu.Unlock()
	if err := conn.Err(); err != nil && !exited && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		return err
	}
	return nil
}

func (s *Server) teardown() {
	s.mu.Lock()
	ws, vis := s.ws, s.visualizer
	s.ws, s.visualizer = nil, nil
	s.mu.Unlock()
	if vis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := vis.Shutdown(ctx); err != nil {
			s.logger.Warn("debug server shutdown", zap.Error(err))
		}
	}
	if ws != nil {
		if err := ws.Close(); err != nil {
			s.logger.Warn("failed to close index", zap.Error(err))
		}
	}
}

// Handler replies to every call. Failures of notifications are logged,
// never returned, so that one bad message does not end the session.
func (s *Server) Handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		start := time.Now()
		result, err := s.handle(ctx, req)
		s.metrics.ObserveRequest(req.Method(), start, err)
		if _, isCall := req.(*jsonrpc2.Call); !isCall {
			if err != nil {
				s.logger.Warn("notification failed", zap.String("method", req.Method()), zap.Error(err))
			}
			return nil
		}
		if err != nil {
			s.logger.Debug("request failed", zap.String("method", req.Method()), zap.Error(err))
		}
		return reply(ctx, result, replyError(err))
	}
}

// replyError maps sentinel errors onto JSON-RPC error codes.
func replyError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc2.Error
	switch {
	case errors.Is(err, cache.ErrNotFound), errors.Is(err, cache.ErrOutOfRange), errors.Is(err, cache.ErrAlreadyOpen):
		return jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
	case errors.As(err, &rpcErr):
		return jsonrpc2.NewError(rpcErr.Code, err.Error())
	default:
		return jsonrpc2.NewError(jsonrpc2.InternalError, err.Error())
	}
}

func decode(req jsonrpc2.Request, v interface{}) error {
	if err := json.Unmarshal(req.Params(), v); err != nil {
		return fmt.Errorf("%s: %w: %v", req.Method(), jsonrpc2.ErrInvalidParams, err)
	}
	return nil
}

func (s *Server) workspace() *workspace.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws
}

func (s *Server) handle(ctx context.Context, req jsonrpc2.Request) (interface{}, error) {
	switch req.Method() {
	case protocol.MethodInitialize:
		var params protocol.InitializeParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		return s.initialize(params)
	case protocol.MethodExit:
		s.mu.Lock()
		s.exited = true
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return nil, nil
		}
		return nil, conn.Close()
	}

	ws := s.workspace()
	if ws == nil {
		return nil, errNotInitialized
	}
	s.mu.Lock()
	shutdown := s.shutdown
	s.mu.Unlock()
	if shutdown {
		return nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "server is shutting down")
	}

	switch req.Method() {
	case protocol.MethodInitialized:
		s.initialized(ws)
		return nil, nil
	case protocol.MethodShutdown:
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		return nil, nil

	case protocol.MethodTextDocumentDidOpen:
		var params protocol.DidOpenTextDocumentParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		doc := params.TextDocument
		diags, err := ws.OpenDocument(string(doc.URI), string(doc.LanguageID), doc.Version, doc.Text)
		if err != nil {
			return nil, err
		}
		return nil, s.publish(ctx, string(doc.URI), doc.Version, diags)

	case protocol.MethodTextDocumentDidChange:
		var params didChangeParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		return nil, s.didChange(ctx, ws, params)

	case protocol.MethodTextDocumentDidClose:
		var params protocol.DidCloseTextDocumentParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		u := string(params.TextDocument.URI)
		if err := ws.CloseDocument(u); err != nil {
			return nil, err
		}
		return nil, s.publish(ctx, u, 0, nil)

	case protocol.MethodTextDocumentDidSave:
		return nil, nil

	case protocol.MethodTextDocumentCompletion:
		var params protocol.CompletionParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		items, err := ws.Complete(string(params.TextDocument.URI), fromPosition(params.Position))
		if err != nil {
			return nil, err
		}
		return toCompletionList(items), nil

	case protocol.MethodTextDocumentHover:
		var params protocol.HoverParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		u, pos := string(params.TextDocument.URI), fromPosition(params.Position)
		h, err := ws.Hover(u, pos)
		if err != nil {
			return nil, err
		}
		s.focus(ws, u, pos)
		return toHover(h), nil

	case protocol.MethodTextDocumentDefinition:
		var params protocol.DefinitionParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		u, pos := string(params.TextDocument.URI), fromPosition(params.Position)
		locs, err := ws.Definition(u, pos)
		if err != nil {
			return nil, err
		}
		s.focus(ws, u, pos)
		return toLocations(locs), nil

	case protocol.MethodTextDocumentReferences:
		var params protocol.ReferenceParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		locs, err := ws.References(string(params.TextDocument.URI), fromPosition(params.Position), params.Context.IncludeDeclaration)
		if err != nil {
			return nil, err
		}
		return toLocations(locs), nil

	case protocol.MethodTextDocumentDocumentSymbol:
		var params protocol.DocumentSymbolParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		symbols, err := ws.DocumentSymbols(string(params.TextDocument.URI))
		if err != nil {
			return nil, err
		}
		return toDocumentSymbols(symbols), nil

	case protocol.MethodTextDocumentFormatting:
		var params protocol.DocumentFormattingParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		edits, err := ws.Format(string(params.TextDocument.URI))
		if err != nil {
			return nil, err
		}
		return toTextEdits(edits), nil

	case protocol.MethodTextDocumentCodeAction:
		var params protocol.CodeActionParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		u := string(params.TextDocument.URI)
		diags, err := ws.DiagnosticsIn(u, fromRange(params.Range))
		if err != nil {
			return nil, err
		}
		actions, err := ws.CodeActions(u, diags)
		if err != nil {
			return nil, err
		}
		return toCodeActions(u, actions), nil
	}

	if strings.HasPrefix(req.Method(), "$/") {
		return nil, nil
	}
	return nil, fmt.Errorf("%q: %w", req.Method(), jsonrpc2.ErrMethodNotFound)
}

func (s *Server) initialize(params protocol.InitializeParams) (*protocol.InitializeResult, error) {
	root := rootOf(params)
	cfg, err := config.Load(root)
	if err != nil {
		s.logger.Warn("ignoring project configuration", zap.Error(err))
		cfg = config.Default()
	}
	if err := cfg.Overlay(params.InitializationOptions); err != nil {
		return nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
	}

	ws, err := workspace.New(workspace.Options{
		Root:    root,
		Config:  cfg,
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	old := s.ws
	s.ws = ws
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	if cfg.Debug.Addr != "" {
		vis := NewVisualizer(ws.Index(), s.metrics, s.logger.Named("debug"))
		if err := vis.Start(cfg.Debug.Addr); err != nil {
			s.logger.Warn("debug server not started", zap.String("addr", cfg.Debug.Addr), zap.Error(err))
		} else {
			s.mu.Lock()
			s.visualizer = vis
			s.mu.Unlock()
		}
	}

	s.logger.Info("initialized", zap.String("root", root), zap.String("index", cfg.Index.Backend))
	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindIncremental,
			},
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{":", " "},
			},
			HoverProvider:              true,
			DefinitionProvider:         true,
			ReferencesProvider:         true,
			DocumentSymbolProvider:     true,
			DocumentFormattingProvider: cfg.Format.Enabled,
			CodeActionProvider: protocol.CodeActionOptions{
				CodeActionKinds: []protocol.CodeActionKind{protocol.QuickFix},
			},
		},
		ServerInfo: &protocol.ServerInfo{Name: source, Version: Version},
	}, nil
}

func rootOf(params protocol.InitializeParams) string {
	if isFile(string(params.RootURI)) {
		return params.RootURI.Filename()
	}
	if len(params.WorkspaceFolders) > 0 && isFile(params.WorkspaceFolders[0].URI) {
		return uri.URI(params.WorkspaceFolders[0].URI).Filename()
	}
	return params.RootPath
}

func isFile(u string) bool {
	return strings.HasPrefix(u, "file://")
}

// initialized starts the workspace scan in the background.
func (s *Server) initialized(ws *workspace.Workspace) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	go func() {
		if err := ws.Start(ctx); err != nil {
			s.logger.Warn("workspace scan failed", zap.Error(err))
		}
	}()
}

func (s *Server) didChange(ctx context.Context, ws *workspace.Workspace, params didChangeParams) error {
	u := string(params.TextDocument.URI)
	snap, err := ws.Snapshot(u)
	if err != nil {
		return err
	}
	if params.TextDocument.Version <= snap.Version {
		s.logger.Warn("dropping out-of-order change",
			zap.String("uri", u),
			zap.Int32("version", params.TextDocument.Version),
			zap.Int32("current", snap.Version))
		return nil
	}
	diags, err := ws.ChangeDocument(u, params.TextDocument.Version, toChanges(params.ContentChanges))
	if err != nil {
		return err
	}
	return s.publish(ctx, u, params.TextDocument.Version, diags)
}

func (s *Server) publish(ctx context.Context, u string, version int32, diags []validator.Diagnostic) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	params := &protocol.PublishDiagnosticsParams{
		URI:         uri.URI(u),
		Diagnostics: toDiagnostics(diags),
	}
	if version > 0 {
		params.Version = uint32(version)
	}
	return client.PublishDiagnostics(ctx, params)
}

// focus points the debug graph at the resource under pos.
func (s *Server) focus(ws *workspace.Workspace, u string, pos parser.Position) {
	s.mu.Lock()
	vis := s.visualizer
	s.mu.Unlock()
	if vis == nil {
		return
	}
	snap, err := ws.Snapshot(u)
	if err != nil {
		return
	}
	root := snap.Tree.RootAt(pos)
	if root == nil {
		return
	}
	name := root.Lookup("metadata", "name").StringValue()
	if name == "" {
		return
	}
	vis.SetFocus(index.Key{Kind: validator.KindOf(root), Name: name})
}
