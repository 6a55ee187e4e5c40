// Package workspace ties the document store, validator and index of one
// editor session together and answers the feature queries.
package workspace

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/tektoncd/tekton-lsp/internal/config"
	"github.com/tektoncd/tekton-lsp/internal/features"
	"github.com/tektoncd/tekton-lsp/internal/index"
	"github.com/tektoncd/tekton-lsp/internal/lsp/cache"
	"github.com/tektoncd/tekton-lsp/internal/metrics"
	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
	"github.com/tektoncd/tekton-lsp/internal/validator"
)

type Options struct {
	// Root is the workspace folder on disk. It is used for the project
	// schema file and the scan. May be empty.
	Root    string
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Workspace struct {
	root      string
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	validator *validator.Validator
	index     *index.Index
	docs      *cache.Store
	scanner   *index.Scanner

	// indexMu orders index writes for a URI between the editor and the
	// disk scanner. Taken after a document lock, before the store lock.
	indexMu sync.Mutex
}

func New(opts Options) (*Workspace, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sch, errs := schema.LoadFullSchema(opts.Root)
	for _, err := range errs {
		logger.Warn("ignoring schema file", zap.Error(err))
	}
	v := validator.NewValidator(sch)
	v.UnknownFields = cfg.Validation.UnknownFields
	for _, tag := range cfg.Validation.Disabled {
		v.Disabled[validator.Tag(tag)] = true
	}

	store, err := index.Open(cfg.Index.Backend, cfg.Index.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	w := &Workspace{
		root:      opts.Root,
		cfg:       cfg,
		logger:    logger,
		metrics:   opts.Metrics,
		validator: v,
		index:     index.New(store, logger.Named("index")),
	}
	w.docs = cache.NewStore(w)
	w.scanner = &index.Scanner{
		Index:       w.index,
		Concurrency: cfg.Index.ScanConcurrency,
		Skip:        w.docs.IsOpen,
		Lock:        &w.indexMu,
		Logger:      logger.Named("scan"),
	}
	return w, nil
}

// Analyze validates and indexes a freshly parsed document. It runs under
// the document's write lock.
func (w *Workspace) Analyze(u string, tree *parser.Tree) []validator.Diagnostic {
	start := time.Now()
	defer w.metrics.ObserveAnalysis(start)

	diags := w.validator.ValidateTree(tree)
	w.indexMu.Lock()
	err := w.index.IndexDocument(u, tree)
	w.indexMu.Unlock()
	if err != nil {
		w.logger.Error("indexing failed", zap.String("uri", u), zap.Error(err))
	} else {
		w.metrics.CountIndexed("editor", 1)
	}
	for _, d := range diags {
		w.metrics.CountDiagnostic(string(d.Tag), d.Severity.String())
	}
	return diags
}

// Closed drops the editor's entries for u. When the workspace is scanned,
// the file on disk takes over.
func (w *Workspace) Closed(u string) {
	if !w.dropEditorEntries(u) {
		return
	}
	if !w.cfg.Index.Scan {
		return
	}
	path, ok := filename(u)
	if !ok {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	indexed, err := w.scanner.IndexFile(path)
	if err != nil {
		w.logger.Warn("failed to index file from disk", zap.String("path", path), zap.Error(err))
		return
	}
	if indexed {
		w.metrics.CountIndexed("disk", 1)
	}
}

// dropEditorEntries removes u from the index unless it has been opened again
// in the meantime.
func (w *Workspace) dropEditorEntries(u string) bool {
	w.indexMu.Lock()
	defer w.indexMu.Unlock()
	if w.docs.IsOpen(u) {
		return false
	}
	if err := w.index.RemoveDocument(u); err != nil {
		w.logger.Error("failed to remove document", zap.String("uri", u), zap.Error(err))
	}
	return true
}

func filename(u string) (string, bool) {
	if !strings.HasPrefix(u, "file://") {
		return "", false
	}
	return uri.URI(u).Filename(), true
}

func (w *Workspace) OpenDocument(u, languageID string, version int32, text string) ([]validator.Diagnostic, error) {
	snap, err := w.docs.Open(u, languageID, version, text)
	if err != nil {
		return nil, err
	}
	w.metrics.SetOpenDocuments(len(w.docs.URIs()))
	return snap.Diagnostics, nil
}

func (w *Workspace) ChangeDocument(u string, version int32, changes []cache.Change) ([]validator.Diagnostic, error) {
	snap, err := w.docs.Change(u, version, changes)
	if err != nil {
		return nil, err
	}
	return snap.Diagnostics, nil
}

func (w *Workspace) CloseDocument(u string) error {
	if err := w.docs.Close(u); err != nil {
		return err
	}
	w.metrics.SetOpenDocuments(len(w.docs.URIs()))
	return nil
}

// Snapshot returns the latest state of an open document.
func (w *Workspace) Snapshot(u string) (*cache.Snapshot, error) {
	return w.docs.Get(u)
}

func (w *Workspace) GetDiagnostics(u string) ([]validator.Diagnostic, error) {
	snap, err := w.docs.Get(u)
	if err != nil {
		return nil, err
	}
	return snap.Diagnostics, nil
}

func (w *Workspace) Complete(u string, pos parser.Position) ([]features.CompletionItem, error) {
	snap, err := w.docs.Get(u)
	if err != nil {
		return nil, err
	}
	return features.Complete(snap.Tree, pos, w.index), nil
}

func (w *Workspace) Hover(u string, pos parser.Position) (*features.Hover, error) {
	snap, err := w.docs.Get(u)
	if err != nil {
		return nil, err
	}
	return features.HoverAt(u, snap.Tree, pos, w.index), nil
}

func (w *Workspace) Definition(u string, pos parser.Position) ([]features.Location, error) {
	snap, err := w.docs.Get(u)
	if err != nil {
		return nil, err
	}
	return features.Definition(u, snap.Tree, pos, w.index), nil
}

func (w *Workspace) References(u string, pos parser.Position, includeDeclaration bool) ([]features.Location, error) {
	snap, err := w.docs.Get(u)
	if err != nil {
		return nil, err
	}
	return features.References(u, snap.Tree, pos, w.index, includeDeclaration), nil
}

func (w *Workspace) DocumentSymbols(u string) ([]features.Symbol, error) {
	snap, err := w.docs.Get(u)
	if err != nil {
		return nil, err
	}
	return features.DocumentSymbols(snap.Tree), nil
}

// Format returns no edits when formatting is turned off in the config.
func (w *Workspace) Format(u string) ([]features.TextEdit, error) {
	snap, err := w.docs.Get(u)
	if err != nil {
		return nil, err
	}
	if !w.cfg.Format.Enabled {
		return nil, nil
	}
	return features.Format(snap.Tree), nil
}

// CodeActions returns the quick fixes for diags, which come from the
// current version of u.
func (w *Workspace) CodeActions(u string, diags []validator.Diagnostic) ([]features.CodeAction, error) {
	snap, err := w.docs.Get(u)
	if err != nil {
		return nil, err
	}
	return features.CodeActions(snap.Tree, diags), nil
}

// DiagnosticsIn returns the stored diagnostics of u that overlap rng.
func (w *Workspace) DiagnosticsIn(u string, rng parser.Range) ([]validator.Diagnostic, error) {
	snap, err := w.docs.Get(u)
	if err != nil {
		return nil, err
	}
	var diags []validator.Diagnostic
	for _, d := range snap.Diagnostics {
		if overlaps(d.Range, rng) {
			diags = append(diags, d)
		}
	}
	return diags, nil
}

func overlaps(a, b parser.Range) bool {
	return !a.End.Before(b.Start) && !b.End.Before(a.Start)
}

// Start runs the configured workspace scan and, if asked for, the watcher.
// The watcher stops with ctx.
func (w *Workspace) Start(ctx context.Context) error {
	if w.root == "" || !w.cfg.Index.Scan {
		return nil
	}
	n, err := w.Scan(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("workspace scanned", zap.String("root", w.root), zap.Int("files", n))
	if w.cfg.Index.Watch {
		return w.scanner.Watch(ctx, w.root)
	}
	return nil
}

// Scan indexes the YAML files below the root that are not open.
func (w *Workspace) Scan(ctx context.Context) (int, error) {
	if w.root == "" {
		return 0, nil
	}
	n, err := w.scanner.Scan(ctx, w.root)
	w.metrics.CountIndexed("disk", n)
	if err != nil {
		return n, fmt.Errorf("failed to scan %s: %w", w.root, err)
	}
	return n, nil
}

func (w *Workspace) Resources() []index.Resource {
	return w.index.Resources()
}

func (w *Workspace) Index() *index.Index {
	return w.index
}

func (w *Workspace) Config() *config.Config {
	return w.cfg
}

func (w *Workspace) Close() error {
	return w.index.Close()
}
