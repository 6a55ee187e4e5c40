package index

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
)

// Resource is a named definition found in a document.
type Resource struct {
	Kind schema.Kind
	Name string
	URI  string
	// Range of the metadata.name value.
	Range parser.Range
}

// Reference is an occurrence of one resource naming another. The target
// does not need to exist.
type Reference struct {
	URI   string
	Range parser.Range
	Kind  schema.Kind
	Name  string
}

type Key struct {
	Kind schema.Kind
	Name string
}

func (r Reference) Key() Key {
	return Key{Kind: r.Kind, Name: r.Name}
}

func (r Resource) Key() Key {
	return Key{Kind: r.Kind, Name: r.Name}
}

var ErrUnknownBackend = errors.New("unknown index backend")

// Store keeps the entries contributed by each document. Replace and Remove
// are atomic per document.
type Store interface {
	Replace(uri string, resources []Resource, refs []Reference) error
	Remove(uri string) error
	// Resource returns the most recently indexed definition of key.
	Resource(key Key) (Resource, bool, error)
	// References are ordered by URI, then range.
	References(key Key) ([]Reference, error)
	// Resources are ordered by kind, name, then URI.
	Resources() ([]Resource, error)
	URIs() ([]string, error)
	Close() error
}

// Open returns a store for backend "memory" or "sqlite".
func Open(backend, dsn string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		s, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Index is the workspace-wide table of resource definitions and the
// references between them. It is owned by one session.
type Index struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Index {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{store: store, logger: logger}
}

// IndexDocument replaces every entry previously contributed by uri with the
// definitions and reference sites found in tree.
func (ix *Index) IndexDocument(uri string, tree *parser.Tree) error {
	resources, refs := Extract(uri, tree)
	if err := ix.store.Replace(uri, resources, refs); err != nil {
		return fmt.Errorf("failed to index %s: %w", uri, err)
	}
	ix.logger.Debug("indexed document",
		zap.String("uri", uri),
		zap.Int("resources", len(resources)),
		zap.Int("references", len(refs)))
	return nil
}

// RemoveDocument drops every entry contributed by uri.
func (ix *Index) RemoveDocument(uri string) error {
	if err := ix.store.Remove(uri); err != nil {
		return fmt.Errorf("failed to remove %s from index: %w", uri, err)
	}
	return nil
}

func (ix *Index) FindResource(kind schema.Kind, name string) (Resource, bool) {
	res, ok, err := ix.store.Resource(Key{Kind: kind, Name: name})
	if err != nil {
		ix.logger.Error("resource lookup failed", zap.Stringer("kind", kind), zap.String("name", name), zap.Error(err))
		return Resource{}, false
	}
	return res, ok
}

func (ix *Index) FindReferences(kind schema.Kind, name string) []Reference {
	refs, err := ix.store.References(Key{Kind: kind, Name: name})
	if err != nil {
		ix.logger.Error("reference lookup failed", zap.Stringer("kind", kind), zap.String("name", name), zap.Error(err))
		return nil
	}
	return refs
}

func (ix *Index) Resources() []Resource {
	res, err := ix.store.Resources()
	if err != nil {
		ix.logger.Error("listing resources failed", zap.Error(err))
		return nil
	}
	return res
}

// Names returns the names defined for kind, sorted.
func (ix *Index) Names(kind schema.Kind) []string {
	var names []string
	seen := make(map[string]bool)
	for _, r := range ix.Resources() {
		if r.Kind == kind && !seen[r.Name] {
			seen[r.Name] = true
			names = append(names, r.Name)
		}
	}
	return names
}

func (ix *Index) URIs() []string {
	uris, err := ix.store.URIs()
	if err != nil {
		ix.logger.Error("listing documents failed", zap.Error(err))
		return nil
	}
	return uris
}

func (ix *Index) Close() error {
	return ix.store.Close()
}
