package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/validator"
)

var (
	ErrAlreadyOpen = errors.New("document already open")
	ErrNotFound    = errors.New("document not found")
	ErrOutOfRange  = errors.New("change out of range")
)

// Snapshot is the immutable state of a document after one edit. Queries work
// on snapshots and never see a half-applied change.
type Snapshot struct {
	URI         string
	LanguageID  string
	Version     int32
	Text        string
	Tree        *parser.Tree
	Diagnostics []validator.Diagnostic
}

// Analyzer runs after every parse, under the document's write lock, so the
// diagnostics and index entries of a snapshot always belong to its tree.
type Analyzer interface {
	Analyze(uri string, tree *parser.Tree) []validator.Diagnostic
	// Closed is called once a document is no longer tracked. The store
	// lock is not held, so the analyzer may query the store.
	Closed(uri string)
}

type Document struct {
	mu     sync.RWMutex
	snap   *Snapshot
	closed bool
}

// Store tracks the documents the editor has open.
type Store struct {
	mu       sync.RWMutex
	docs     map[string]*Document
	analyzer Analyzer
}

// NewStore returns an empty store. analyzer may be nil.
func NewStore(analyzer Analyzer) *Store {
	return &Store{
		docs:     make(map[string]*Document),
		analyzer: analyzer,
	}
}

func (s *Store) Open(uri, languageID string, version int32, text string) (*Snapshot, error) {
	d := &Document{}
	d.mu.Lock()
	defer d.mu.Unlock()

	s.mu.Lock()
	if _, ok := s.docs[uri]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, uri)
	}
	s.docs[uri] = d
	s.mu.Unlock()

	d.snap = s.analyze(uri, languageID, version, text)
	return d.snap, nil
}

// Change applies a batch of changes. On error the document keeps its
// previous snapshot and the client is expected to resend the full text.
func (s *Store) Change(uri string, version int32, changes []Change) (*Snapshot, error) {
	d, err := s.document(uri)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}

	text, err := ApplyChanges(d.snap.Text, changes)
	if err != nil {
		return nil, fmt.Errorf("failed to apply changes to %s: %w", uri, err)
	}
	d.snap = s.analyze(uri, d.snap.LanguageID, version, text)
	return d.snap, nil
}

func (s *Store) analyze(uri, languageID string, version int32, text string) *Snapshot {
	snap := &Snapshot{
		URI:        uri,
		LanguageID: languageID,
		Version:    version,
		Text:       text,
		Tree:       parser.Parse(text),
	}
	if s.analyzer != nil {
		snap.Diagnostics = s.analyzer.Analyze(uri, snap.Tree)
	}
	return snap
}

// Close stops tracking uri. Queries still holding the document get
// ErrNotFound.
func (s *Store) Close(uri string) error {
	s.mu.Lock()
	d, ok := s.docs[uri]
	delete(s.docs, uri)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, uri)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if s.analyzer != nil {
		s.analyzer.Closed(uri)
	}
	return nil
}

// Get returns the latest snapshot of uri.
func (s *Store) Get(uri string) (*Snapshot, error) {
	d, err := s.document(uri)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return d.snap, nil
}

func (s *Store) IsOpen(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[uri]
	return ok
}

// URIs returns the open documents, sorted.
func (s *Store) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

func (s *Store) document(uri string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return d, nil
}
