package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.lsp.dev/uri"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tektoncd/tekton-lsp/internal/parser"
)

var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

func IsYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Scanner keeps the index current for YAML files on disk that the editor
// does not have open.
type Scanner struct {
	Index       *Index
	Concurrency int
	// Skip reports URIs whose content is owned by the editor.
	Skip func(uri string) bool
	// Lock, when set, is held from the Skip check until the index write.
	// The editor must hold it while indexing open documents so that a
	// document opened mid-scan never ends up with disk content.
	Lock   sync.Locker
	Logger *zap.Logger
}

func (s *Scanner) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Scanner) skip(u string) bool {
	return s.Skip != nil && s.Skip(u)
}

// unlessSkipped runs fn with the lock held, provided u is not owned by the
// editor at that point. It reports whether fn ran.
func (s *Scanner) unlessSkipped(u string, fn func() error) (bool, error) {
	if s.Lock != nil {
		s.Lock.Lock()
		defer s.Lock.Unlock()
	}
	if s.skip(u) {
		return false, nil
	}
	return true, fn()
}

// Scan indexes every YAML file below root and returns how many were
// indexed. Files that cannot be read are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, root string) (int, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if IsYAML(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	limit := s.Concurrency
	if limit <= 0 {
		limit = 8
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	indexed := make(chan struct{}, len(files))
	for _, path := range files {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := s.IndexFile(path)
			if err != nil {
				s.logger().Warn("skipping file", zap.String("path", path), zap.Error(err))
				return nil
			}
			if ok {
				indexed <- struct{}{}
			}
			return nil
		})
	}
	err = g.Wait()
	close(indexed)
	return len(indexed), err
}

// IndexFile parses path from disk and indexes it, unless the editor owns
// it. It reports whether the file was indexed.
func (s *Scanner) IndexFile(path string) (bool, error) {
	u := string(uri.File(path))
	content, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	tree := parser.Parse(string(content))
	indexed, err := s.unlessSkipped(u, func() error {
		s.logger().Debug("indexing", zap.String("file", filepath.Base(path)), zap.String("path", path))
		return s.Index.IndexDocument(u, tree)
	})
	if err != nil {
		return false, err
	}
	return indexed, nil
}

// Watch re-indexes files below root as they change on disk until ctx is
// done. It returns once the watcher is set up.
func (s *Scanner) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := addRecursive(w, root); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	go s.watchLoop(ctx, w)
	return nil
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func (s *Scanner) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			s.handle(w, event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger().Warn("watcher error", zap.Error(err))
		}
	}
}

func (s *Scanner) handle(w *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		u := string(uri.File(event.Name))
		if !IsYAML(event.Name) {
			return
		}
		if _, err := s.unlessSkipped(u, func() error { return s.Index.RemoveDocument(u) }); err != nil {
			s.logger().Warn("failed to drop removed file", zap.String("path", event.Name), zap.Error(err))
		}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if event.Has(fsnotify.Create) && !ignoredDirs[info.Name()] {
				if err := addRecursive(w, event.Name); err != nil {
					s.logger().Warn("failed to watch directory", zap.String("path", event.Name), zap.Error(err))
				}
			}
			return
		}
		if !IsYAML(event.Name) {
			return
		}
		if _, err := s.IndexFile(event.Name); err != nil {
			s.logger().Warn("failed to index changed file", zap.String("path", event.Name), zap.Error(err))
		}
	}
}
