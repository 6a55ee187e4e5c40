package index

import (
	"sort"
	"sync"
)

type definition struct {
	Resource
	seq uint64
}

// MemoryStore is the default Store. One lock guards every table; updates
// replace a single document's entries and are cheap.
type MemoryStore struct {
	mu   sync.RWMutex
	seq  uint64
	defs map[Key][]definition
	refs map[Key]map[string][]Reference
	docs map[string]contribution
}

// contribution records what a document added, so that it can be taken out
// again without scanning the tables.
type contribution struct {
	keys    []Key
	refKeys []Key
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		defs: make(map[Key][]definition),
		refs: make(map[Key]map[string][]Reference),
		docs: make(map[string]contribution),
	}
}

func (s *MemoryStore) Replace(uri string, resources []Resource, refs []Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(uri)
	s.seq++
	var c contribution
	for _, r := range resources {
		r.URI = uri
		s.defs[r.Key()] = append(s.defs[r.Key()], definition{Resource: r, seq: s.seq})
		c.keys = append(c.keys, r.Key())
	}
	for _, r := range refs {
		r.URI = uri
		byURI := s.refs[r.Key()]
		if byURI == nil {
			byURI = make(map[string][]Reference)
			s.refs[r.Key()] = byURI
		}
		if len(byURI[uri]) == 0 {
			c.refKeys = append(c.refKeys, r.Key())
		}
		byURI[uri] = append(byURI[uri], r)
	}
	s.docs[uri] = c
	return nil
}

func (s *MemoryStore) Remove(uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(uri)
	return nil
}

func (s *MemoryStore) remove(uri string) {
	c, ok := s.docs[uri]
	if !ok {
		return
	}
	for _, k := range c.keys {
		kept := s.defs[k][:0]
		for _, d := range s.defs[k] {
			if d.URI != uri {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(s.defs, k)
		} else {
			s.defs[k] = kept
		}
	}
	for _, k := range c.refKeys {
		delete(s.refs[k], uri)
		if len(s.refs[k]) == 0 {
			delete(s.refs, k)
		}
	}
	delete(s.docs, uri)
}

func (s *MemoryStore) Resource(key Key) (Resource, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *definition
	for i, d := range s.defs[key] {
		if best == nil || d.seq > best.seq {
			best = &s.defs[key][i]
		}
	}
	if best == nil {
		return Resource{}, false, nil
	}
	return best.Resource, true, nil
}

func (s *MemoryStore) References(key Key) ([]Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Reference
	for _, refs := range s.refs[key] {
		out = append(out, refs...)
	}
	sortReferences(out)
	return out, nil
}

func (s *MemoryStore) Resources() ([]Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Resource
	for _, defs := range s.defs {
		for _, d := range defs {
			out = append(out, d.Resource)
		}
	}
	sortResources(out)
	return out, nil
}

func (s *MemoryStore) URIs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func sortReferences(refs []Reference) {
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.URI != b.URI {
			return a.URI < b.URI
		}
		if a.Range.Start != b.Range.Start {
			return a.Range.Start.Before(b.Range.Start)
		}
		return a.Range.End.Before(b.Range.End)
	})
}

func sortResources(res []Resource) {
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.URI != b.URI {
			return a.URI < b.URI
		}
		return a.Range.Start.Before(b.Range.Start)
	})
}
