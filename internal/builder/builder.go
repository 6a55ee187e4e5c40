// Package builder bundles Tekton files into one multi-document stream that
// can be applied in a single step.
package builder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.lsp.dev/uri"
	"go.yaml.in/yaml/v3"

	"github.com/tektoncd/tekton-lsp/internal/formatter"
	"github.com/tektoncd/tekton-lsp/internal/index"
	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
)

// NamespaceKey in Overrides replaces metadata.namespace. Every other key
// is added as a label.
const NamespaceKey = "namespace"

type Builder struct {
	Files     []string
	Overrides map[string]string
}

func NewBuilder(files []string, overrides map[string]string) *Builder {
	return &Builder{Files: files, Overrides: overrides}
}

type entry struct {
	file      string
	order     int
	key       index.Key
	namespace string
	doc       *yaml.Node
	deps      []index.Key
}

// Build writes every resource of the input files to w. A resource comes
// after the resources of the bundle it references; otherwise Tasks come
// first, then Pipelines, trigger resources and runs.
func (b *Builder) Build(w io.Writer) error {
	var entries []*entry
	seen := make(map[index.Key]string)

	for _, file := range b.Files {
		content, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		tree := parser.Parse(string(content))
		if len(tree.Errors) > 0 {
			return fmt.Errorf("error parsing %s: %v", file, tree.Errors[0])
		}

		abs, err := filepath.Abs(file)
		if err != nil {
			abs = file
		}
		refs := index.ReferencesIn(string(uri.File(abs)), tree)
		docs := tree.YAML()
		for i, root := range tree.Roots {
			e := &entry{
				file:      file,
				order:     len(entries),
				key:       index.Key{Kind: schema.ParseKind(root.Get("kind").StringValue()), Name: root.Lookup("metadata", "name").StringValue()},
				namespace: root.Lookup("metadata", "namespace").StringValue(),
				doc:       docs[i],
			}
			if e.key.Kind.Known() && e.key.Name != "" {
				if prev, dup := seen[e.key]; dup {
					return fmt.Errorf("duplicate %s %q in %s and %s", e.key.Kind, e.key.Name, prev, file)
				}
				seen[e.key] = file
			}
			for _, ref := range refs {
				if root.Range.ContainsRange(ref.Range) {
					e.deps = append(e.deps, ref.Key())
				}
			}
			entries = append(entries, e)
		}
	}

	if err := b.checkNamespaces(entries); err != nil {
		return err
	}
	ordered, err := sortEntries(entries)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(formatter.Indent)
	for _, e := range ordered {
		b.applyOverrides(e.doc)
		if err := enc.Encode(e.doc); err != nil {
			return fmt.Errorf("failed to encode %s: %w", e.file, err)
		}
	}
	return enc.Close()
}

func (b *Builder) checkNamespaces(entries []*entry) error {
	if b.Overrides[NamespaceKey] != "" {
		return nil
	}
	expected := ""
	for _, e := range entries {
		if e.namespace == "" {
			continue
		}
		if expected == "" {
			expected = e.namespace
		} else if e.namespace != expected {
			return fmt.Errorf("multiple namespaces defined in sources: found '%s' and '%s'", expected, e.namespace)
		}
	}
	return nil
}

func rank(k schema.Kind) int {
	switch k {
	case schema.KindTask, schema.KindClusterTask:
		return 0
	case schema.KindPipeline:
		return 1
	case schema.KindTriggerBinding, schema.KindTriggerTemplate:
		return 2
	case schema.KindEventListener:
		return 3
	case schema.KindPipelineRun, schema.KindTaskRun:
		return 4
	default:
		return 5
	}
}

// sortEntries orders entries so that dependencies inside the bundle come
// first. References to resources outside the bundle are ignored.
func sortEntries(entries []*entry) ([]*entry, error) {
	inBundle := make(map[index.Key]bool, len(entries))
	for _, e := range entries {
		inBundle[e.key] = true
	}

	pending := append([]*entry(nil), entries...)
	sort.SliceStable(pending, func(i, j int) bool {
		return rank(pending[i].key.Kind) < rank(pending[j].key.Kind)
	})

	emitted := make(map[index.Key]bool, len(entries))
	out := make([]*entry, 0, len(entries))
	for len(pending) > 0 {
		next := -1
		for i, e := range pending {
			if ready(e, inBundle, emitted) {
				next = i
				break
			}
		}
		if next < 0 {
			var names []string
			for _, e := range pending {
				names = append(names, fmt.Sprintf("%s/%s", e.key.Kind, e.key.Name))
			}
			return nil, fmt.Errorf("reference cycle between %s", strings.Join(names, ", "))
		}
		e := pending[next]
		pending = append(pending[:next], pending[next+1:]...)
		emitted[e.key] = true
		out = append(out, e)
	}
	return out, nil
}

func ready(e *entry, inBundle, emitted map[index.Key]bool) bool {
	for _, dep := range e.deps {
		if dep != e.key && inBundle[dep] && !emitted[dep] {
			return false
		}
	}
	return true
}

func (b *Builder) applyOverrides(doc *yaml.Node) {
	if len(b.Overrides) == 0 || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return
	}
	metadata := mappingValue(doc.Content[0], "metadata")

	keys := make([]string, 0, len(b.Overrides))
	for k := range b.Overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := b.Overrides[k]
		if k == NamespaceKey {
			setScalar(metadata, k, v)
			continue
		}
		setScalar(mappingValue(metadata, "labels"), k, v)
	}
}

// mappingValue returns the mapping stored under key in m, creating it when
// missing or not a mapping.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			v := m.Content[i+1]
			if v.Kind != yaml.MappingNode {
				*v = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			}
			return v
		}
	}
	v := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	return v
}

func setScalar(m *yaml.Node, key, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			*m.Content[i+1] = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value})
}
