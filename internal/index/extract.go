package index

import (
	"strings"

	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
)

// Extract collects the definitions and reference sites of every document in
// tree.
func Extract(uri string, tree *parser.Tree) ([]Resource, []Reference) {
	if tree == nil {
		return nil, nil
	}
	var resources []Resource
	for _, root := range tree.Roots {
		kind := schema.ParseKind(root.Get("kind").StringValue())
		if !kind.Known() {
			continue
		}
		if name := root.Lookup("metadata", "name"); name != nil && name.Kind == parser.ScalarNode && name.StringValue() != "" {
			resources = append(resources, Resource{Kind: kind, Name: name.Value, URI: uri, Range: name.ValueRange})
		}
	}
	return resources, ReferencesIn(uri, tree)
}

// ReferencesIn returns the reference sites of tree in source order without
// touching any index.
func ReferencesIn(uri string, tree *parser.Tree) []Reference {
	if tree == nil {
		return nil
	}
	c := &collector{uri: uri}
	for _, root := range tree.Roots {
		c.resource(root)
	}
	return c.refs
}

type collector struct {
	uri  string
	refs []Reference
}

// resource dispatches on the document kind to its reference sites.
func (c *collector) resource(root *parser.Node) {
	spec := root.Get("spec")
	switch schema.ParseKind(root.Get("kind").StringValue()) {
	case schema.KindPipeline:
		c.pipelineSpec(spec)
	case schema.KindPipelineRun:
		c.ref(spec.Get("pipelineRef"), schema.KindPipeline)
		c.pipelineSpec(spec.Get("pipelineSpec"))
	case schema.KindTaskRun:
		c.taskRef(spec.Get("taskRef"))
	case schema.KindEventListener:
		for _, trigger := range mappings(spec.Get("triggers")) {
			for _, binding := range mappings(trigger.Get("bindings")) {
				if k := binding.Get("kind").StringValue(); k != "" && k != "TriggerBinding" {
					continue
				}
				c.add(binding.Get("ref"), schema.KindTriggerBinding)
			}
			c.add(trigger.Lookup("template", "ref"), schema.KindTriggerTemplate)
		}
	}
}

func (c *collector) pipelineSpec(spec *parser.Node) {
	for _, section := range []string{"tasks", "finally"} {
		for _, task := range mappings(spec.Get(section)) {
			c.taskRef(task.Get("taskRef"))
			c.ref(task.Get("pipelineRef"), schema.KindPipeline)
		}
	}
}

// taskRef records the name of a task reference. The kind defaults to Task
// when no kind field is present, so a ClusterTask is only recognized when
// the reference says so.
func (c *collector) taskRef(ref *parser.Node) {
	kind := schema.KindTask
	if k := ref.Get("kind"); k != nil && k.StringValue() != "" {
		kind = schema.ParseKind(k.StringValue())
		if kind != schema.KindTask && kind != schema.KindClusterTask {
			return
		}
	}
	c.ref(ref, kind)
}

// ref records ref.name unless the reference is resolved remotely.
func (c *collector) ref(ref *parser.Node, kind schema.Kind) {
	if ref == nil || ref.Kind != parser.MappingNode {
		return
	}
	if ref.Get("resolver") != nil || ref.Get("bundle") != nil {
		return
	}
	c.add(ref.Get("name"), kind)
}

func (c *collector) add(name *parser.Node, kind schema.Kind) {
	if name == nil || name.Kind != parser.ScalarNode {
		return
	}
	v := name.StringValue()
	if v == "" || strings.Contains(v, "$(") {
		return
	}
	c.refs = append(c.refs, Reference{URI: c.uri, Range: name.ValueRange, Kind: kind, Name: v})
}

func mappings(n *parser.Node) []*parser.Node {
	if n == nil || n.Kind != parser.SequenceNode {
		return nil
	}
	var out []*parser.Node
	for _, c := range n.Children {
		if c.Kind == parser.MappingNode {
			out = append(out, c)
		}
	}
	return out
}
