package validator

import (
	"fmt"

	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
)

// commonFields are checked for every kind, including the ones without a
// rule set of their own.
var commonFields = []string{"apiVersion", "kind", "metadata"}

func (p *pass) resource(root *parser.Node) {
	if root.Kind != parser.MappingNode {
		p.report(TagTypeMismatch, SeverityError, root.Range, "Resource document must be a mapping", root.Range)
		return
	}

	switch p.kind {
	case schema.KindPipeline:
		p.pipeline(root)
	case schema.KindTask:
		p.task(root)
	case schema.KindPipelineRun:
		p.pipelineRun(root)
	case schema.KindTaskRun:
		p.taskRun(root)
	case schema.KindClusterTask, schema.KindTriggerTemplate, schema.KindTriggerBinding, schema.KindEventListener:
		p.common(root)
	default:
		if kind := root.Get("kind"); kind != nil {
			p.report(TagUnknownKind, SeverityWarning, emptyValueRange(kind),
				fmt.Sprintf("Unknown resource kind '%s'", kind.StringValue()), root.Range, "kind")
			return
		}
		p.common(root)
	}
}

// common checks the fields every resource carries.
func (p *pass) common(root *parser.Node) {
	g := schema.Root(p.kind)
	for _, name := range commonFields {
		f := g.Field(name)
		if child := root.Get(name); child != nil {
			p.field(child, f, []string{name})
			continue
		}
		p.require(root, f, nil)
	}
}

func (p *pass) pipeline(root *parser.Node) {
	p.walk(root, schema.Root(schema.KindPipeline), nil)
	p.pipelineSpec(root.Get("spec"))
}

func (p *pass) task(root *parser.Node) {
	p.walk(root, schema.Root(schema.KindTask), nil)
	p.taskSpec(root.Get("spec"))
}

func (p *pass) pipelineRun(root *parser.Node) {
	p.walk(root, schema.Root(schema.KindPipelineRun), nil)
	spec := root.Get("spec")
	if spec == nil || spec.Kind != parser.MappingNode {
		return
	}
	p.exactlyOne(spec, "PipelineRun", "pipelineRef", "pipelineSpec")
	p.pipelineSpec(spec.Get("pipelineSpec"))
}

func (p *pass) taskRun(root *parser.Node) {
	p.walk(root, schema.Root(schema.KindTaskRun), nil)
	spec := root.Get("spec")
	if spec == nil || spec.Kind != parser.MappingNode {
		return
	}
	p.exactlyOne(spec, "TaskRun", "taskRef", "taskSpec")
	p.taskSpec(spec.Get("taskSpec"))
}

// pipelineSpec checks the task lists of a Pipeline, standalone or embedded
// in a PipelineRun.
func (p *pass) pipelineSpec(spec *parser.Node) {
	if spec == nil || spec.Kind != parser.MappingNode {
		return
	}

	tasks := items(spec.Get("tasks"))
	finally := items(spec.Get("finally"))

	names := make(map[string]bool)
	for _, task := range append(append([]*parser.Node(nil), tasks...), finally...) {
		label := "Pipeline task"
		name := task.Get("name")
		if n := name.StringValue(); n != "" {
			label = fmt.Sprintf("Pipeline task '%s'", n)
			if names[n] {
				p.report(TagInvalidValue, SeverityError, name.ValueRange,
					fmt.Sprintf("Duplicate pipeline task name '%s'", n), task.Range, "name")
			}
			names[n] = true
		}
		if task.Get("pipelineRef") != nil || task.Get("pipelineSpec") != nil {
			continue
		}
		p.exactlyOne(task, label, "taskRef", "taskSpec")
		p.taskSpec(task.Get("taskSpec"))
	}

	declared := make(map[string]bool)
	for _, task := range tasks {
		declared[task.Get("name").StringValue()] = true
	}
	for _, task := range tasks {
		self := task.Get("name").StringValue()
		for _, dep := range scalars(task.Get("runAfter")) {
			switch {
			case substituted(dep):
			case dep.Value == self:
				p.report(TagInvalidValue, SeverityWarning, dep.ValueRange,
					fmt.Sprintf("Pipeline task '%s' cannot run after itself", self), task.Range, "runAfter")
			case !declared[dep.Value]:
				p.report(TagInvalidValue, SeverityWarning, dep.ValueRange,
					fmt.Sprintf("runAfter references unknown task '%s'", dep.Value), task.Range, "runAfter")
			}
		}
	}
	for _, task := range finally {
		if after := task.Get("runAfter"); after != nil {
			p.report(TagInvalidValue, SeverityWarning, after.KeyRange,
				"Finally tasks cannot use runAfter", task.Range, "runAfter")
		}
	}
}

// taskSpec checks step names of a Task, standalone or embedded.
func (p *pass) taskSpec(spec *parser.Node) {
	if spec == nil || spec.Kind != parser.MappingNode {
		return
	}
	seen := make(map[string]bool)
	for _, step := range items(spec.Get("steps")) {
		name := step.Get("name")
		n := name.StringValue()
		if n == "" {
			continue
		}
		if seen[n] {
			p.report(TagInvalidValue, SeverityError, name.ValueRange,
				fmt.Sprintf("Duplicate step name '%s'", n), step.Range, "name")
		}
		seen[n] = true
	}
}

// exactlyOne reports n carrying neither or both of a and b. The conflict is
// anchored at whichever key comes second.
func (p *pass) exactlyOne(n *parser.Node, owner, a, b string) {
	na, nb := n.Get(a), n.Get(b)
	switch {
	case na == nil && nb == nil:
		p.report(TagMissingRequiredField, SeverityError, anchor(n),
			fmt.Sprintf("%s must specify either '%s' or '%s'", owner, a, b), n.Range, a)
	case na != nil && nb != nil:
		second := nb
		if nb.Range.Start.Before(na.Range.Start) {
			second = na
		}
		p.report(TagMutuallyExclusiveFields, SeverityError, second.KeyRange,
			fmt.Sprintf("%s cannot specify both '%s' and '%s'", owner, a, b), n.Range, a, b)
	}
}

// items returns the mapping items of a sequence.
func items(n *parser.Node) []*parser.Node {
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

func scalars(n *parser.Node) []*parser.Node {
	if n == nil || n.Kind != parser.SequenceNode {
		return nil
	}
	var out []*parser.Node
	for _, c := range n.Children {
		if c.Kind == parser.ScalarNode && !c.IsNull() {
			out = append(out, c)
		}
	}
	return out
}
