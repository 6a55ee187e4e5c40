package validator

import (
	"fmt"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/tektoncd/tekton-lsp/internal/parser"
	"github.com/tektoncd/tekton-lsp/internal/schema"
)

type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInformation
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	default:
		return "error"
	}
}

// Tag classifies a diagnostic so that quick fixes can pick a remediation.
type Tag string

const (
	TagMissingRequiredField    Tag = "missing-required-field"
	TagEmptyRequiredCollection Tag = "empty-required-collection"
	TagMutuallyExclusiveFields Tag = "mutually-exclusive-fields"
	TagUnknownField            Tag = "unknown-field"
	TagTypeMismatch            Tag = "type-mismatch"
	TagParseError              Tag = "parse-error"
	TagUnknownKind             Tag = "unknown-kind"
	TagInvalidValue            Tag = "invalid-value"
)

// Tags lists every classification, in the order above.
func Tags() []Tag {
	return []Tag{
		TagMissingRequiredField, TagEmptyRequiredCollection, TagMutuallyExclusiveFields,
		TagUnknownField, TagTypeMismatch, TagParseError, TagUnknownKind, TagInvalidValue,
	}
}

type Diagnostic struct {
	Range    parser.Range
	Severity Severity
	Message  string
	Tag      Tag
	// Fields names the keys the remediation works on; Parent is the range
	// of the mapping holding them.
	Fields []string
	Parent parser.Range
}

type Validator struct {
	Schema *schema.Schema
	// Disabled tags are dropped from the output.
	Disabled map[Tag]bool
	// UnknownFields enables unknown-field warnings.
	UnknownFields bool
}

func NewValidator(s *schema.Schema) *Validator {
	if s == nil {
		s = schema.DefaultSchema()
	}
	return &Validator{
		Schema:        s,
		Disabled:      make(map[Tag]bool),
		UnknownFields: true,
	}
}

// ValidateTree reports parse errors followed by the findings of every
// document in the stream. Documents salvaged from a parse error are not
// validated.
func (v *Validator) ValidateTree(tree *parser.Tree) []Diagnostic {
	var diags []Diagnostic
	if tree == nil {
		return nil
	}
	if !v.Disabled[TagParseError] {
		for _, e := range tree.Errors {
			diags = append(diags, Diagnostic{
				Range:    e.Range,
				Severity: SeverityError,
				Message:  e.Message,
				Tag:      TagParseError,
			})
		}
	}
	for _, root := range tree.Roots {
		if tree.Partial(root) {
			continue
		}
		diags = append(diags, v.Validate(root, KindOf(root))...)
	}
	return diags
}

// KindOf reads the kind field of a document root.
func KindOf(root *parser.Node) schema.Kind {
	return schema.ParseKind(root.Get("kind").StringValue())
}

// Validate checks one document root against the rules of kind. Output is
// ordered by position.
func (v *Validator) Validate(root *parser.Node, kind schema.Kind) []Diagnostic {
	if root == nil {
		return nil
	}
	p := &pass{v: v, kind: kind}
	p.resource(root)
	sort.SliceStable(p.diags, func(i, j int) bool {
		return p.diags[i].Range.Start.Before(p.diags[j].Range.Start)
	})
	return p.diags
}

// pass holds the state of one Validate call.
type pass struct {
	v     *Validator
	kind  schema.Kind
	diags []Diagnostic
}

func (p *pass) report(tag Tag, sev Severity, rng parser.Range, msg string, parent parser.Range, fields ...string) {
	if p.v.Disabled[tag] {
		return
	}
	p.diags = append(p.diags, Diagnostic{
		Range:    rng,
		Severity: sev,
		Message:  msg,
		Tag:      tag,
		Fields:   fields,
		Parent:   parent,
	})
}

// anchor is where findings about a mapping as a whole are shown: its key,
// or the first key of a sequence item or document root.
func anchor(n *parser.Node) parser.Range {
	if n.HasKey {
		return n.KeyRange
	}
	if n.Kind == parser.MappingNode && len(n.Children) > 0 {
		return n.Children[0].KeyRange
	}
	return n.Range
}

func extend(path []string, step string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, step)
}

func fieldPath(path []string, name string) string {
	return parser.JoinPath(extend(path, name))
}

// walk checks a mapping against its group and descends into the fields the
// group describes.
func (p *pass) walk(n *parser.Node, g *schema.Group, path []string) {
	if n == nil || g == nil || g.Open || n.Kind != parser.MappingNode {
		return
	}
	p.missing(n, g, path)

	for _, child := range n.Children {
		f := g.Field(child.Key)
		if f == nil {
			if p.v.UnknownFields {
				p.report(TagUnknownField, SeverityWarning, child.KeyRange,
					fmt.Sprintf("Unknown field '%s' in %s", child.Key, g.Name), n.Range, child.Key)
			}
			continue
		}
		p.field(child, f, extend(path, child.Key))
	}
}

// missing reports required and recommended fields absent from n.
func (p *pass) missing(n *parser.Node, g *schema.Group, path []string) {
	for _, f := range g.Fields {
		if !f.Required && !f.Recommended {
			continue
		}
		p.require(n, f, path)
	}
}

func (p *pass) require(n *parser.Node, f *schema.Field, path []string) {
	if n.Get(f.Name) != nil || p.satisfied(n, f) {
		return
	}
	sev := SeverityError
	msg := fmt.Sprintf("Missing required field '%s'", fieldPath(path, f.Name))
	if !f.Required {
		sev = SeverityWarning
		msg = fmt.Sprintf("Missing recommended field '%s'", fieldPath(path, f.Name))
	}
	p.report(TagMissingRequiredField, sev, anchor(n), msg, n.Range, f.Name)
}

func (p *pass) satisfied(n *parser.Node, f *schema.Field) bool {
	for _, alt := range f.SatisfiedBy {
		if n.Get(alt) != nil {
			return true
		}
	}
	return false
}

func (p *pass) field(n *parser.Node, f *schema.Field, path []string) {
	if !substituted(n) && !f.Type.Matches(n) {
		p.report(TagTypeMismatch, SeverityError, n.ValueRange,
			fmt.Sprintf("Field '%s' must be %s %s", f.Name, article(f.Type), f.Type), n.Parent().Range, f.Name)
		return
	}

	if f.NonEmpty && n.IsEmpty() {
		switch {
		case f.Type == schema.TypeString:
			msg := f.EmptyMessage
			if msg == "" {
				msg = fmt.Sprintf("Field '%s' must not be empty", parser.JoinPath(path))
			}
			p.report(TagInvalidValue, SeverityError, emptyValueRange(n), msg, n.Parent().Range, f.Name)
		default:
			msg := f.EmptyMessage
			if msg == "" {
				msg = fmt.Sprintf("Field '%s' must have at least one entry", parser.JoinPath(path))
			}
			p.report(TagEmptyRequiredCollection, SeverityError, n.Range, msg, n.Parent().Range, f.Name)
		}
		return
	}

	switch n.Kind {
	case parser.ScalarNode:
		if n.IsNull() && f.Type == schema.TypeObject && f.Fields != nil && !f.Fields.Open {
			// A key with nothing under it lacks every required member.
			p.missing(n, f.Fields, path)
			return
		}
		p.value(n, f, path)
	case parser.MappingNode:
		p.walk(n, f.Fields, path)
	case parser.SequenceNode:
		if f.Items == nil {
			return
		}
		itemPath := extend(path, parser.ItemStep)
		for _, item := range n.Children {
			if item.Kind != parser.MappingNode {
				p.report(TagTypeMismatch, SeverityError, item.Range,
					fmt.Sprintf("Items of '%s' must be objects", f.Name), n.Range)
				continue
			}
			p.walk(item, f.Items, itemPath)
		}
	}
}

// value runs the CUE constraints registered for path against a scalar.
func (p *pass) value(n *parser.Node, f *schema.Field, path []string) {
	if n.IsNull() || substituted(n) || p.v.Schema == nil {
		return
	}
	key := parser.JoinPath(path)
	if err := p.v.Schema.Check(p.kind, key, scalar(n)); err != nil {
		p.report(TagInvalidValue, SeverityError, n.ValueRange,
			fmt.Sprintf("Invalid value for '%s': %s", key, schema.Message(err)), n.Parent().Range, f.Name)
	}
}

// scalar converts a node to the Go value CUE should see.
func scalar(n *parser.Node) interface{} {
	switch n.Tag {
	case "!!int", "!!bool", "!!float":
		var out interface{}
		if err := yaml.Unmarshal([]byte(n.Value), &out); err == nil && out != nil {
			return out
		}
	}
	return n.Value
}

// substituted reports a value using $(...) variable substitution. Those are
// resolved at run time and cannot be checked statically.
func substituted(n *parser.Node) bool {
	return n.Kind == parser.ScalarNode && strings.Contains(n.Value, "$(")
}

func emptyValueRange(n *parser.Node) parser.Range {
	if n.ValueRange.IsEmpty() && n.HasKey {
		return n.KeyRange
	}
	return n.ValueRange
}

func article(t schema.Type) string {
	switch t {
	case schema.TypeArray, schema.TypeObject, schema.TypeInteger, schema.TypeAny:
		return "an"
	default:
		return "a"
	}
}
