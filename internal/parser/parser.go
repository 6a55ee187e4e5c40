package parser

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Error is a recovered syntax error.
type Error struct {
	Range   Range
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Range.Start.Line+1, e.Range.Start.Character+1, e.Message)
}

// Tree is the parse of one text. A YAML stream may hold several documents,
// each with its own root.
type Tree struct {
	Roots  []*Node
	Errors []*Error
	Lines  *LineIndex

	docs    []*yaml.Node
	partial map[*Node]bool
}

// Partial reports whether root was salvaged from a document that failed to
// parse.
func (t *Tree) Partial(root *Node) bool {
	return t != nil && t.partial[root]
}

// Root returns the first document root.
func (t *Tree) Root() *Node {
	if t == nil || len(t.Roots) == 0 {
		return nil
	}
	return t.Roots[0]
}

// RootAt returns the document root a position belongs to: the last root
// starting on or before the position's line.
func (t *Tree) RootAt(pos Position) *Node {
	if t == nil || len(t.Roots) == 0 {
		return nil
	}
	best := t.Roots[0]
	for _, r := range t.Roots[1:] {
		if r.Range.Start.Line <= pos.Line {
			best = r
		}
	}
	return best
}

// FindNodeAt returns the innermost node containing pos, or nil.
func (t *Tree) FindNodeAt(pos Position) *Node {
	if t == nil {
		return nil
	}
	for _, r := range t.Roots {
		if n := r.FindNodeAt(pos); n != nil {
			return n
		}
	}
	return nil
}

// YAML returns the composed documents, for re-serialization. Documents that
// only parsed partially are not included.
func (t *Tree) YAML() []*yaml.Node {
	return t.docs
}

func (t *Tree) Text() string {
	return t.Lines.Text()
}

type Parser struct {
	lines *LineIndex
	lex   *lexer
	tree  *Tree
}

func NewParser(text string) *Parser {
	lines := NewLineIndex(text)
	return &Parser{
		lines: lines,
		lex:   &lexer{text: text, lines: lines},
		tree:  &Tree{Lines: lines},
	}
}

// Parse never fails: syntax errors end up in Tree.Errors next to whatever
// structure could be recovered.
func Parse(text string) *Tree {
	return NewParser(text).Parse()
}

var lineErrRe = regexp.MustCompile(`^yaml: line (\d+): (.*)$`)

func (p *Parser) Parse() *Tree {
	text := p.lines.Text()
	src := text
	from := 0
	for {
		dec := yaml.NewDecoder(strings.NewReader(src))
		var failed error
		for {
			var doc yaml.Node
			err := dec.Decode(&doc)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				failed = err
				break
			}
			p.addDocument(&doc, true)
		}
		if failed == nil {
			break
		}
		resume := p.recover(failed, from)
		if resume < 0 {
			break
		}
		from = resume
		// Blank out everything before the next document so that line and
		// column marks keep pointing into the original text.
		src = strings.Repeat("\n", resume) + text[p.lines.LineStart(resume):]
	}
	return p.tree
}

func (p *Parser) addDocument(doc *yaml.Node, complete bool) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return
	}
	root, _ := p.convert(doc.Content[0], nil, false)
	p.tree.Roots = append(p.tree.Roots, root)
	if complete {
		p.tree.docs = append(p.tree.docs, doc)
		return
	}
	if p.tree.partial == nil {
		p.tree.partial = make(map[*Node]bool)
	}
	p.tree.partial[root] = true
}

// recover records err, salvages the part of the failing document before the
// error line and returns the separator line to resume at (or -1). The
// failing document starts at or after line from.
func (p *Parser) recover(err error, from int) int {
	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	errLine := -1
	if m := lineErrRe.FindStringSubmatch(err.Error()); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			errLine = n - 1
			msg = m[2]
		}
	}
	if errLine >= p.lines.LineCount() {
		errLine = p.lines.LineCount() - 1
	}
	if errLine >= 0 && errLine < from {
		errLine = from
	}
	start := p.documentStart(errLine - 1)
	if start < from {
		start = from
	}
	if errLine < 0 {
		p.tree.Errors = append(p.tree.Errors, &Error{Range: p.lineRange(start), Message: msg})
		return -1
	}
	p.tree.Errors = append(p.tree.Errors, &Error{Range: p.lineRange(errLine), Message: msg})

	// Best effort: the document up to the offending line, shrinking a few
	// lines when the composer reports the error late.
	for cut := errLine; cut > start && cut > errLine-3; cut-- {
		prefix := strings.Repeat("\n", start) + p.lines.Text()[p.lines.LineStart(start):p.lines.LineStart(cut)]
		var doc yaml.Node
		if yaml.Unmarshal([]byte(prefix), &doc) == nil {
			p.addDocument(&doc, false)
			break
		}
	}

	for i := errLine; i < p.lines.LineCount(); i++ {
		if i > start && i > from && isSeparator(p.lines.Line(i)) {
			return i
		}
	}
	return -1
}

// documentStart finds the first line of the document containing line.
func (p *Parser) documentStart(line int) int {
	for i := line; i >= 0; i-- {
		if isSeparator(p.lines.Line(i)) {
			return i
		}
	}
	return 0
}

func isSeparator(line string) bool {
	return line == "---" || strings.HasPrefix(line, "--- ")
}

func (p *Parser) lineRange(line int) Range {
	if line < 0 {
		line = 0
	}
	text := p.lines.Line(line)
	start := p.lines.LineStart(line) + indentOf(text)
	return Range{Start: p.lines.Position(start), End: p.lines.Position(p.lines.LineEnd(line))}
}

func (p *Parser) offsetOf(n *yaml.Node) int {
	return p.lines.RuneOffset(n.Line-1, n.Column-1)
}

func (p *Parser) span(start, end int) Range {
	if end < start {
		end = start
	}
	return Range{Start: p.lines.Position(start), End: p.lines.Position(end)}
}

// convert builds the Node for y and returns it with the byte offset just
// past its source text.
func (p *Parser) convert(y *yaml.Node, parent *Node, flow bool) (*Node, int) {
	n := &Node{parent: parent, Tag: y.ShortTag(), Style: y.Style}
	start := p.offsetOf(y)
	end := start

	switch y.Kind {
	case yaml.MappingNode:
		n.Kind = MappingNode
		inFlow := flow || y.Style&yaml.FlowStyle != 0
		seen := make(map[string]bool)
		for i := 0; i+1 < len(y.Content); i += 2 {
			k, v := y.Content[i], y.Content[i+1]
			keyStart := p.offsetOf(k)
			keyEnd := p.lex.scalarEnd(keyStart, k, inFlow)
			child, valueEnd := p.convert(v, n, inFlow)
			child.HasKey = true
			child.Key = k.Value
			if k.Kind != yaml.ScalarNode {
				child.Key = strings.TrimSpace(p.lines.Text()[keyStart:keyEnd])
			}
			child.KeyRange = p.span(keyStart, keyEnd)
			if valueEnd < keyEnd {
				valueEnd = keyEnd
			}
			child.Range = p.span(keyStart, valueEnd)
			if seen[child.Key] {
				p.tree.Errors = append(p.tree.Errors, &Error{
					Range:   child.KeyRange,
					Message: fmt.Sprintf("duplicate key '%s'", child.Key),
				})
			}
			seen[child.Key] = true
			n.Children = append(n.Children, child)
			if valueEnd > end {
				end = valueEnd
			}
		}
		if y.Style&yaml.FlowStyle != 0 {
			end = p.lex.flowEnd(start)
		}
	case yaml.SequenceNode:
		n.Kind = SequenceNode
		inFlow := flow || y.Style&yaml.FlowStyle != 0
		for _, item := range y.Content {
			child, itemEnd := p.convert(item, n, inFlow)
			n.Children = append(n.Children, child)
			if itemEnd > end {
				end = itemEnd
			}
		}
		if y.Style&yaml.FlowStyle != 0 {
			end = p.lex.flowEnd(start)
		}
	case yaml.AliasNode:
		n.Kind = ScalarNode
		n.Value = "*" + y.Value
		end = p.lex.scalarEnd(start, y, flow)
	default:
		n.Kind = ScalarNode
		n.Value = y.Value
		end = p.lex.scalarEnd(start, y, flow)
	}

	n.ValueRange = p.span(start, end)
	n.Range = n.ValueRange
	return n, end
}
