package parser

import (
	"strings"

	"go.yaml.in/yaml/v3"
)

// lexer recovers the source extent of tokens that the YAML composer only
// reports a start mark for.
type lexer struct {
	text  string
	lines *LineIndex
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t'
}

func isFlowIndicator(c byte) bool {
	return c == ',' || c == '[' || c == ']' || c == '{' || c == '}'
}

func indentOf(line string) int {
	n := 0
	for n < len(line) && line[n] == ' ' {
		n++
	}
	return n
}

// skipProperties steps over a leading tag and/or anchor.
func (l *lexer) skipProperties(off int) int {
	for off < len(l.text) && (l.text[off] == '!' || l.text[off] == '&') {
		for off < len(l.text) && !isBlank(l.text[off]) && l.text[off] != '\n' && l.text[off] != '\r' {
			off++
		}
		for off < len(l.text) && isBlank(l.text[off]) {
			off++
		}
	}
	return off
}

// scalarEnd returns the byte offset just past a scalar that starts at off.
func (l *lexer) scalarEnd(off int, n *yaml.Node, flow bool) int {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" && n.Value == "" {
		return off
	}
	off = l.skipProperties(off)
	if off >= len(l.text) {
		return len(l.text)
	}
	switch {
	case n.Kind == yaml.AliasNode:
		return l.plainEnd(off, true)
	case n.Style&yaml.DoubleQuotedStyle != 0:
		return l.doubleQuotedEnd(off)
	case n.Style&yaml.SingleQuotedStyle != 0:
		return l.singleQuotedEnd(off)
	case n.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0:
		return l.blockScalarEnd(off)
	}
	end := l.plainEnd(off, flow)
	if !flow {
		end = l.plainContinuation(off, end, n.Value)
	}
	return end
}

func (l *lexer) doubleQuotedEnd(off int) int {
	for i := off + 1; i < len(l.text); i++ {
		switch l.text[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(l.text)
}

func (l *lexer) singleQuotedEnd(off int) int {
	for i := off + 1; i < len(l.text); i++ {
		if l.text[i] != '\'' {
			continue
		}
		if i+1 < len(l.text) && l.text[i+1] == '\'' {
			i++
			continue
		}
		return i + 1
	}
	return len(l.text)
}

// plainEnd scans a plain scalar on a single line.
func (l *lexer) plainEnd(off int, flow bool) int {
	line := l.lines.Position(off).Line
	lineEnd := l.lines.LineEnd(line)
	i := off
	for i < lineEnd {
		c := l.text[i]
		if isBlank(c) && i+1 < lineEnd && l.text[i+1] == '#' {
			break
		}
		if c == ':' && (i+1 == lineEnd || isBlank(l.text[i+1]) || (flow && isFlowIndicator(l.text[i+1]))) {
			break
		}
		if flow && isFlowIndicator(c) {
			break
		}
		i++
	}
	for i > off && isBlank(l.text[i-1]) {
		i--
	}
	return i
}

// plainContinuation extends a plain scalar over folded continuation lines
// until the folded text accounts for the composed value.
func (l *lexer) plainContinuation(off, end int, value string) int {
	consumed := end - off
	if consumed >= len(value) {
		return end
	}
	line := l.lines.Position(off).Line + 1
	for consumed < len(value) && line < l.lines.LineCount() {
		text := l.lines.Line(line)
		if idx := strings.Index(text, " #"); idx >= 0 {
			text = text[:idx]
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			consumed++
			line++
			continue
		}
		consumed += 1 + len(trimmed)
		end = l.lines.LineStart(line) + strings.Index(l.lines.Line(line), trimmed) + len(trimmed)
		line++
	}
	return end
}

// blockScalarEnd covers a literal or folded scalar: the header plus every
// following line indented deeper than the header line.
func (l *lexer) blockScalarEnd(off int) int {
	header := l.lines.Position(off).Line
	end := off + 1
	for end < len(l.text) && strings.IndexByte("+-0123456789", l.text[end]) >= 0 {
		end++
	}
	parent := indentOf(l.lines.Line(header))
	for i := header + 1; i < l.lines.LineCount(); i++ {
		line := l.lines.Line(i)
		if strings.TrimSpace(line) == "" {
			continue
		}
		if indentOf(line) <= parent {
			break
		}
		end = l.lines.LineEnd(i)
	}
	return end
}

// flowEnd returns the offset just past the bracket matching the one at off.
func (l *lexer) flowEnd(off int) int {
	depth := 0
	for i := off; i < len(l.text); i++ {
		switch c := l.text[i]; c {
		case '"':
			i = l.doubleQuotedEnd(i) - 1
		case '\'':
			i = l.singleQuotedEnd(i) - 1
		case '#':
			if i == 0 || isBlank(l.text[i-1]) || l.text[i-1] == '\n' {
				for i < len(l.text) && l.text[i] != '\n' {
					i++
				}
			}
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(l.text)
}
