package parser

import (
	"strings"
)

// Context describes where a cursor sits in a possibly incomplete document,
// recovered from indentation rather than from the parsed tree.
type Context struct {
	// Path holds the mapping keys enclosing the cursor, with ItemStep for
	// sequence items.
	Path []string
	// Key is set when the cursor is in the value position of "key: ".
	Key     string
	InValue bool
	// Prefix is the partially typed word before the cursor.
	Prefix string
	// Siblings are the keys already present in the enclosing mapping.
	Siblings []string
	// Column is the indentation of keys in the enclosing mapping.
	Column int
}

type lineInfo struct {
	indent int
	dash   bool
	keyCol int
	key    string
	hasKey bool
}

func scanLine(line string) (lineInfo, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return lineInfo{}, false
	}
	info := lineInfo{indent: indentOf(line)}
	rest := line[info.indent:]
	col := info.indent
	if rest == "-" || strings.HasPrefix(rest, "- ") {
		info.dash = true
		n := 1
		for n < len(rest) && rest[n] == ' ' {
			n++
		}
		rest = rest[n:]
		col += n
	}
	info.keyCol = col
	info.key, info.hasKey = splitKey(rest)
	return info, true
}

// splitKey returns the key of a "key:" or "key: value" line.
func splitKey(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	if s[0] == '"' || s[0] == '\'' {
		q := s[0]
		end := strings.IndexByte(s[1:], q)
		if end < 0 {
			return "", false
		}
		after := s[end+2:]
		if after == ":" || strings.HasPrefix(after, ": ") {
			return s[1 : end+1], true
		}
		return "", false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		if i+1 == len(s) || s[i+1] == ' ' || s[i+1] == '\t' {
			key := strings.TrimSpace(s[:i])
			return key, key != ""
		}
	}
	return "", false
}

// ContextAt resolves the completion context for pos.
func ContextAt(lines *LineIndex, pos Position) Context {
	var ctx Context
	if pos.Line < 0 || pos.Line >= lines.LineCount() {
		return ctx
	}
	line := lines.Line(pos.Line)
	cut := len(line)
	if off, err := lines.Offset(pos); err == nil {
		cut = off - lines.LineStart(pos.Line)
	}
	before := line[:cut]

	var rev []string
	col := indentOf(before)
	afterItem := false
	rest := before[col:]
	if strings.TrimSpace(rest) == "" {
		col = len(before)
	} else {
		for rest == "-" || strings.HasPrefix(rest, "- ") {
			rev = append(rev, ItemStep)
			afterItem = true
			n := 1
			for n < len(rest) && rest[n] == ' ' {
				n++
			}
			rest = rest[n:]
		}
		if key, ok := splitKey(rest); ok {
			ctx.Key = key
			ctx.InValue = true
			ctx.Prefix = strings.TrimSpace(rest[strings.IndexByte(rest, ':')+1:])
		} else {
			ctx.Prefix = strings.TrimSpace(rest)
		}
	}
	keyCol := col
	itemStart := afterItem
	if afterItem {
		keyCol = len(before) - len(rest)
	}
	ctx.Column = keyCol

	for i := pos.Line - 1; i >= 0 && (col > 0 || afterItem); i-- {
		text := lines.Line(i)
		if isSeparator(text) {
			break
		}
		info, ok := scanLine(text)
		if !ok {
			continue
		}
		if info.dash {
			if info.hasKey && info.keyCol < col && strings.HasSuffix(strings.TrimSpace(text), ":") {
				rev = append(rev, info.key)
				col = info.keyCol
				afterItem = false
			}
			if info.indent < col {
				rev = append(rev, ItemStep)
				col = info.indent
				afterItem = true
			}
			continue
		}
		if !info.hasKey {
			continue
		}
		if info.indent < col || (afterItem && info.indent == col) {
			rev = append(rev, info.key)
			col = info.indent
			afterItem = false
		}
	}

	ctx.Path = make([]string, len(rev))
	for i, s := range rev {
		ctx.Path[len(rev)-1-i] = s
	}
	ctx.Siblings = siblingKeys(lines, pos.Line, keyCol, itemStart)
	return ctx
}

// siblingKeys collects the keys of the mapping whose keys sit at column col
// around line. When the cursor line opens a sequence item, earlier lines
// belong to previous items and are not scanned.
func siblingKeys(lines *LineIndex, line, col int, itemStart bool) []string {
	var keys []string
	// visit returns false once the scan leaves the mapping.
	visit := func(i int, up bool) bool {
		text := lines.Line(i)
		if isSeparator(text) {
			return false
		}
		info, ok := scanLine(text)
		if !ok || info.keyCol > col {
			return true
		}
		if info.keyCol < col {
			return false
		}
		if info.dash && !up {
			return false
		}
		if info.hasKey {
			keys = append(keys, info.key)
		}
		return !info.dash
	}
	if !itemStart {
		for i := line - 1; i >= 0 && visit(i, true); i-- {
		}
	}
	for i := line + 1; i < lines.LineCount() && visit(i, false); i++ {
	}
	return keys
}
