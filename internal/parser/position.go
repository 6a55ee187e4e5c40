package parser

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var ErrPositionOutOfRange = errors.New("position out of range")

// LineIndex maps between byte offsets and UTF-16 positions of a text.
type LineIndex struct {
	text   string
	starts []int
}

func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{text: text, starts: starts}
}

func (li *LineIndex) Text() string {
	return li.text
}

func (li *LineIndex) LineCount() int {
	return len(li.starts)
}

// Line returns line i without its terminator.
func (li *LineIndex) Line(i int) string {
	if i < 0 || i >= len(li.starts) {
		return ""
	}
	end := len(li.text)
	if i+1 < len(li.starts) {
		end = li.starts[i+1] - 1
	}
	line := li.text[li.starts[i]:end]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// LineStart returns the byte offset of line i.
func (li *LineIndex) LineStart(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(li.starts) {
		return len(li.text)
	}
	return li.starts[i]
}

// LineEnd returns the byte offset just past the content of line i.
func (li *LineIndex) LineEnd(i int) int {
	return li.LineStart(i) + len(li.Line(i))
}

// Offset converts a UTF-16 position into a byte offset. Positions past the
// end of a line, past the last line, or inside a surrogate pair fail.
func (li *LineIndex) Offset(pos Position) (int, error) {
	if pos.Line < 0 || pos.Line >= len(li.starts) || pos.Character < 0 {
		return 0, fmt.Errorf("%w: line %d", ErrPositionOutOfRange, pos.Line)
	}
	line := li.Line(pos.Line)
	units := 0
	for i, r := range line {
		if units == pos.Character {
			return li.starts[pos.Line] + i, nil
		}
		units += utf16Len(r)
		if units > pos.Character {
			return 0, fmt.Errorf("%w: %d:%d splits a character", ErrPositionOutOfRange, pos.Line, pos.Character)
		}
	}
	if units == pos.Character {
		return li.starts[pos.Line] + len(line), nil
	}
	return 0, fmt.Errorf("%w: %d:%d past end of line", ErrPositionOutOfRange, pos.Line, pos.Character)
}

// Position converts a byte offset into a UTF-16 position. Offsets are clamped
// to the text.
func (li *LineIndex) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(li.text) {
		offset = len(li.text)
	}
	line := li.lineOf(offset)
	start := li.starts[line]
	end := start + len(li.Line(line))
	if offset > end {
		offset = end
	}
	return Position{Line: line, Character: utf16Count(li.text[start:offset])}
}

// RuneOffset converts a zero-based line and rune column into a byte offset.
func (li *LineIndex) RuneOffset(line, col int) int {
	if line < 0 {
		return 0
	}
	if line >= len(li.starts) {
		return len(li.text)
	}
	text := li.Line(line)
	off := li.starts[line]
	for i := range text {
		if col == 0 {
			return off + i
		}
		col--
	}
	return off + len(text)
}

// End returns the position just past the last character.
func (li *LineIndex) End() Position {
	return li.Position(len(li.text))
}

func (li *LineIndex) lineOf(offset int) int {
	lo, hi := 0, len(li.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if li.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func utf16Len(r rune) int {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}
	return 1
}

func utf16Count(s string) int {
	n := 0
	for _, r := range s {
		n += utf16Len(r)
	}
	return n
}
