package printer

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ESC/POS control bytes
const (
	ESC = 0x1B
	GS  = 0x1D
	LF  = 0x0A
)

// Align is a text alignment mode
type Align byte

const (
	AlignLeft   Align = 0
	AlignCenter Align = 1
	AlignRight  Align = 2
)

// Size is a character size selector for GS !
type Size byte

const (
	SizeNormal Size = 0x00
	SizeDouble Size = 0x11
	SizeWide   Size = 0x10
	SizeTall   Size = 0x01
)

// Paper widths in characters at the normal font
const (
	Width58mm = 32
	Width80mm = 48
)

// Document accumulates an ESC/POS byte stream. Column layout counts runes,
// not bytes, so currency symbols like ₹ line up.
type Document struct {
	buf   bytes.Buffer
	width int
}

// NewDocument creates a document for a printer with the given character width
func NewDocument(width int) *Document {
	if width <= 0 {
		width = Width58mm
	}
	d := &Document{width: width}
	d.buf.Write([]byte{ESC, '@'})
	return d
}

// Width returns the character width of the document
func (d *Document) Width() int {
	return d.width
}

func (d *Document) Align(a Align) *Document {
	d.buf.Write([]byte{ESC, 'a', byte(a)})
	return d
}

func (d *Document) Bold(on bool) *Document {
	b := byte(0)
	if on {
		b = 1
	}
	d.buf.Write([]byte{ESC, 'E', b})
	return d
}

func (d *Document) Size(s Size) *Document {
	d.buf.Write([]byte{GS, '!', byte(s)})
	return d
}

// Line writes s followed by a line feed
func (d *Document) Line(s string) *Document {
	d.buf.WriteString(s)
	d.buf.WriteByte(LF)
	return d
}

// Linef writes a formatted line
func (d *Document) Linef(format string, args ...any) *Document {
	return d.Line(fmt.Sprintf(format, args...))
}

// Feed writes n empty lines
func (d *Document) Feed(n int) *Document {
	for i := 0; i < n; i++ {
		d.buf.WriteByte(LF)
	}
	return d
}

// Rule draws a full-width line of c
func (d *Document) Rule(c rune) *Document {
	return d.Line(strings.Repeat(string(c), d.width))
}

// Pair writes left flush left and right flush right on one line
func (d *Document) Pair(left, right string) *Document {
	return d.Line(pad(left, right, d.width))
}

// Item writes "2x Name        123.00". Names that do not fit wrap onto
// indented continuation lines.
func (d *Document) Item(qty int, name, amount string) *Document {
	prefix := fmt.Sprintf("%dx ", qty)
	room := d.width - runeLen(prefix) - runeLen(amount) - 1
	lines := wrap(name, room)

	d.Pair(prefix+lines[0], amount)
	indent := strings.Repeat(" ", runeLen(prefix))
	for _, l := range lines[1:] {
		d.Line(indent + l)
	}
	return d
}

// Cut feeds the paper clear of the cutter and cuts it
func (d *Document) Cut(partial bool) *Document {
	mode := byte(0x00)
	if partial {
		mode = 0x01
	}
	d.Feed(3)
	d.buf.Write([]byte{GS, 'V', mode})
	return d
}

// Bytes returns the accumulated stream
func (d *Document) Bytes() []byte {
	return d.buf.Bytes()
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func pad(left, right string, width int) string {
	spaces := width - runeLen(left) - runeLen(right)
	if spaces < 1 {
		spaces = 1
	}
	return left + strings.Repeat(" ", spaces) + right
}

// wrap splits s into lines of at most width runes, breaking on spaces when possible
func wrap(s string, width int) []string {
	if width < 1 {
		width = 1
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := ""
	for _, w := range words {
		for runeLen(w) > width {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			r := []rune(w)
			lines = append(lines, string(r[:width]))
			w = string(r[width:])
		}
		switch {
		case current == "":
			current = w
		case runeLen(current)+1+runeLen(w) <= width:
			current += " " + w
		default:
			lines = append(lines, current)
			current = w
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
