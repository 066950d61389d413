// Package inifile reads and rewrites the OBS key/value configuration format
// ([Section] headers followed by key=value lines) without disturbing anything
// it was not asked to change.
//
// The document keeps every physical line, so Serialize reproduces the input
// byte for byte when no value was modified. A UTF-8 byte-order mark, CRLF line
// endings, comments and blank lines all survive a round trip.
//
// Lines holding key=value pairs before the first header belong to an implicit
// default section named "" which is emitted without a header. Repeated
// headers with the same name are merged for lookups, with later values
// winning, while their physical blocks stay where they were.
package inifile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMalformedConfig is returned for input that is not a key/value config.
var ErrMalformedConfig = errors.New("malformed config")

var bom = []byte{0xEF, 0xBB, 0xBF}

type lineKind int

const (
	kindBlank lineKind = iota
	kindComment
	kindHeader
	kindKeyValue
)

type line struct {
	kind  lineKind
	raw   string // without terminator
	eol   string // "\n", "\r\n" or "" for an unterminated last line
	key   string
	value string
}

type block struct {
	name  string
	lines []*line // for named blocks lines[0] is the header
}

// Document is a parsed configuration file.
type Document struct {
	bom     bool
	newline string
	blocks  []*block // blocks[0] is always the default section
}

// New returns an empty document.
func New() *Document {
	return &Document{
		newline: "\n",
		blocks:  []*block{{name: ""}},
	}
}

// Parse parses text into a Document.
func Parse(data []byte) (*Document, error) {
	doc := New()
	if bytes.HasPrefix(data, bom) {
		doc.bom = true
		data = data[len(bom):]
	}

	text := string(data)
	current := doc.blocks[0]
	lineNo := 0
	newlineSeen := false

	for len(text) > 0 {
		lineNo++
		var raw, eol string
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			raw, text = text[:i], text[i+1:]
			eol = "\n"
			if strings.HasSuffix(raw, "\r") {
				raw = raw[:len(raw)-1]
				eol = "\r\n"
			}
			if !newlineSeen {
				doc.newline = eol
				newlineSeen = true
			}
		} else {
			raw, text = text, ""
		}

		l, err := classify(raw, eol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if l.kind == kindHeader {
			current = &block{name: l.key, lines: []*line{l}}
			doc.blocks = append(doc.blocks, current)
			continue
		}
		current.lines = append(current.lines, l)
	}

	return doc, nil
}

func classify(raw, eol string) (*line, error) {
	l := &line{raw: raw, eol: eol}
	trimmed := strings.TrimSpace(raw)

	switch {
	case trimmed == "":
		l.kind = kindBlank
	case trimmed[0] == ';' || trimmed[0] == '#':
		l.kind = kindComment
	case trimmed[0] == '[':
		if !strings.HasSuffix(trimmed, "]") {
			return nil, fmt.Errorf("%w: unterminated section header %q", ErrMalformedConfig, trimmed)
		}
		l.kind = kindHeader
		l.key = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	default:
		i := strings.IndexByte(raw, '=')
		if i < 0 {
			return nil, fmt.Errorf("%w: expected key=value, got %q", ErrMalformedConfig, trimmed)
		}
		l.kind = kindKeyValue
		l.key = strings.TrimSpace(raw[:i])
		l.value = strings.TrimSpace(raw[i+1:])
	}
	return l, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Serialize renders the document back to text.
func (d *Document) Serialize() []byte {
	var buf bytes.Buffer
	if d.bom {
		buf.Write(bom)
	}
	for _, b := range d.blocks {
		for _, l := range b.lines {
			buf.WriteString(l.raw)
			buf.WriteString(l.eol)
		}
	}
	return buf.Bytes()
}

// HasBOM reports whether the document starts with a UTF-8 byte-order mark.
func (d *Document) HasBOM() bool {
	return d.bom
}

// SetBOM controls whether Serialize emits a byte-order mark.
func (d *Document) SetBOM(v bool) {
	d.bom = v
}

// Sections returns section names in order of first appearance.
// The default section is included only when it holds keys.
func (d *Document) Sections() []string {
	var names []string
	seen := make(map[string]bool)
	for i, b := range d.blocks {
		if i == 0 && !b.hasKeys() {
			continue
		}
		if !seen[b.name] {
			seen[b.name] = true
			names = append(names, b.name)
		}
	}
	return names
}

// HasSection reports whether the section exists.
func (d *Document) HasSection(section string) bool {
	for i, b := range d.blocks {
		if b.name != section {
			continue
		}
		if i > 0 || b.hasKeys() {
			return true
		}
	}
	return false
}

// Keys returns the keys of a section in order of first appearance.
func (d *Document) Keys(section string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, b := range d.blocks {
		if b.name != section {
			continue
		}
		for _, l := range b.lines {
			if l.kind == kindKeyValue && !seen[l.key] {
				seen[l.key] = true
				keys = append(keys, l.key)
			}
		}
	}
	return keys
}

// Get returns the value of key in section. When the key appears more than
// once the last occurrence wins.
func (d *Document) Get(section, key string) (string, bool) {
	var value string
	found := false
	for _, b := range d.blocks {
		if b.name != section {
			continue
		}
		for _, l := range b.lines {
			if l.kind == kindKeyValue && l.key == key {
				value, found = l.value, true
			}
		}
	}
	return value, found
}

// Set assigns value to key in section, creating the section if needed.
// Existing occurrences are rewritten in place; a new key is appended to the
// last block of the section.
func (d *Document) Set(section, key, value string) {
	updated := false
	var last *block
	for i, b := range d.blocks {
		if b.name != section {
			continue
		}
		if i > 0 || section == "" {
			last = b
		}
		for _, l := range b.lines {
			if l.kind == kindKeyValue && l.key == key {
				l.setValue(value)
				updated = true
			}
		}
	}
	if updated {
		return
	}

	if last == nil {
		last = d.appendSection(section)
	}
	d.appendKey(last, key, value)
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := &Document{bom: d.bom, newline: d.newline}
	for _, b := range d.blocks {
		nb := &block{name: b.name, lines: make([]*line, len(b.lines))}
		for i, l := range b.lines {
			cp := *l
			nb.lines[i] = &cp
		}
		c.blocks = append(c.blocks, nb)
	}
	return c
}

func (d *Document) appendSection(section string) *block {
	if tail := d.lastLine(); tail != nil {
		if tail.eol == "" {
			tail.eol = d.newline
		}
		if tail.kind != kindBlank {
			prev := d.blocks[len(d.blocks)-1]
			prev.lines = append(prev.lines, &line{kind: kindBlank, eol: d.newline})
		}
	}

	b := &block{
		name: section,
		lines: []*line{{
			kind: kindHeader,
			raw:  "[" + section + "]",
			eol:  d.newline,
			key:  section,
		}},
	}
	d.blocks = append(d.blocks, b)
	return b
}

func (d *Document) appendKey(b *block, key, value string) {
	// Insert after the last non-blank line so trailing blank separators stay
	// between this block and the next header.
	at := len(b.lines)
	for at > 0 && b.lines[at-1].kind == kindBlank {
		at--
	}

	l := &line{kind: kindKeyValue, key: key, eol: d.newline}
	l.setValue(value)

	if at > 0 && b.lines[at-1].eol == "" {
		b.lines[at-1].eol = d.newline
		l.eol = ""
	}

	b.lines = append(b.lines, nil)
	copy(b.lines[at+1:], b.lines[at:])
	b.lines[at] = l
}

func (d *Document) lastLine() *line {
	for i := len(d.blocks) - 1; i >= 0; i-- {
		if n := len(d.blocks[i].lines); n > 0 {
			return d.blocks[i].lines[n-1]
		}
	}
	return nil
}

func (b *block) hasKeys() bool {
	for _, l := range b.lines {
		if l.kind == kindKeyValue {
			return true
		}
	}
	return false
}

func (l *line) setValue(value string) {
	prefix := l.key
	if i := strings.IndexByte(l.raw, '='); i >= 0 {
		prefix = l.raw[:i]
	}
	l.raw = prefix + "=" + value
	l.value = value
}
