// Package scene patches OBS scene-collection documents so that the companion
// launcher script is registered in their scripts-tool module.
//
// Documents are edited in place with gjson/sjson, so everything outside the
// touched array keeps its original bytes.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/omuapps/obssync/pkg/types"
)

var (
	// ErrSchemaConflict is returned when a node has the wrong JSON type.
	ErrSchemaConflict = errors.New("schema conflict")
	// ErrInvalidJSON is returned for documents that do not parse.
	ErrInvalidJSON = errors.New("invalid JSON")
)

// ScriptsToolPath is where OBS keeps the scripts loaded for a scene collection.
var ScriptsToolPath = []string{"modules", "scripts-tool"}

// Document is a scene-collection JSON document.
type Document struct {
	data    []byte
	changed bool
}

// Parse validates data as a JSON object document.
func Parse(data []byte) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrSchemaConflict)
	}
	return &Document{data: append([]byte(nil), data...)}, nil
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Bytes returns the current document.
func (d *Document) Bytes() []byte {
	return d.data
}

// Clone returns an independent copy of the document.
func (d *Document) Clone() *Document {
	return &Document{data: append([]byte(nil), d.data...), changed: d.changed}
}

// Changed reports whether the document was modified since it was parsed.
func (d *Document) Changed() bool {
	return d.changed
}

// EnsurePath makes sure the nested path exists, creating objects for the
// intermediate keys and an array for the last one. Null or empty nodes of the
// wrong shape are replaced; anything else of the wrong shape is a conflict.
func (d *Document) EnsurePath(keys ...string) (*Records, error) {
	if len(keys) == 0 {
		return nil, errors.New("empty path")
	}

	for i := range keys {
		path := joinPath(keys[:i+1])
		last := i == len(keys)-1
		node := gjson.GetBytes(d.data, path)

		switch {
		case last && node.IsArray(), !last && node.IsObject():
			continue
		case !node.Exists(), isEmpty(node):
			raw := "{}"
			if last {
				raw = "[]"
			}
			data, err := sjson.SetRawBytes(d.data, path, []byte(raw))
			if err != nil {
				return nil, fmt.Errorf("create %s: %w", path, err)
			}
			d.data = data
			d.changed = true
		default:
			want := "object"
			if last {
				want = "array"
			}
			return nil, fmt.Errorf("%w: %s is %s, want %s", ErrSchemaConflict, path, describe(node), want)
		}
	}

	return &Records{doc: d, path: joinPath(keys)}, nil
}

// Records is the registration array at a path inside a Document.
type Records struct {
	doc  *Document
	path string
}

// List returns the records whose path is a string. Other entries are skipped.
func (r *Records) List() []types.RegistrationRecord {
	var records []types.RegistrationRecord
	gjson.GetBytes(r.doc.data, r.path).ForEach(func(_, value gjson.Result) bool {
		p := value.Get("path")
		if p.Type != gjson.String {
			return true
		}
		rec := types.RegistrationRecord{Path: p.String()}
		if s := value.Get("settings"); s.Exists() {
			rec.Settings = json.RawMessage(s.Raw)
		}
		records = append(records, rec)
		return true
	})
	return records
}

// Contains reports whether a record equal to path under matcher exists.
func (r *Records) Contains(path string, matcher PathMatcher) bool {
	for _, rec := range r.List() {
		if matcher.Equal(rec.Path, path) {
			return true
		}
	}
	return false
}

// RegisterIfAbsent appends {path, settings: {}} unless an equal path is
// already registered. It reports whether the document changed.
func (r *Records) RegisterIfAbsent(path string, matcher PathMatcher) (bool, error) {
	if r.Contains(path, matcher) {
		return false, nil
	}

	raw, err := json.Marshal(types.RegistrationRecord{
		Path:     matcher.Canonical(path),
		Settings: json.RawMessage("{}"),
	})
	if err != nil {
		return false, err
	}

	data, err := sjson.SetRawBytes(r.doc.data, r.path+".-1", raw)
	if err != nil {
		return false, fmt.Errorf("append to %s: %w", r.path, err)
	}
	r.doc.data = data
	r.doc.changed = true
	return true, nil
}

func isEmpty(node gjson.Result) bool {
	switch {
	case node.Type == gjson.Null:
		return true
	case node.IsObject():
		return len(node.Map()) == 0
	case node.IsArray():
		return len(node.Array()) == 0
	}
	return false
}

func describe(node gjson.Result) string {
	switch {
	case node.IsObject():
		return "an object"
	case node.IsArray():
		return "an array"
	}
	switch node.Type {
	case gjson.True, gjson.False:
		return "a boolean"
	case gjson.Number:
		return "a number"
	case gjson.String:
		return "a string"
	}
	return "null"
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`!`, `\!`,
	`=`, `\=`,
	`<`, `\<`,
	`>`, `\>`,
	`%`, `\%`,
)

func joinPath(keys []string) string {
	escaped := make([]string, len(keys))
	for i, k := range keys {
		escaped[i] = pathEscaper.Replace(k)
	}
	return strings.Join(escaped, ".")
}
