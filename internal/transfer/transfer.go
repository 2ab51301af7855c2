// Package transfer exports the local store to a single document and imports
// such documents back.
//
// The document is a JSON object with a required top-level goals array, one
// optional field per other dataset, and the metadata fields exportedAt
// (RFC 3339) and version. Export always writes every field. Import is
// merge-by-presence: a field overwrites its dataset only when it is present
// and non-empty, so an import never wipes data the file does not carry.
//
// A YAML rendition of the same document is supported for hand editing.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"

	"github.com/goalritual/goalritual/internal/model"
	"github.com/goalritual/goalritual/internal/store"
)

// Version is the document version written by Export.
const Version = "2.0"

var (
	// ErrInvalidImport is returned for documents that fail validation.
	ErrInvalidImport = errors.New("invalid import file")
	// ErrUnsupportedVersion is returned for documents from a newer major
	// version.
	ErrUnsupportedVersion = errors.New("unsupported export version")
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from a file extension; anything that is
// not .yaml or .yml is JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseFormat parses a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json or yaml)", s)
	}
}

// Document is a parsed export document.
type Document struct {
	// Fields holds the raw JSON of every present dataset field, keyed by
	// dataset key.
	Fields     map[string]json.RawMessage
	ExportedAt string
	Version    string
	// Goals is the decoded goals array, for previews.
	Goals []model.Goal
}

// Export renders the store as a document in the given format.
func Export(ctx context.Context, s *store.Store, format Format, now time.Time) ([]byte, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}

	data, err := Encode(snap, now)
	if err != nil {
		return nil, err
	}
	if format == FormatYAML {
		return jsonToYAML(data)
	}
	return data, nil
}

// Encode renders a snapshot as an indented JSON document. Every dataset
// field is written; absent datasets get their empty default.
func Encode(snap store.Snapshot, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, d := range store.Datasets {
		if i > 0 {
			buf.WriteByte(',')
		}
		raw, err := fieldValue(d, snap[d.Key])
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "%q:%s", d.ExportField, raw)
	}

	fmt.Fprintf(&buf, `,"exportedAt":%q,"version":%q}`, now.UTC().Format(time.RFC3339), Version)

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// fieldValue returns the JSON for one dataset, substituting the empty
// default for absent or unreadable values.
func fieldValue(d store.Dataset, value string) ([]byte, error) {
	if d.Kind == store.KindText {
		return json.Marshal(value)
	}
	if value != "" && gjson.Valid(value) {
		r := gjson.Parse(value)
		if (d.Kind == store.KindList && r.IsArray()) || (d.Kind == store.KindObject && r.IsObject()) {
			return []byte(value), nil
		}
	}
	if d.Kind == store.KindObject {
		return []byte("{}"), nil
	}
	return []byte("[]"), nil
}

// Parse decodes and validates a document. Nothing is written.
func Parse(data []byte, format Format) (*Document, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
		data = converted
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidImport)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidImport)
	}

	goals := root.Get("goals")
	switch {
	case !goals.Exists():
		return nil, fmt.Errorf("%w: missing goals", ErrInvalidImport)
	case !goals.IsArray():
		return nil, fmt.Errorf("%w: goals must be an array", ErrInvalidImport)
	case len(goals.Array()) == 0:
		return nil, fmt.Errorf("%w: goals is empty", ErrInvalidImport)
	}

	doc := &Document{
		Fields:     make(map[string]json.RawMessage),
		ExportedAt: root.Get("exportedAt").String(),
		Version:    root.Get("version").String(),
	}
	if err := checkVersion(doc.Version); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(goals.Raw), &doc.Goals); err != nil {
		return nil, fmt.Errorf("%w: goals: %v", ErrInvalidImport, err)
	}
	for i := range doc.Goals {
		if err := doc.Goals[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: goal %d: %v", ErrInvalidImport, i, err)
		}
	}

	for _, d := range store.Datasets {
		field := root.Get(d.ExportField)
		if !field.Exists() || field.Type == gjson.Null {
			continue
		}
		switch d.Kind {
		case store.KindText:
			if field.Type != gjson.String {
				return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidImport, d.ExportField)
			}
		case store.KindList:
			if !field.IsArray() {
				return nil, fmt.Errorf("%w: %s must be an array", ErrInvalidImport, d.ExportField)
			}
		case store.KindObject:
			if !field.IsObject() {
				return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidImport, d.ExportField)
			}
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, []byte(field.Raw)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidImport, d.ExportField, err)
		}
		doc.Fields[d.Key] = json.RawMessage(compact.Bytes())
	}

	return doc, nil
}

// checkVersion rejects documents whose major version is newer than ours.
// A missing version is accepted as a legacy export.
func checkVersion(v string) error {
	if v == "" {
		return nil
	}
	sv := "v" + strings.TrimPrefix(v, "v")
	if !semver.IsValid(sv) {
		return fmt.Errorf("%w: malformed version %q", ErrInvalidImport, v)
	}
	if semver.Compare(semver.Major(sv), semver.Major("v"+Version)) > 0 {
		return fmt.Errorf("%w: %s (newest supported is %s)", ErrUnsupportedVersion, v, Version)
	}
	return nil
}

// Result reports what an import changed.
type Result struct {
	// Written lists the dataset keys that were overwritten.
	Written []string
	// Kept lists the dataset keys left untouched because the document did
	// not carry them or carried an empty value.
	Kept []string
}

// Apply writes every present, non-empty field of doc into s in one
// transaction. Other datasets keep their current value.
func Apply(ctx context.Context, s *store.Store, doc *Document) (*Result, error) {
	current, err := s.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}

	next := current.Clone()
	res := &Result{}
	for _, d := range store.Datasets {
		raw, ok := doc.Fields[d.Key]
		value := ""
		if ok {
			value = string(raw)
			if d.Kind == store.KindText {
				value = gjson.ParseBytes(raw).String()
			}
		}
		if !ok || d.IsEmpty(value) {
			res.Kept = append(res.Kept, d.Key)
			continue
		}
		next[d.Key] = value
		res.Written = append(res.Written, d.Key)
	}

	if err := s.Replace(ctx, next, store.OriginImport); err != nil {
		return nil, fmt.Errorf("failed to write import: %w", err)
	}
	return res, nil
}

// Import parses data and applies it.
func Import(ctx context.Context, s *store.Store, data []byte, format Format) (*Result, error) {
	doc, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	return Apply(ctx, s, doc)
}
