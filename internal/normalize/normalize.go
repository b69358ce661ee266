// Package normalize converts CMS records of either response shape into a
// single flat canonical form and decodes them into model types.
//
// The legacy shape nests fields under "attributes" and wraps relations in
// {"data": ...}; the current shape puts fields on the record itself and
// adds a documentId. Both normalize to the same Record.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is a normalized CMS record.
type Record map[string]any

// ErrNotRecord is returned when the input is not a JSON object.
var ErrNotRecord = errors.New("normalize: value is not a record")

// Schema describes collection-specific normalization.
type Schema struct {
	// TitleField names the field used in synthesized display keys.
	TitleField string

	// Aliases maps an alternative field name to its canonical name. The
	// alias is copied only when the canonical field is absent.
	Aliases map[string]string

	// Fallbacks fill fields the CMS omitted or returned as null.
	Fallbacks map[string]any
}

// Normalize flattens raw into canonical form. Fields present on the
// record itself win over the same fields under "attributes". Applying
// Normalize to its own output returns an equal record.
func Normalize(raw any, schema Schema) (Record, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, ErrNotRecord
	}

	out := flatten(m)

	for alias, canonical := range schema.Aliases {
		if v, ok := out[alias]; ok && out[canonical] == nil {
			out[canonical] = v
		}
	}
	for field, v := range schema.Fallbacks {
		if out[field] == nil {
			out[field] = v
		}
	}
	return out, nil
}

// NormalizeList normalizes every record in raws.
func NormalizeList(raws []map[string]any, schema Schema) ([]Record, error) {
	out := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := Normalize(raw, schema)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func flatten(m map[string]any) Record {
	out := Record{}
	if attrs, ok := asMap(m["attributes"]); ok {
		for k, v := range attrs {
			out[k] = value(v)
		}
	}
	for k, v := range m {
		if k == "attributes" {
			continue
		}
		out[k] = value(v)
	}
	if id, ok := toInt64(out["id"]); ok {
		out["id"] = id
	}
	return out
}

// value unwraps relation envelopes and normalizes nested records.
func value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if data, ok := envelopeData(val); ok {
			return value(data)
		}
		return flatten(val)
	case Record:
		return flatten(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = value(item)
		}
		return out
	default:
		return v
	}
}

// envelopeData reports whether m is a {"data": ...} wrapper, optionally
// with "meta", and returns its payload.
func envelopeData(m map[string]any) (any, bool) {
	data, ok := m["data"]
	if !ok {
		return nil, false
	}
	for k := range m {
		if k != "data" && k != "meta" {
			return nil, false
		}
	}
	return data, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	}
	return nil, false
}

// ID returns the numeric id, or 0 when absent.
func (r Record) ID() int64 {
	id, _ := toInt64(r["id"])
	return id
}

// DocumentID returns the document id, or "" when absent.
func (r Record) DocumentID() string {
	s, _ := r["documentId"].(string)
	return s
}

// String returns a string field, or "".
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Time parses a timestamp field. ok is false when the field is missing
// or unparsable.
func (r Record) Time(field string) (time.Time, bool) {
	s, _ := r[field].(string)
	if s == "" {
		return time.Time{}, false
	}
	t, err := ParseTime(s)
	return t, err == nil
}

// DisplayKey returns a stable key for rendering: the numeric id, else the
// document id, else the title joined with the creation time.
func (r Record) DisplayKey(titleField string) string {
	if id := r.ID(); id != 0 {
		return strconv.FormatInt(id, 10)
	}
	if doc := r.DocumentID(); doc != "" {
		return doc
	}
	return r.String(titleField) + "-" + r.String("createdAt")
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp and date formats the CMS emits.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
