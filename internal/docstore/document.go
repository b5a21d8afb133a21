package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// document is the JSON form shared by the Memory and Postgres stores.
type document map[string]any

// jsonSnapshot is a Snapshot over encoded JSON; nil data means missing.
type jsonSnapshot struct {
	data []byte
}

func (s jsonSnapshot) Exists() bool {
	return s.data != nil
}

func (s jsonSnapshot) DataTo(dst any) error {
	if s.data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(s.data, dst)
}

func missing() Snapshot {
	return jsonSnapshot{}
}

// toDocument converts any JSON-encodable value into a generic object.
func toDocument(v any) (document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	if doc == nil {
		doc = document{}
	}
	return doc, nil
}

// normalize round-trips v through JSON so it compares equal to decoded
// document values (numbers become float64, structs become maps).
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d document) get(path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// set writes v at a dotted path, replacing non-object intermediates.
func (d document) set(path string, v any) {
	parts := strings.Split(path, ".")
	m := map[string]any(d)
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

func (d document) setFields(fields map[string]any) error {
	for path, v := range fields {
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", path, err)
		}
		d.set(path, nv)
	}
	return nil
}

func (d document) increment(deltas map[string]float64) {
	for path, delta := range deltas {
		cur, _ := d.get(path)
		n, _ := cur.(float64)
		d.set(path, n+delta)
	}
}

func (d document) matches(filters []Filter) bool {
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false
		}
		got, ok := d.get(f.Field)
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// less orders two decoded JSON values: missing < numbers < strings.
func less(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b != nil
	case float64:
		switch bv := b.(type) {
		case float64:
			return av < bv
		case string:
			return true
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}
	return false
}

// nest turns dotted paths into nested maps, as Firestore merges expect.
func nest(fields map[string]any) map[string]any {
	out := map[string]any{}
	d := document(out)
	for path, v := range fields {
		d.set(path, v)
	}
	return out
}
