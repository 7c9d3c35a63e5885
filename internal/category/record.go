package category

import "reflect"

// Record is one entry within a category: an open bag of JSON
// attributes. Records in keyed categories additionally carry an "id"
// field that never changes once assigned.
type Record map[string]any

// ID returns the record identity and whether the record has a usable
// one. Only strings and numbers qualify; numbers are normalized to
// float64 so that an id decoded from JSON and one built in Go code
// index identically.
func (r Record) ID() (any, bool) {
	switch v := r["id"].(type) {
	case string:
		return v, true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return nil, false
}

// mergeFrom copies p's fields into r, adding or overwriting but never
// removing, and reports whether anything materially changed. Fields of
// r that p does not mention are left alone and not compared.
func (r Record) mergeFrom(p Record) bool {
	changed := false
	for key, value := range p {
		old, known := r[key]
		if !known || !reflect.DeepEqual(old, value) {
			changed = true
		}
		r[key] = value
	}
	return changed
}
