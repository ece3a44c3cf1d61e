package domain

import (
	"fmt"
	"strings"
)

// Document represents a single record in a collection. Values may be
// arbitrarily nested maps, lists and scalars.
type Document map[string]interface{}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		return t.Clone()
	case map[string]interface{}:
		return Document(t).Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// KeyValues returns the values selected by the input key names expressed in
// dot notation. Missing keys yield nil values in the result.
func KeyValues(d Document, keyNames []string) []interface{} {
	values := make([]interface{}, len(keyNames))
	for i, name := range keyNames {
		values[i] = keyValue(d, name)
	}
	return values
}

// keyValue walks a nested document following a dot-notation path.
func keyValue(d Document, keyName string) interface{} {
	var cur interface{} = map[string]interface{}(d)
	for _, part := range strings.Split(keyName, ".") {
		switch m := cur.(type) {
		case Document:
			cur = m[part]
		case map[string]interface{}:
			cur = m[part]
		default:
			return nil
		}
	}
	return cur
}

// KeyString renders a value tuple as a single comparable string. Used to
// index documents by key tuple when reconciling partial batch failures.
func KeyString(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "\x1f")
}
