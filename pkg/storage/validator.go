package storage

import (
	"fmt"

	"github.com/adfharrison1/go-docload/pkg/domain"
)

// validate applies a collection validator to a document. The validator is a
// small JSON-schema style document: a "required" list of top-level field
// names and an optional "properties" map of field name to {"bsonType": t}.
// A nil validator accepts everything.
func validate(validator, doc domain.Document) error {
	if validator == nil {
		return nil
	}
	if required, ok := validator["required"]; ok {
		for _, f := range toStringList(required) {
			if _, exists := doc[f]; !exists {
				return fmt.Errorf("missing required field %q", f)
			}
		}
	}
	props, ok := validator["properties"].(map[string]interface{})
	if !ok {
		if d, okD := validator["properties"].(domain.Document); okD {
			props = d
		}
	}
	for field, raw := range props {
		spec, okS := raw.(map[string]interface{})
		if !okS {
			if d, okD := raw.(domain.Document); okD {
				spec = d
			} else {
				continue
			}
		}
		wantType, _ := spec["bsonType"].(string)
		if wantType == "" {
			continue
		}
		value, exists := doc[field]
		if !exists || value == nil {
			continue
		}
		if !typeMatches(wantType, value) {
			return fmt.Errorf("field %q: expected %s, got %T", field, wantType, value)
		}
	}
	return nil
}

func typeMatches(wantType string, value interface{}) bool {
	switch wantType {
	case "string":
		_, ok := value.(string)
		return ok
	case "bool":
		_, ok := value.(bool)
		return ok
	case "int", "long", "double", "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		switch value.(type) {
		case map[string]interface{}, domain.Document:
			return true
		}
		return false
	default:
		// unknown type names are treated as opaque and accepted
		return true
	}
}

func toStringList(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
