package loader

import (
	"bytes"

	json "github.com/goccy/go-json"

	"github.com/adfharrison1/go-docload/pkg/domain"
)

// EqualDocuments reports structural equality of two documents: maps compare
// without regard to key order, arrays compare ordinally. Equality is decided
// on a canonical JSON rendering, which sorts map keys and preserves array
// order, so silent store-side coercion or truncation shows up as a mismatch.
func EqualDocuments(a, b domain.Document) bool {
	ab, errA := json.Marshal(map[string]interface{}(a))
	bb, errB := json.Marshal(map[string]interface{}(b))
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
