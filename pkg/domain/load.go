package domain

import (
	"fmt"
	"time"
)

// LoadType governs the collection lifecycle before a bulk write.
type LoadType string

const (
	// LoadFull drops and recreates the target collection before writing.
	LoadFull LoadType = "full"
	// LoadReplace deletes documents by key before inserting replacements.
	// The target collection must already exist.
	LoadReplace LoadType = "replace"
	// LoadAppend creates the collection only if missing and inserts.
	LoadAppend LoadType = "append"
)

// Valid reports whether the load type is one of the supported policies.
func (lt LoadType) Valid() bool {
	switch lt {
	case LoadFull, LoadReplace, LoadAppend:
		return true
	}
	return false
}

// IndexOrder selects the ordering of an index.
type IndexOrder string

const (
	IndexAscending  IndexOrder = "asc"
	IndexDescending IndexOrder = "desc"
	IndexText       IndexOrder = "text"
)

// IndexSpec describes one index on a collection. Attribute paths use dot
// notation for nested fields.
type IndexSpec struct {
	Name       string     `json:"name"`
	Attributes []string   `json:"attributes"`
	Order      IndexOrder `json:"order,omitempty"`
	Unique     bool       `json:"unique,omitempty"`
}

// Validate checks the spec for the minimum required fields.
func (s IndexSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("index spec missing name")
	}
	if len(s.Attributes) == 0 {
		return fmt.Errorf("index %q has no attributes", s.Name)
	}
	switch s.Order {
	case "", IndexAscending, IndexDescending, IndexText:
	default:
		return fmt.Errorf("index %q has unsupported order %q", s.Name, s.Order)
	}
	return nil
}

// LoadStatus is the audit record describing the outcome of one load job.
// Records are appended to an audit collection and never mutated.
type LoadStatus struct {
	UpdateID   string    `json:"update_id"`
	StoreName  string    `json:"database_name"`
	ObjectName string    `json:"object_name"`
	StatusFlag string    `json:"update_status_flag"`
	Begin      time.Time `json:"update_begin_timestamp"`
	End        time.Time `json:"update_end_timestamp"`
}

// Document renders the status record for persistence.
func (s LoadStatus) Document() Document {
	return Document{
		"update_id":              s.UpdateID,
		"database_name":          s.StoreName,
		"object_name":            s.ObjectName,
		"update_status_flag":     s.StatusFlag,
		"update_begin_timestamp": s.Begin.UTC().Format(time.RFC3339Nano),
		"update_end_timestamp":   s.End.UTC().Format(time.RFC3339Nano),
	}
}

// LoadResult is the aggregate outcome of one load request.
type LoadResult struct {
	Ok          bool
	Failed      []Document
	Diagnostics []string
	Status      LoadStatus
}
