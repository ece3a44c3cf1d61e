package loader

import (
	"fmt"
	"log"
	"time"

	"github.com/adfharrison1/go-docload/pkg/domain"
)

// StatusIndexSpecs is the index installed on the audit collection.
var StatusIndexSpecs = []domain.IndexSpec{
	{
		Name:       "primary",
		Attributes: []string{"update_id", "database_name", "object_name"},
		Order:      domain.IndexDescending,
	},
}

// WeekSignature returns the default update identifier for status records,
// the year and ISO week of the given time as "yyyy_ww".
func WeekSignature(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d_%02d", year, week)
}

// persistStatus appends the audit record for a completed load through a
// recursive append-mode load. Requests that target the audit collection
// itself are not audited again, which terminates the recursion. Failures
// here are logged but never fail the original load.
func (dl *DocumentLoader) persistStatus(req *Request, status domain.LoadStatus) {
	if dl.statusStore == "" || dl.statusCollection == "" {
		return
	}
	if req.StoreName == dl.statusStore && req.CollectionName == dl.statusCollection {
		return
	}
	inner := &Request{
		StoreName:      dl.statusStore,
		CollectionName: dl.statusCollection,
		LoadType:       domain.LoadAppend,
		Documents:      []domain.Document{status.Document()},
		IndexSpecs:     StatusIndexSpecs,
	}
	result, err := dl.Load(inner)
	if err != nil {
		log.Printf("WARN: status record persistence failed: %v", err)
		return
	}
	if !result.Ok {
		log.Printf("WARN: status record persistence incomplete for %s.%s", req.StoreName, req.CollectionName)
	}
}
