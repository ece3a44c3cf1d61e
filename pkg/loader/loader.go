// Package loader implements the concurrent document-loading engine: a load
// request is partitioned across a worker pool, each chunk is written through
// the write primitive with partial-failure reconciliation, and the aggregate
// outcome is audited through an append-mode status record.
package loader

import (
	"fmt"
	"log"
	"time"

	"github.com/adfharrison1/go-docload/pkg/domain"
	"github.com/adfharrison1/go-docload/pkg/worker"
)

// Defaults for the audit record target. Status persistence can be redirected
// or disabled with WithStatusTarget.
const (
	DefaultStatusStore      = "data_exchange"
	DefaultStatusCollection = "load_status"
)

// DocumentLoader turns load requests into partitioned parallel writes
// against a document store. One loader may serve many requests; all store
// access goes through the injected connector, one connection per worker.
type DocumentLoader struct {
	connector        domain.Connector
	numWorkers       int
	chunkSize        int
	documentLimit    int
	maxStepLength    int
	readBackCheck    bool
	salvage          bool
	updateID         string
	statusStore      string
	statusCollection string
}

// Option configures a DocumentLoader.
type Option func(*DocumentLoader)

// WithNumWorkers sets the number of parallel workers per pool run.
func WithNumWorkers(n int) Option {
	return func(dl *DocumentLoader) {
		dl.numWorkers = n
	}
}

// WithChunkSize sets the target chunk length handed to each worker
// invocation. A value <= 0 partitions by worker count instead.
func WithChunkSize(n int) Option {
	return func(dl *DocumentLoader) {
		dl.chunkSize = n
	}
}

// WithDocumentLimit truncates every request to its first n documents.
// Zero means no limit.
func WithDocumentLimit(n int) Option {
	return func(dl *DocumentLoader) {
		dl.documentLimit = n
	}
}

// WithMaxStepLength bounds the document count handed to a single pool run;
// longer requests are split into sequential outer groups.
func WithMaxStepLength(n int) Option {
	return func(dl *DocumentLoader) {
		dl.maxStepLength = n
	}
}

// WithReadBackCheck enables post-insert verification: every persisted
// document is refetched and deep-compared against its in-memory original.
func WithReadBackCheck(enabled bool) Option {
	return func(dl *DocumentLoader) {
		dl.readBackCheck = enabled
	}
}

// WithSalvage controls serial reinsertion after a partial bulk-insert
// failure (default enabled). Salvage requires key names on the request.
func WithSalvage(enabled bool) Option {
	return func(dl *DocumentLoader) {
		dl.salvage = enabled
	}
}

// WithUpdateID overrides the update identifier stamped on status records.
// The default is the current week signature (yyyy_ww).
func WithUpdateID(id string) Option {
	return func(dl *DocumentLoader) {
		dl.updateID = id
	}
}

// WithStatusTarget redirects audit records to the given store and
// collection. Empty values disable status persistence.
func WithStatusTarget(storeName, collName string) Option {
	return func(dl *DocumentLoader) {
		dl.statusStore = storeName
		dl.statusCollection = collName
	}
}

// New creates a DocumentLoader writing through the given connector.
func New(connector domain.Connector, options ...Option) *DocumentLoader {
	dl := &DocumentLoader{
		connector:        connector,
		numWorkers:       4,
		chunkSize:        15,
		maxStepLength:    2000,
		salvage:          true,
		updateID:         WeekSignature(time.Now().UTC()),
		statusStore:      DefaultStatusStore,
		statusCollection: DefaultStatusCollection,
	}
	for _, option := range options {
		option(dl)
	}
	return dl
}

// Request describes one load: the documents, their destination, the
// load-type policy and the collection's key, index and schema configuration.
// The loader owns the documents for the duration of the call and mutates
// them in place (AddValues merging and store-assigned identifiers).
type Request struct {
	StoreName      string
	CollectionName string
	LoadType       domain.LoadType
	Documents      []domain.Document
	KeyNames       []string
	IndexSpecs     []domain.IndexSpec
	AddValues      domain.Document
	Validator      domain.Document
}

// Load runs one bulk load to completion and returns the aggregate result.
// A returned error means the request failed before any chunk was dispatched
// (configuration or collection preparation); chunk-level failures are
// reported through the result's Failed list instead.
func (dl *DocumentLoader) Load(req *Request) (*domain.LoadResult, error) {
	begin := time.Now().UTC()
	if err := dl.validateRequest(req); err != nil {
		return nil, err
	}

	docs := req.Documents
	if dl.documentLimit > 0 && len(docs) > dl.documentLimit {
		docs = docs[:dl.documentLimit]
	}
	log.Printf("INFO: loading %d documents into %s.%s (%s) with %d workers, chunk size %d",
		len(docs), req.StoreName, req.CollectionName, req.LoadType, dl.numWorkers, dl.chunkSize)

	if len(req.AddValues) > 0 {
		for _, doc := range docs {
			for k, v := range req.AddValues {
				doc[k] = v
			}
		}
	}
	if len(req.KeyNames) > 0 {
		if err := checkKeyInvariant(docs, req.KeyNames); err != nil {
			return nil, err
		}
	}

	if err := dl.prepareCollection(req); err != nil {
		return nil, fmt.Errorf("failed to prepare collection %s.%s: %w", req.StoreName, req.CollectionName, err)
	}

	numWorkers := dl.numWorkers
	if numWorkers > len(docs) {
		numWorkers = len(docs)
	}
	chunkSize := 0
	if len(docs) > 0 && dl.chunkSize < len(docs) {
		chunkSize = dl.chunkSize
	}

	// Very long requests run as sequential outer groups, bounding the
	// fan-out and peak footprint of any single pool run.
	groups := [][]domain.Document{docs}
	if dl.maxStepLength > 0 && len(docs) > dl.maxStepLength {
		numGroups := (len(docs) + dl.maxStepLength - 1) / dl.maxStepLength
		groups = worker.Partition(docs, numGroups)
	}

	pool := worker.NewPool(dl.workerFunc(req), identityFunc(req.KeyNames))
	result := &domain.LoadResult{Ok: true}
	for i, group := range groups {
		if len(groups) > 1 {
			log.Printf("INFO: running outer group %d of %d with %d documents", i+1, len(groups), len(group))
		}
		ok, failed, _, diags := pool.RunMulti(group, numWorkers, 1, chunkSize)
		if !ok {
			result.Ok = false
			result.Failed = append(result.Failed, failed...)
		}
		result.Diagnostics = mergeDiagnostics(result.Diagnostics, diags)
	}

	flag := "N"
	if result.Ok {
		flag = "Y"
	}
	result.Status = domain.LoadStatus{
		UpdateID:   dl.updateID,
		StoreName:  req.StoreName,
		ObjectName: req.CollectionName,
		StatusFlag: flag,
		Begin:      begin,
		End:        time.Now().UTC(),
	}
	log.Printf("INFO: load of %s.%s completed with status %s (%d failed)",
		req.StoreName, req.CollectionName, flag, len(result.Failed))
	dl.persistStatus(req, result.Status)
	return result, nil
}

func (dl *DocumentLoader) validateRequest(req *Request) error {
	if req == nil {
		return fmt.Errorf("nil load request")
	}
	if req.StoreName == "" || req.CollectionName == "" {
		return fmt.Errorf("load request requires store and collection names")
	}
	if !req.LoadType.Valid() {
		return fmt.Errorf("unsupported load type %q", req.LoadType)
	}
	for _, spec := range req.IndexSpecs {
		if err := spec.Validate(); err != nil {
			return err
		}
	}
	if req.LoadType == domain.LoadReplace && len(req.KeyNames) == 0 {
		log.Printf("WARN: replace load of %s.%s without key names; no pre-delete will occur", req.StoreName, req.CollectionName)
	}
	return nil
}

// checkKeyInvariant verifies that the key names select present, unique
// values across the whole request. Without this, failure attribution and
// salvage become unreliable.
func checkKeyInvariant(docs []domain.Document, keyNames []string) error {
	seen := make(map[string]int, len(docs))
	for i, doc := range docs {
		values := domain.KeyValues(doc, keyNames)
		for j, v := range values {
			if v == nil {
				return fmt.Errorf("document %d missing key attribute %q", i, keyNames[j])
			}
		}
		key := domain.KeyString(values)
		if other, dup := seen[key]; dup {
			return fmt.Errorf("documents %d and %d share key tuple %v", other, i, values)
		}
		seen[key] = i
	}
	return nil
}

// prepareCollection applies the load-type policy to the target collection
// once per request, before any chunk is dispatched.
func (dl *DocumentLoader) prepareCollection(req *Request) error {
	conn, err := dl.connector.Connect(req.StoreName)
	if err != nil {
		return fmt.Errorf("connect %s: %w", req.StoreName, err)
	}
	defer conn.Close()

	switch req.LoadType {
	case domain.LoadFull:
		// destructive: drop and recreate unconditionally
		if err := conn.DropCollection(req.CollectionName); err != nil {
			return err
		}
		return createWithIndexes(conn, req)
	case domain.LoadAppend:
		if conn.CollectionExists(req.CollectionName) {
			return nil
		}
		return createWithIndexes(conn, req)
	case domain.LoadReplace:
		if !conn.CollectionExists(req.CollectionName) {
			return fmt.Errorf("replace load requires existing collection %s", req.CollectionName)
		}
		return nil
	}
	return nil
}

func createWithIndexes(conn domain.Conn, req *Request) error {
	if err := conn.CreateCollection(req.CollectionName, req.Validator); err != nil {
		return err
	}
	for _, spec := range req.IndexSpecs {
		if err := conn.CreateIndex(req.CollectionName, spec); err != nil {
			return err
		}
	}
	return nil
}

// identityFunc projects a document to a comparable key for failure
// attribution. With key names the projection is the key tuple; without, the
// map's own address serves since documents are handed through unchanged.
func identityFunc(keyNames []string) func(domain.Document) string {
	if len(keyNames) > 0 {
		return func(doc domain.Document) string {
			return domain.KeyString(domain.KeyValues(doc, keyNames))
		}
	}
	return func(doc domain.Document) string {
		return fmt.Sprintf("%p", doc)
	}
}

func mergeDiagnostics(into, add []string) []string {
	seen := make(map[string]struct{}, len(into))
	for _, d := range into {
		seen[d] = struct{}{}
	}
	for _, d := range add {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			into = append(into, d)
		}
	}
	return into
}
