package loader

import (
	"fmt"
	"log"
	"time"

	"github.com/adfharrison1/go-docload/pkg/domain"
	"github.com/adfharrison1/go-docload/pkg/worker"
)

// workerFunc adapts the write primitive to the pool contract. Every
// invocation opens its own store connection, so chunks share nothing but
// the target collection itself.
func (dl *DocumentLoader) workerFunc(req *Request) worker.Func[domain.Document] {
	return func(name string, docs []domain.Document) ([]domain.Document, [][]interface{}, []string, error) {
		start := time.Now()
		conn, err := dl.connector.Connect(req.StoreName)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect %s: %w", req.StoreName, err)
		}
		defer conn.Close()
		success, diags := dl.loadDocuments(conn, req, docs)
		log.Printf("INFO: %s wrote %d of %d documents to %s.%s in %s",
			name, len(success), len(docs), req.StoreName, req.CollectionName, time.Since(start).Round(time.Millisecond))
		return success, [][]interface{}{nil}, diags, nil
	}
}

// loadDocuments is the write primitive for one chunk: replace pre-delete,
// unordered bulk insert, key-based reconciliation of partial failures,
// optional salvage, optional read-back verification. It reports exactly the
// input documents that are persisted in the store afterwards.
func (dl *DocumentLoader) loadDocuments(conn domain.Conn, req *Request, docs []domain.Document) ([]domain.Document, []string) {
	var diags []string
	keyed := len(req.KeyNames) > 0

	// key tuple -> original chunk position, for attributing partial success
	var keyIndex map[string]int
	if keyed {
		keyIndex = make(map[string]int, len(docs))
		for i, doc := range docs {
			keyIndex[domain.KeyString(domain.KeyValues(doc, req.KeyNames))] = i
		}
	}

	if req.LoadType == domain.LoadReplace && keyed {
		dl.deleteBatch(conn, req, docs)
	}

	ids, err := conn.InsertMany(req.CollectionName, docs)
	if err != nil {
		diags = append(diags, fmt.Sprintf("bulk insert of %d documents into %s failed: %v", len(docs), req.CollectionName, err))
		ids = nil
	}

	if len(ids) == len(docs) && err == nil {
		if dl.readBackCheck && keyed {
			if diag := dl.readBack(conn, req, ids, keyIndex, docs); diag != "" {
				return nil, append(diags, diag)
			}
		}
		return docs, diags
	}

	// Partial batch. Without a stable key there is no way to attribute
	// success to specific documents, so the whole chunk is failed.
	if !keyed {
		diags = append(diags, fmt.Sprintf("partial bulk insert (%d of %d) into %s with no key names", len(ids), len(docs), req.CollectionName))
		return nil, diags
	}

	if dl.salvage {
		log.Printf("INFO: bulk insert recovery starting for %d documents in %s.%s", len(docs), req.StoreName, req.CollectionName)
		ids = dl.salvageInsert(conn, req, docs)
	}

	success := dl.reconcile(conn, req, ids, keyIndex, docs, &diags)
	if dl.readBackCheck {
		if diag := dl.readBack(conn, req, ids, keyIndex, docs); diag != "" {
			return nil, append(diags, diag)
		}
	}
	return success, diags
}

// reconcile fetches each persisted document by store identifier, extracts
// its key tuple and maps it back to a chunk position. Positions never seen
// are the chunk's failures.
func (dl *DocumentLoader) reconcile(conn domain.Conn, req *Request, ids []string, keyIndex map[string]int, docs []domain.Document, diags *[]string) []domain.Document {
	persisted := make(map[int]bool, len(ids))
	for _, id := range ids {
		obj, err := conn.FetchByID(req.CollectionName, id)
		if err != nil {
			*diags = append(*diags, fmt.Sprintf("reconcile fetch failed for id %s: %v", id, err))
			continue
		}
		pos, ok := keyIndex[domain.KeyString(domain.KeyValues(obj, req.KeyNames))]
		if !ok {
			*diags = append(*diags, fmt.Sprintf("persisted document %s matches no input key tuple", id))
			continue
		}
		persisted[pos] = true
	}
	success := make([]domain.Document, 0, len(persisted))
	for i, doc := range docs {
		if persisted[i] {
			success = append(success, doc)
		}
	}
	return success
}

// deleteBatch removes any persisted documents matching the chunk's key
// tuples, de-duplicating repeated tuples within the batch.
func (dl *DocumentLoader) deleteBatch(conn domain.Conn, req *Request, docs []domain.Document) {
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		values := domain.KeyValues(doc, req.KeyNames)
		key := domain.KeyString(values)
		if _, done := seen[key]; done {
			continue
		}
		seen[key] = struct{}{}
		if _, err := conn.DeleteByKey(req.CollectionName, req.KeyNames, values); err != nil {
			log.Printf("WARN: delete by key %v in %s failed: %v", values, req.CollectionName, err)
		}
	}
}

// salvageInsert recovers a deterministic outcome from a partially-failed
// bulk insert: delete everything matching the batch's key tuples, then
// insert one document at a time, taking each individual outcome at face
// value. Afterwards at most one persisted document exists per key tuple.
func (dl *DocumentLoader) salvageInsert(conn domain.Conn, req *Request, docs []domain.Document) []string {
	dl.deleteBatch(conn, req, docs)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := conn.InsertOne(req.CollectionName, doc)
		if err != nil {
			log.Printf("WARN: salvage insert failed for key %v: %v", domain.KeyValues(doc, req.KeyNames), err)
			continue
		}
		ids = append(ids, id)
	}
	log.Printf("INFO: salvage recovered %d of %d documents in %s.%s", len(ids), len(docs), req.StoreName, req.CollectionName)
	return ids
}

// readBack refetches every persisted document and deep-compares it to the
// in-memory original (already mutated with added values and the assigned
// identifier). A non-empty return is the mismatch diagnostic; the caller
// fails the chunk on it.
func (dl *DocumentLoader) readBack(conn domain.Conn, req *Request, ids []string, keyIndex map[string]int, docs []domain.Document) string {
	for _, id := range ids {
		obj, err := conn.FetchByID(req.CollectionName, id)
		if err != nil {
			return fmt.Sprintf("read back fetch failed for id %s: %v", id, err)
		}
		pos, ok := keyIndex[domain.KeyString(domain.KeyValues(obj, req.KeyNames))]
		if !ok {
			return fmt.Sprintf("read back found unexpected document %s", id)
		}
		if !EqualDocuments(obj, docs[pos]) {
			return fmt.Sprintf("read back mismatch for document key %v", domain.KeyValues(docs[pos], req.KeyNames))
		}
	}
	return ""
}
