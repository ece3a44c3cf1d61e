package loader

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-docload/pkg/domain"
	"github.com/adfharrison1/go-docload/pkg/storage"
)

// wrappingConnector decorates connections from a real engine so tests can
// inject store-side faults for one collection.
type wrappingConnector struct {
	inner domain.Connector
	wrap  func(domain.Conn) domain.Conn
}

func (w *wrappingConnector) Connect(storeName string) (domain.Conn, error) {
	conn, err := w.inner.Connect(storeName)
	if err != nil {
		return nil, err
	}
	return w.wrap(conn), nil
}

// partialInsertConn truncates bulk inserts into one collection, simulating a
// non-atomic insertMany that persists only part of the batch.
type partialInsertConn struct {
	domain.Conn
	coll string
	keep int
}

func (c *partialInsertConn) InsertMany(collName string, docs []domain.Document) ([]string, error) {
	if collName == c.coll && len(docs) > c.keep {
		docs = docs[:c.keep]
	}
	return c.Conn.InsertMany(collName, docs)
}

// corruptFetchConn alters one field of every document fetched from one
// collection, simulating silent store-side coercion.
type corruptFetchConn struct {
	domain.Conn
	coll  string
	field string
}

func (c *corruptFetchConn) FetchByID(collName, id string) (domain.Document, error) {
	doc, err := c.Conn.FetchByID(collName, id)
	if err != nil {
		return nil, err
	}
	if collName == c.coll {
		doc[c.field] = "corrupted"
	}
	return doc, nil
}

func makeDocs(n int) []domain.Document {
	docs := make([]domain.Document, n)
	for i := range docs {
		docs[i] = domain.Document{"id": fmt.Sprintf("%d", i), "name": fmt.Sprintf("doc-%d", i)}
	}
	return docs
}

func countIn(t *testing.T, connector domain.Connector, storeName, collName string) int {
	t.Helper()
	conn, err := connector.Connect(storeName)
	require.NoError(t, err)
	defer conn.Close()
	count, err := conn.Count(collName)
	require.NoError(t, err)
	return count
}

func TestLoad_FullScenario(t *testing.T) {
	engine := storage.NewEngine()
	dl := New(engine, WithNumWorkers(2), WithChunkSize(2), WithUpdateID("2026_35"))

	docs := []domain.Document{{"id": "1"}, {"id": "2"}, {"id": "3"}}
	result, err := dl.Load(&Request{
		StoreName:      "pdbx",
		CollectionName: "entries",
		LoadType:       domain.LoadFull,
		Documents:      docs,
		KeyNames:       []string{"id"},
	})
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 3, countIn(t, engine, "pdbx", "entries"))

	// one status record with flag Y in the audit collection
	assert.Equal(t, 1, countIn(t, engine, DefaultStatusStore, DefaultStatusCollection))
	conn, err := engine.Connect(DefaultStatusStore)
	require.NoError(t, err)
	status, err := conn.FetchByKey(DefaultStatusCollection,
		[]string{"update_id", "database_name", "object_name"},
		[]interface{}{"2026_35", "pdbx", "entries"})
	require.NoError(t, err)
	assert.Equal(t, "Y", status["update_status_flag"])
}

func TestLoad_FullIdempotence(t *testing.T) {
	engine := storage.NewEngine()
	dl := New(engine, WithNumWorkers(2), WithChunkSize(2))

	for i := 0; i < 2; i++ {
		result, err := dl.Load(&Request{
			StoreName:      "pdbx",
			CollectionName: "entries",
			LoadType:       domain.LoadFull,
			Documents:      makeDocs(6),
			KeyNames:       []string{"id"},
		})
		require.NoError(t, err)
		assert.True(t, result.Ok, "pass %d", i)
		assert.Equal(t, 6, countIn(t, engine, "pdbx", "entries"), "pass %d", i)
	}
}

func TestLoad_AppendNonDestructive(t *testing.T) {
	engine := storage.NewEngine()
	dl := New(engine)

	batchA := []domain.Document{{"id": "a1"}, {"id": "a2"}}
	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadAppend, Documents: batchA, KeyNames: []string{"id"},
	})
	require.NoError(t, err)
	require.True(t, result.Ok)

	batchB := []domain.Document{{"id": "b1"}, {"id": "b2"}, {"id": "b3"}}
	result, err = dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadAppend, Documents: batchB, KeyNames: []string{"id"},
	})
	require.NoError(t, err)
	require.True(t, result.Ok)

	assert.Equal(t, 5, countIn(t, engine, "pdbx", "entries"))
}

func TestLoad_ReplaceUpdatesByKey(t *testing.T) {
	engine := storage.NewEngine()
	dl := New(engine)

	original := []domain.Document{
		{"id": "1", "rev": 1}, {"id": "2", "rev": 1}, {"id": "3", "rev": 1},
	}
	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadFull, Documents: original, KeyNames: []string{"id"},
	})
	require.NoError(t, err)
	require.True(t, result.Ok)

	replacement := []domain.Document{
		{"id": "1", "rev": 2}, {"id": "3", "rev": 2},
	}
	result, err = dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadReplace, Documents: replacement, KeyNames: []string{"id"},
	})
	require.NoError(t, err)
	require.True(t, result.Ok)

	assert.Equal(t, 3, countIn(t, engine, "pdbx", "entries"))
	conn, err := engine.Connect("pdbx")
	require.NoError(t, err)
	doc, err := conn.FetchByKey("entries", []string{"id"}, []interface{}{"1"})
	require.NoError(t, err)
	assert.Equal(t, 2, doc["rev"])
	doc, err = conn.FetchByKey("entries", []string{"id"}, []interface{}{"2"})
	require.NoError(t, err)
	assert.Equal(t, 1, doc["rev"])
}

func TestLoad_ReplaceRequiresExistingCollection(t *testing.T) {
	dl := New(storage.NewEngine())

	_, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "absent",
		LoadType: domain.LoadReplace, Documents: makeDocs(2), KeyNames: []string{"id"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires existing collection")
}

func TestLoad_DocumentLimitDeterminism(t *testing.T) {
	for _, tc := range []struct{ workers, chunk int }{{1, 0}, {2, 2}, {4, 3}} {
		t.Run(fmt.Sprintf("workers=%d/chunk=%d", tc.workers, tc.chunk), func(t *testing.T) {
			engine := storage.NewEngine()
			dl := New(engine,
				WithNumWorkers(tc.workers),
				WithChunkSize(tc.chunk),
				WithDocumentLimit(3),
			)

			result, err := dl.Load(&Request{
				StoreName: "pdbx", CollectionName: "entries",
				LoadType: domain.LoadFull, Documents: makeDocs(10), KeyNames: []string{"id"},
			})
			require.NoError(t, err)
			assert.True(t, result.Ok)
			assert.Equal(t, 3, countIn(t, engine, "pdbx", "entries"))

			// exactly the first three documents, in original order
			conn, err := engine.Connect("pdbx")
			require.NoError(t, err)
			for _, id := range []string{"0", "1", "2"} {
				_, err := conn.FetchByKey("entries", []string{"id"}, []interface{}{id})
				assert.NoError(t, err, "document %s should be loaded", id)
			}
			_, err = conn.FetchByKey("entries", []string{"id"}, []interface{}{"3"})
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestLoad_SalvageRecoversPartialInsert(t *testing.T) {
	engine := storage.NewEngine()
	connector := &wrappingConnector{inner: engine, wrap: func(c domain.Conn) domain.Conn {
		return &partialInsertConn{Conn: c, coll: "entries", keep: 1}
	}}
	dl := New(connector, WithNumWorkers(1), WithChunkSize(0))

	docs := makeDocs(4)
	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadFull, Documents: docs, KeyNames: []string{"id"},
	})
	require.NoError(t, err)

	// salvage reinserts serially, so the load still succeeds and every key
	// tuple maps to at most one persisted document
	assert.True(t, result.Ok)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 4, countIn(t, engine, "pdbx", "entries"))
}

func TestLoad_PartialInsertWithoutSalvage(t *testing.T) {
	engine := storage.NewEngine()
	connector := &wrappingConnector{inner: engine, wrap: func(c domain.Conn) domain.Conn {
		return &partialInsertConn{Conn: c, coll: "entries", keep: 1}
	}}
	dl := New(connector, WithNumWorkers(1), WithChunkSize(0), WithSalvage(false))

	docs := makeDocs(4)
	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadFull, Documents: docs, KeyNames: []string{"id"},
	})
	require.NoError(t, err)

	assert.False(t, result.Ok)
	assert.Len(t, result.Failed, 3)

	// conservation: persisted + failed covers the whole request
	assert.Equal(t, 4, countIn(t, engine, "pdbx", "entries")+len(result.Failed))

	// reported failures identify the retryable documents
	failedIDs := make(map[interface{}]bool)
	for _, doc := range result.Failed {
		failedIDs[doc["id"]] = true
	}
	assert.False(t, failedIDs["0"], "first document was persisted")
}

func TestLoad_PartialInsertWithoutKeysFailsChunk(t *testing.T) {
	engine := storage.NewEngine()
	connector := &wrappingConnector{inner: engine, wrap: func(c domain.Conn) domain.Conn {
		return &partialInsertConn{Conn: c, coll: "entries", keep: 2}
	}}
	dl := New(connector, WithNumWorkers(1), WithChunkSize(0))

	docs := makeDocs(4)
	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadFull, Documents: docs,
	})
	require.NoError(t, err)

	// no key names: the whole chunk is failed, no partial credit
	assert.False(t, result.Ok)
	assert.Len(t, result.Failed, 4)
	assert.NotEmpty(t, result.Diagnostics)
}

func TestLoad_ReadBackSensitivity(t *testing.T) {
	engine := storage.NewEngine()
	connector := &wrappingConnector{inner: engine, wrap: func(c domain.Conn) domain.Conn {
		return &corruptFetchConn{Conn: c, coll: "entries", field: "name"}
	}}
	dl := New(connector, WithNumWorkers(1), WithReadBackCheck(true))

	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadFull, Documents: makeDocs(3), KeyNames: []string{"id"},
	})
	require.NoError(t, err)

	// the insert succeeded but the read back saw an altered document
	assert.False(t, result.Ok)
	assert.NotEmpty(t, result.Failed)
	require.NotEmpty(t, result.Diagnostics)
	assert.Contains(t, result.Diagnostics[len(result.Diagnostics)-1], "read back mismatch")
}

func TestLoad_ReadBackCleanPass(t *testing.T) {
	engine := storage.NewEngine()
	dl := New(engine, WithNumWorkers(2), WithChunkSize(2), WithReadBackCheck(true))

	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadFull, Documents: makeDocs(6), KeyNames: []string{"id"},
	})
	require.NoError(t, err)
	assert.True(t, result.Ok)
}

func TestLoad_AddValuesMergedBeforeWrite(t *testing.T) {
	engine := storage.NewEngine()
	dl := New(engine)

	docs := makeDocs(2)
	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType:  domain.LoadFull,
		Documents: docs,
		KeyNames:  []string{"id"},
		AddValues: domain.Document{"update_id": "2026_35"},
	})
	require.NoError(t, err)
	require.True(t, result.Ok)

	// caller documents are mutated in place
	assert.Equal(t, "2026_35", docs[0]["update_id"])

	conn, err := engine.Connect("pdbx")
	require.NoError(t, err)
	doc, err := conn.FetchByKey("entries", []string{"id"}, []interface{}{"0"})
	require.NoError(t, err)
	assert.Equal(t, "2026_35", doc["update_id"])
}

func TestLoad_OuterGrouping(t *testing.T) {
	engine := storage.NewEngine()
	dl := New(engine, WithNumWorkers(2), WithChunkSize(3), WithMaxStepLength(4))

	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadFull, Documents: makeDocs(10), KeyNames: []string{"id"},
	})
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.Equal(t, 10, countIn(t, engine, "pdbx", "entries"))
}

func TestLoad_EmptyDocumentList(t *testing.T) {
	engine := storage.NewEngine()
	dl := New(engine)

	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadFull, Documents: nil, KeyNames: []string{"id"},
	})
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.Equal(t, "Y", result.Status.StatusFlag)
	assert.Equal(t, 0, countIn(t, engine, "pdbx", "entries"))
}

func TestLoad_KeyInvariantViolations(t *testing.T) {
	dl := New(storage.NewEngine())

	// duplicate key tuples
	_, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType:  domain.LoadFull,
		Documents: []domain.Document{{"id": "1"}, {"id": "1"}},
		KeyNames:  []string{"id"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share key tuple")

	// missing key attribute
	_, err = dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType:  domain.LoadFull,
		Documents: []domain.Document{{"id": "1"}, {"name": "no id"}},
		KeyNames:  []string{"id"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing key attribute")
}

func TestLoad_InvalidRequests(t *testing.T) {
	dl := New(storage.NewEngine())

	_, err := dl.Load(nil)
	assert.Error(t, err)

	_, err = dl.Load(&Request{CollectionName: "entries", LoadType: domain.LoadFull})
	assert.Error(t, err)

	_, err = dl.Load(&Request{StoreName: "pdbx", CollectionName: "entries", LoadType: "upsert"})
	assert.Error(t, err)

	_, err = dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries", LoadType: domain.LoadFull,
		IndexSpecs: []domain.IndexSpec{{Name: "broken"}},
	})
	assert.Error(t, err)
}

func TestLoad_ValidatorInstalledOnFullLoad(t *testing.T) {
	engine := storage.NewEngine()
	dl := New(engine)

	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType:  domain.LoadFull,
		Documents: makeDocs(2),
		KeyNames:  []string{"id"},
		Validator: domain.Document{"required": []interface{}{"id"}},
	})
	require.NoError(t, err)
	require.True(t, result.Ok)

	// the serial path enforces the installed validator
	conn, err := engine.Connect("pdbx")
	require.NoError(t, err)
	_, err = conn.InsertOne("entries", domain.Document{"name": "no id"})
	assert.Error(t, err)
}

func TestLoad_StatusNotRecursedForAuditCollection(t *testing.T) {
	engine := storage.NewEngine()
	dl := New(engine, WithStatusTarget("audit", "status"))

	// a normal load appends one audit record
	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadFull, Documents: makeDocs(2), KeyNames: []string{"id"},
	})
	require.NoError(t, err)
	require.True(t, result.Ok)
	assert.Equal(t, 1, countIn(t, engine, "audit", "status"))

	// loading into the audit collection itself is not audited again
	result, err = dl.Load(&Request{
		StoreName: "audit", CollectionName: "status",
		LoadType:  domain.LoadAppend,
		Documents: []domain.Document{result.Status.Document()},
	})
	require.NoError(t, err)
	require.True(t, result.Ok)
	assert.Equal(t, 2, countIn(t, engine, "audit", "status"))
}

func TestLoad_StatusFlagNOnFailure(t *testing.T) {
	engine := storage.NewEngine()
	connector := &wrappingConnector{inner: engine, wrap: func(c domain.Conn) domain.Conn {
		return &partialInsertConn{Conn: c, coll: "entries", keep: 1}
	}}
	dl := New(connector, WithNumWorkers(1), WithSalvage(false), WithUpdateID("2026_01"))

	result, err := dl.Load(&Request{
		StoreName: "pdbx", CollectionName: "entries",
		LoadType: domain.LoadFull, Documents: makeDocs(3), KeyNames: []string{"id"},
	})
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, "N", result.Status.StatusFlag)

	conn, err := engine.Connect(DefaultStatusStore)
	require.NoError(t, err)
	status, err := conn.FetchByKey(DefaultStatusCollection,
		[]string{"update_id"}, []interface{}{"2026_01"})
	require.NoError(t, err)
	assert.Equal(t, "N", status["update_status_flag"])
}
