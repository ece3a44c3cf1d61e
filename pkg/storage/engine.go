package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/adfharrison1/go-docload/pkg/domain"
)

var (
	// ErrCollectionMissing is returned when an operation targets a
	// collection that does not exist.
	ErrCollectionMissing = errors.New("collection does not exist")
	// ErrCollectionExists is returned by CreateCollection when the
	// collection is already present.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrNotFound is returned when a fetch matches no document.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateKey is returned when an insert violates a unique index.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Engine is an embedded multi-store document engine. Stores hold named
// collections of schema-validated, indexable documents. The engine hands out
// per-store connections so that parallel loader workers share no state
// beyond the engine's own locking.
type Engine struct {
	mu       sync.RWMutex
	stores   map[string]*store
	dataFile string
}

type store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// Option configures an Engine.
type Option func(*Engine)

// WithDataFile sets the default snapshot file used by Save and Load.
func WithDataFile(path string) Option {
	return func(e *Engine) {
		e.dataFile = path
	}
}

// NewEngine creates an empty engine.
func NewEngine(options ...Option) *Engine {
	e := &Engine{
		stores: make(map[string]*store),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Connect returns a connection scoped to the named store, creating the store
// on first use. Engine implements domain.Connector.
func (e *Engine) Connect(storeName string) (domain.Conn, error) {
	if storeName == "" {
		return nil, fmt.Errorf("store name must not be empty")
	}
	e.mu.Lock()
	st, exists := e.stores[storeName]
	if !exists {
		st = &store{collections: make(map[string]*collection)}
		e.stores[storeName] = st
	}
	e.mu.Unlock()
	return &conn{store: st}, nil
}

// StoreNames returns the names of all stores with at least one connection.
func (e *Engine) StoreNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.stores))
	for name := range e.stores {
		names = append(names, name)
	}
	return names
}

// conn is a handle bound to one store. Close is a no-op for the embedded
// engine but kept so callers treat connections as scoped resources.
type conn struct {
	store *store
}

func (c *conn) Close() error { return nil }

// getCollection resolves a collection under the store read lock.
func (c *conn) getCollection(collName string) (*collection, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	coll, exists := c.store.collections[collName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionMissing, collName)
	}
	return coll, nil
}

// CollectionExists reports whether the named collection exists.
func (c *conn) CollectionExists(collName string) bool {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	_, exists := c.store.collections[collName]
	return exists
}

// CreateCollection creates a new collection, optionally installing a schema
// validator applied to serial inserts. Fails if the collection exists.
func (c *conn) CreateCollection(collName string, validator domain.Document) error {
	if collName == "" {
		return fmt.Errorf("collection name must not be empty")
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if _, exists := c.store.collections[collName]; exists {
		return fmt.Errorf("%w: %s", ErrCollectionExists, collName)
	}
	c.store.collections[collName] = newCollection(collName, validator)
	return nil
}

// DropCollection removes a collection and all its documents and indexes.
// Dropping a missing collection is not an error.
func (c *conn) DropCollection(collName string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	delete(c.store.collections, collName)
	return nil
}

// CreateIndex installs an index on the collection, replacing any index with
// the same name. Unique indexes are verified against existing documents.
func (c *conn) CreateIndex(collName string, spec domain.IndexSpec) error {
	coll, err := c.getCollection(collName)
	if err != nil {
		return err
	}
	return coll.createIndex(spec)
}

// InsertMany performs a non-atomic, non-validating bulk insert. Documents
// violating a unique index are skipped; the returned id list covers only the
// documents actually persisted. Each persisted input document is mutated
// with its store-assigned "_id".
func (c *conn) InsertMany(collName string, docs []domain.Document) ([]string, error) {
	coll, err := c.getCollection(collName)
	if err != nil {
		return nil, err
	}
	return coll.insertMany(docs), nil
}

// InsertOne inserts a single document with schema validation and unique
// index enforcement. On success the input document is mutated with its
// store-assigned "_id".
func (c *conn) InsertOne(collName string, doc domain.Document) (string, error) {
	coll, err := c.getCollection(collName)
	if err != nil {
		return "", err
	}
	return coll.insertOne(doc)
}

// FetchByID returns a copy of the document with the given store identifier.
func (c *conn) FetchByID(collName, id string) (domain.Document, error) {
	coll, err := c.getCollection(collName)
	if err != nil {
		return nil, err
	}
	return coll.fetchByID(id)
}

// FetchByKey returns a copy of the first document whose key-name values
// match the input value tuple. Key names use dot notation.
func (c *conn) FetchByKey(collName string, keyNames []string, values []interface{}) (domain.Document, error) {
	coll, err := c.getCollection(collName)
	if err != nil {
		return nil, err
	}
	return coll.fetchByKey(keyNames, values)
}

// DeleteByKey removes every document whose key-name values match the input
// value tuple and returns the number removed.
func (c *conn) DeleteByKey(collName string, keyNames []string, values []interface{}) (int, error) {
	coll, err := c.getCollection(collName)
	if err != nil {
		return 0, err
	}
	return coll.deleteByKey(keyNames, values), nil
}

// Count returns the number of documents in the collection.
func (c *conn) Count(collName string) (int, error) {
	coll, err := c.getCollection(collName)
	if err != nil {
		return 0, err
	}
	return coll.count(), nil
}
