package storage

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/adfharrison1/go-docload/pkg/domain"
)

// collection holds the canonical document copies for one collection along
// with its validator and indexes. All access goes through the collection
// lock; correctness under concurrent chunk writes relies on this
// per-document write atomicity only.
type collection struct {
	mu        sync.RWMutex
	name      string
	docs      map[string]domain.Document
	order     []string // insertion order of ids, for deterministic scans
	validator domain.Document
	indexes   map[string]*index
}

// index tracks one index spec. Only unique indexes carry a live key map;
// non-unique specs are retained as metadata the way the engine would hand
// them to a remote store.
type index struct {
	spec   domain.IndexSpec
	unique map[string]string // key tuple -> doc id
}

func newCollection(name string, validator domain.Document) *collection {
	return &collection{
		name:      name,
		docs:      make(map[string]domain.Document),
		validator: validator,
		indexes:   make(map[string]*index),
	}
}

func (c *collection) createIndex(spec domain.IndexSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := &index{spec: spec}
	if spec.Unique {
		idx.unique = make(map[string]string, len(c.docs))
		for _, id := range c.order {
			key := domain.KeyString(domain.KeyValues(c.docs[id], spec.Attributes))
			if other, exists := idx.unique[key]; exists {
				return fmt.Errorf("%w: index %s on %s collides for documents %s and %s",
					ErrDuplicateKey, spec.Name, c.name, other, id)
			}
			idx.unique[key] = id
		}
	}
	c.indexes[spec.Name] = idx
	return nil
}

// insertMany is the non-atomic bulk path: validation is bypassed, unique
// index violations skip the offending document and the remainder of the
// batch still goes in.
func (c *collection) insertMany(docs []domain.Document) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if err := c.checkUnique(doc); err != nil {
			log.Printf("WARN: bulk insert into %s skipping document: %v", c.name, err)
			continue
		}
		ids = append(ids, c.persist(doc))
	}
	return ids
}

// insertOne is the serial path: the validator applies and a unique index
// violation is an error.
func (c *collection) insertOne(doc domain.Document) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := validate(c.validator, doc); err != nil {
		return "", fmt.Errorf("validation failed for collection %s: %w", c.name, err)
	}
	if err := c.checkUnique(doc); err != nil {
		return "", err
	}
	return c.persist(doc), nil
}

// checkUnique verifies the document against all unique indexes. Caller holds
// the write lock.
func (c *collection) checkUnique(doc domain.Document) error {
	for _, idx := range c.indexes {
		if idx.unique == nil {
			continue
		}
		key := domain.KeyString(domain.KeyValues(doc, idx.spec.Attributes))
		if _, exists := idx.unique[key]; exists {
			return fmt.Errorf("%w: index %s value %q", ErrDuplicateKey, idx.spec.Name, key)
		}
	}
	return nil
}

// persist assigns a store identifier, records a deep copy, updates unique
// indexes and mutates the caller's document with the new id. Caller holds
// the write lock.
func (c *collection) persist(doc domain.Document) string {
	id := uuid.NewString()
	doc["_id"] = id
	stored := doc.Clone()
	c.docs[id] = stored
	c.order = append(c.order, id)
	for _, idx := range c.indexes {
		if idx.unique != nil {
			idx.unique[domain.KeyString(domain.KeyValues(stored, idx.spec.Attributes))] = id
		}
	}
	return id
}

func (c *collection) fetchByID(id string) (domain.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, exists := c.docs[id]
	if !exists {
		return nil, fmt.Errorf("%w: id %s in collection %s", ErrNotFound, id, c.name)
	}
	return doc.Clone(), nil
}

func (c *collection) fetchByKey(keyNames []string, values []interface{}) (domain.Document, error) {
	want := domain.KeyString(values)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.order {
		doc := c.docs[id]
		if domain.KeyString(domain.KeyValues(doc, keyNames)) == want {
			return doc.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: keys %v in collection %s", ErrNotFound, keyNames, c.name)
}

func (c *collection) deleteByKey(keyNames []string, values []interface{}) int {
	want := domain.KeyString(values)
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	kept := c.order[:0]
	for _, id := range c.order {
		doc := c.docs[id]
		if domain.KeyString(domain.KeyValues(doc, keyNames)) != want {
			kept = append(kept, id)
			continue
		}
		for _, idx := range c.indexes {
			if idx.unique != nil {
				delete(idx.unique, domain.KeyString(domain.KeyValues(doc, idx.spec.Attributes)))
			}
		}
		delete(c.docs, id)
		removed++
	}
	c.order = kept
	return removed
}

func (c *collection) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
