package storage

import (
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/adfharrison1/go-docload/pkg/domain"
)

// SaveToFile writes a compressed snapshot of every store to a single file.
func (e *Engine) SaveToFile(filename string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snapshot := snapshotData{Stores: make(map[string]storeData, len(e.stores))}
	for storeName, st := range e.stores {
		st.mu.RLock()
		sd := storeData{Collections: make(map[string]collectionData, len(st.collections))}
		for collName, coll := range st.collections {
			coll.mu.RLock()
			cd := collectionData{
				Documents: make(map[string]map[string]interface{}, len(coll.docs)),
				Order:     append([]string(nil), coll.order...),
				Validator: coll.validator,
			}
			for id, doc := range coll.docs {
				cd.Documents[id] = doc
			}
			for _, idx := range coll.indexes {
				cd.Indexes = append(cd.Indexes, indexData{
					Name:       idx.spec.Name,
					Attributes: idx.spec.Attributes,
					Order:      string(idx.spec.Order),
					Unique:     idx.spec.Unique,
				})
			}
			coll.mu.RUnlock()
			sd.Collections[collName] = cd
		}
		st.mu.RUnlock()
		snapshot.Stores[storeName] = sd
	}

	msgpackData, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode MessagePack: %w", err)
	}
	compressedData := make([]byte, lz4.CompressBlockBound(len(msgpackData)))
	var hashTable [1 << 16]int
	n, err := lz4.CompressBlock(msgpackData, compressedData, hashTable[:])
	if err != nil {
		return fmt.Errorf("failed to compress data: %w", err)
	}
	// n == 0 means the payload is incompressible; store it raw.
	var flags uint8
	body := compressedData[:n]
	if n == 0 {
		flags = FlagUncompressed
		body = msgpackData
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()
	if err := WriteHeader(file, flags); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := file.Write(body); err != nil {
		return fmt.Errorf("failed to write snapshot data: %w", err)
	}
	return nil
}

// LoadFromFile replaces the engine contents with a snapshot written by
// SaveToFile. A missing file leaves the engine empty without error.
func (e *Engine) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	header, err := ReadHeader(file)
	if err != nil {
		return fmt.Errorf("invalid file header: %w", err)
	}
	body, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read snapshot data: %w", err)
	}
	decompressedData := body
	if header.Flags&FlagUncompressed == 0 {
		decompressedData = make([]byte, maxDecompressedSize(len(body)))
		n, err := lz4.UncompressBlock(body, decompressedData)
		if err != nil {
			return fmt.Errorf("failed to decompress data: %w", err)
		}
		decompressedData = decompressedData[:n]
	}

	var snapshot snapshotData
	if err := msgpack.Unmarshal(decompressedData, &snapshot); err != nil {
		return fmt.Errorf("failed to decode MessagePack: %w", err)
	}

	stores := make(map[string]*store, len(snapshot.Stores))
	for storeName, sd := range snapshot.Stores {
		st := &store{collections: make(map[string]*collection, len(sd.Collections))}
		for collName, cd := range sd.Collections {
			coll := newCollection(collName, domain.Document(cd.Validator))
			for id, raw := range cd.Documents {
				coll.docs[id] = normalizeDocument(raw)
			}
			coll.order = cd.Order
			for _, idx := range cd.Indexes {
				spec := domain.IndexSpec{
					Name:       idx.Name,
					Attributes: idx.Attributes,
					Order:      domain.IndexOrder(idx.Order),
					Unique:     idx.Unique,
				}
				if err := coll.createIndex(spec); err != nil {
					return fmt.Errorf("failed to rebuild index %s on %s: %w", idx.Name, collName, err)
				}
			}
			st.collections[collName] = coll
		}
		stores[storeName] = st
	}

	e.mu.Lock()
	e.stores = stores
	e.mu.Unlock()
	return nil
}

// Save snapshots to the configured data file.
func (e *Engine) Save() error {
	if e.dataFile == "" {
		return fmt.Errorf("no data file configured")
	}
	return e.SaveToFile(e.dataFile)
}

// Load restores from the configured data file.
func (e *Engine) Load() error {
	if e.dataFile == "" {
		return fmt.Errorf("no data file configured")
	}
	return e.LoadFromFile(e.dataFile)
}

func maxDecompressedSize(compressed int) int {
	size := compressed * 10
	if size < 1<<16 {
		size = 1 << 16
	}
	return size
}

// normalizeDocument rebuilds a decoded document with string-keyed maps all
// the way down so key extraction and comparison behave the same for loaded
// and freshly inserted documents.
func normalizeDocument(raw map[string]interface{}) domain.Document {
	out := make(domain.Document, len(raw))
	for k, v := range raw {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(normalizeDocument(t))
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeValue(val)
		}
		return out
	case []interface{}:
		for i, e := range t {
			t[i] = normalizeValue(e)
		}
		return t
	default:
		return v
	}
}
