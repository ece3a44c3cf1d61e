package domain

// DocumentStore defines the store operations the loading engine consumes.
// Implementations are expected to make InsertMany non-atomic: a partial
// batch is a normal outcome and is reported through the returned id list,
// not through the error value.
type DocumentStore interface {
	CollectionExists(collName string) bool
	CreateCollection(collName string, validator Document) error
	DropCollection(collName string) error
	CreateIndex(collName string, spec IndexSpec) error
	InsertMany(collName string, docs []Document) ([]string, error)
	InsertOne(collName string, doc Document) (string, error)
	FetchByID(collName, id string) (Document, error)
	FetchByKey(collName string, keyNames []string, values []interface{}) (Document, error)
	DeleteByKey(collName string, keyNames []string, values []interface{}) (int, error)
	Count(collName string) (int, error)
}

// Conn is a store connection scoped to one named store.
type Conn interface {
	DocumentStore
	Close() error
}

// Connector hands out store connections. Every loader worker opens its own
// connection so no store state is shared between workers.
type Connector interface {
	Connect(storeName string) (Conn, error)
}
