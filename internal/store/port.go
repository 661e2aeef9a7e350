// Package store provides durable, versioned, crash-tolerant local storage
// for the fieldsync core: inspection records, photos, the sync queue, the
// generic TTL cache table, feeder snapshots and the viewing cache.
package store

import "context"

// Collection names for the persisted schema.
const (
	ColInspections  = "inspections"
	ColPhotos       = "photos"
	ColSyncQueue    = "sync_queue"
	ColCache        = "cache"
	ColFeederCache  = "feeder_cache"
	ColViewingCache = "viewing_cache"
)

// Collections lists every collection the schema defines.
var Collections = []string{
	ColInspections,
	ColPhotos,
	ColSyncQueue,
	ColCache,
	ColFeederCache,
	ColViewingCache,
}

// Doc is one stored document: an opaque JSON body under a string key.
type Doc struct {
	Key  string
	Data []byte
}

// Batch collects writes that must commit atomically.
type Batch interface {
	Put(collection, key string, data []byte) error
	Delete(collection, key string) error
}

// Port abstracts the durable storage engine. The core only speaks this
// interface, so it can run against SQLite in production and the in-memory
// implementation in unit tests.
//
// All methods return coded errors from internal/errors: NOT_FOUND for a
// missing key, STORE_* for engine faults. Open must be safe to call again
// after Close. Destroy removes the underlying storage entirely and leaves
// the port closed.
type Port interface {
	Open(ctx context.Context) error
	Close() error
	Destroy() error

	// Ping verifies the engine answers a trivial query.
	Ping(ctx context.Context) error

	// SchemaVersion returns the monotonically increasing schema version
	// currently persisted in the store. Zero means no schema yet.
	SchemaVersion(ctx context.Context) (int, error)

	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, data []byte) error
	Delete(ctx context.Context, collection, key string) error
	List(ctx context.Context, collection string) ([]Doc, error)
	Count(ctx context.Context, collection string) (int, error)
	Clear(ctx context.Context, collection string) error

	// RunBatch executes fn's writes in a single transaction.
	RunBatch(ctx context.Context, fn func(Batch) error) error
}
