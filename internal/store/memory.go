// Package store provides the in-memory implementation of the storage port,
// used to unit-test the core without touching disk.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gridworks/fieldsync/internal/errors"
)

// MemoryPort implements Port with plain maps. Not durable; exists so the
// core above the port can be exercised deterministically in tests.
type MemoryPort struct {
	mu          sync.RWMutex
	open        bool
	version     int
	collections map[string]map[string][]byte

	// FailOpens makes the next N Open calls fail with OpenErr, so tests
	// can drive the recovery path. Zero disables injection.
	FailOpens int
	OpenErr   error
}

// NewMemoryPort creates an empty in-memory port.
func NewMemoryPort() *MemoryPort {
	return &MemoryPort{}
}

// Open initializes the collections and marks the schema current.
func (p *MemoryPort) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailOpens > 0 {
		p.FailOpens--
		if p.OpenErr != nil {
			return p.OpenErr
		}
		return errors.New(errors.ErrStoreCorrupted, "injected open failure")
	}
	if p.open {
		return nil
	}
	if p.collections == nil {
		p.collections = make(map[string]map[string][]byte)
		for _, col := range Collections {
			p.collections[col] = make(map[string][]byte)
		}
	}
	if p.version < SchemaVersion {
		p.version = SchemaVersion
	}
	p.open = true
	return nil
}

// Close marks the port closed; data survives for a later Open.
func (p *MemoryPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	return nil
}

// Destroy discards all data and leaves the port closed.
func (p *MemoryPort) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collections = nil
	p.version = 0
	p.open = false
	return nil
}

// Ping reports whether the port is open.
func (p *MemoryPort) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return errors.New(errors.ErrStoreUnavailable, "store is not open")
	}
	return nil
}

// SchemaVersion returns the simulated schema version.
func (p *MemoryPort) SchemaVersion(ctx context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return 0, errors.New(errors.ErrStoreUnavailable, "store is not open")
	}
	return p.version, nil
}

// BumpSchemaVersion simulates another process migrating the shared store.
func (p *MemoryPort) BumpSchemaVersion() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.version++
}

func (p *MemoryPort) col(collection string) (map[string][]byte, error) {
	if !p.open {
		return nil, errors.New(errors.ErrStoreUnavailable, "store is not open")
	}
	col, ok := p.collections[collection]
	if !ok {
		return nil, errors.New(errors.ErrInternal, fmt.Sprintf("unknown collection %q", collection))
	}
	return col, nil
}

// Get returns the document stored under key, or NOT_FOUND.
func (p *MemoryPort) Get(ctx context.Context, collection, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	col, err := p.col(collection)
	if err != nil {
		return nil, err
	}
	data, ok := col[key]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, fmt.Sprintf("%s/%s not found", collection, key))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores or replaces the document under key.
func (p *MemoryPort) Put(ctx context.Context, collection, key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	col, err := p.col(collection)
	if err != nil {
		return err
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	col[key] = stored
	return nil
}

// Delete removes the document under key. Missing keys are a no-op.
func (p *MemoryPort) Delete(ctx context.Context, collection, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	col, err := p.col(collection)
	if err != nil {
		return err
	}
	delete(col, key)
	return nil
}

// List returns every document in the collection, ordered by key.
func (p *MemoryPort) List(ctx context.Context, collection string) ([]Doc, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	col, err := p.col(collection)
	if err != nil {
		return nil, err
	}

	docs := make([]Doc, 0, len(col))
	for key, data := range col {
		out := make([]byte, len(data))
		copy(out, data)
		docs = append(docs, Doc{Key: key, Data: out})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// Count returns the number of documents in the collection.
func (p *MemoryPort) Count(ctx context.Context, collection string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	col, err := p.col(collection)
	if err != nil {
		return 0, err
	}
	return len(col), nil
}

// Clear removes every document in the collection.
func (p *MemoryPort) Clear(ctx context.Context, collection string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	col, err := p.col(collection)
	if err != nil {
		return err
	}
	for key := range col {
		delete(col, key)
	}
	return nil
}

// memoryBatch stages writes so a failing callback leaves the maps untouched.
type memoryBatch struct {
	puts    []Doc
	putCols []string
	dels    []Doc
	delCols []string
}

func (b *memoryBatch) Put(collection, key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	b.puts = append(b.puts, Doc{Key: key, Data: stored})
	b.putCols = append(b.putCols, collection)
	return nil
}

func (b *memoryBatch) Delete(collection, key string) error {
	b.dels = append(b.dels, Doc{Key: key})
	b.delCols = append(b.delCols, collection)
	return nil
}

// RunBatch applies fn's writes atomically under the write lock.
func (p *MemoryPort) RunBatch(ctx context.Context, fn func(Batch) error) error {
	batch := &memoryBatch{}
	if err := fn(batch); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Validate every target collection before mutating anything.
	for i := range batch.puts {
		if _, err := p.col(batch.putCols[i]); err != nil {
			return err
		}
	}
	for i := range batch.dels {
		if _, err := p.col(batch.delCols[i]); err != nil {
			return err
		}
	}

	for i, doc := range batch.puts {
		p.collections[batch.putCols[i]][doc.Key] = doc.Data
	}
	for i, doc := range batch.dels {
		delete(p.collections[batch.delCols[i]], doc.Key)
	}
	return nil
}
