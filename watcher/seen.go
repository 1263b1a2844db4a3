package watcher

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"
)

var bucketProcessed = []byte("processed")

// processedEntry records one handled request.
type processedEntry struct {
	RequestID   string    `json:"request_id"`
	TargetNode  string    `json:"target_node"`
	ProcessedAt time.Time `json:"processed_at"`
}

// processedIndex tracks already-handled request IDs so a restarted watcher
// never double-fences. Lookups go to an in-memory btree; the bbolt file
// makes the set survive restarts even after response files have been
// reaped by retention.
type processedIndex struct {
	mu    sync.RWMutex
	index *btree.BTreeG[*processedEntry]
	db    *bbolt.DB
}

func entryLess(a, b *processedEntry) bool {
	return a.RequestID < b.RequestID
}

// openProcessedIndex opens or creates the index at path and loads the
// persisted entries.
func openProcessedIndex(path string) (*processedIndex, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open processed index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProcessed)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init processed index: %w", err)
	}

	p := &processedIndex{
		index: btree.NewG(32, entryLess),
		db:    db,
	}

	if err := p.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// load rebuilds the in-memory btree from disk.
func (p *processedIndex) load() error {
	return p.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProcessed).ForEach(func(k, v []byte) error {
			var entry processedEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				// A corrupt entry only costs us one dedup key.
				return nil
			}
			p.index.ReplaceOrInsert(&entry)
			return nil
		})
	})
}

// Has reports whether requestID was already processed.
func (p *processedIndex) Has(requestID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index.Get(&processedEntry{RequestID: requestID})
	return ok
}

// Mark durably records requestID as processed.
func (p *processedIndex) Mark(requestID, targetNode string) error {
	entry := &processedEntry{
		RequestID:   requestID,
		TargetNode:  targetNode,
		ProcessedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal processed entry: %w", err)
	}

	err = p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProcessed).Put([]byte(requestID), data)
	})
	if err != nil {
		return fmt.Errorf("persist processed entry: %w", err)
	}

	p.mu.Lock()
	p.index.ReplaceOrInsert(entry)
	p.mu.Unlock()
	return nil
}

// Len returns the number of processed requests.
func (p *processedIndex) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index.Len()
}

// Close closes the backing database.
func (p *processedIndex) Close() error {
	return p.db.Close()
}
