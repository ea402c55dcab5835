// Package storage provides the persistence layer for CheckPulse on top of
// bbolt. It stores tasks, results, agents and presence rows in dedicated
// buckets, and hosts the durable task queue (see queue.go).
//
// All operations are atomic with respect to a single id: records are
// marshalled once and replaced wholesale inside a single transaction, so
// concurrent upserts to the same id never interleave partial writes.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketTasks    = []byte("tasks")
	bucketResults  = []byte("results")
	bucketAgents   = []byte("agents")
	bucketAgentKey = []byte("agent_keys") // api key -> agent id
	bucketPresence = []byte("presence")   // api key -> presence row
	bucketQueue    = []byte("queue")      // uint64 sequence -> task payload

	// Secondary indexes for group lookups. Keys are groupID + 0x00 + id,
	// scanned by prefix; values are empty.
	bucketGroupTasks   = []byte("group_tasks")
	bucketGroupResults = []byte("group_results")
)

var allBuckets = [][]byte{
	bucketTasks, bucketResults, bucketAgents, bucketAgentKey,
	bucketPresence, bucketQueue, bucketGroupTasks, bucketGroupResults,
}

// Storage wraps a bbolt database.
type Storage struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the database at path and ensures all
// buckets exist.
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the database.
func (s *Storage) Path() string {
	return s.db.Path()
}

// groupKey builds a composite index key for group membership scans.
func groupKey(groupID, id string) []byte {
	key := make([]byte, 0, len(groupID)+1+len(id))
	key = append(key, groupID...)
	key = append(key, 0)
	key = append(key, id...)
	return key
}

// groupPrefix is the scan prefix for all members of a group.
func groupPrefix(groupID string) []byte {
	return append([]byte(groupID), 0)
}

// scanGroup collects every value from the primary bucket whose id is
// indexed under groupID in the index bucket.
func scanGroup(tx *bolt.Tx, index, primary []byte, groupID string, visit func([]byte) error) error {
	c := tx.Bucket(index).Cursor()
	prefix := groupPrefix(groupID)
	b := tx.Bucket(primary)

	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		id := k[len(prefix):]
		raw := b.Get(id)
		if raw == nil {
			continue // index ahead of primary; treat as absent
		}
		if err := visit(raw); err != nil {
			return err
		}
	}
	return nil
}

func marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return raw, nil
}
