package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/culture-union/checkpulse/models"
)

// Queue is a durable FIFO of pending tasks, backed by a bbolt bucket with
// monotonically increasing sequence keys. Items pushed before a crash are
// still poppable after recovery. Ordering is oldest-first; there is no
// priority and no dedup.
type Queue struct {
	db     *bolt.DB
	notify chan struct{}
}

// NewQueue returns the durable queue hosted by s.
func NewQueue(s *Storage) *Queue {
	return &Queue{
		db:     s.db,
		notify: make(chan struct{}, 1),
	}
}

// Push appends a task to the queue and wakes one waiting consumer.
func (q *Queue) Push(task models.Task) error {
	raw, err := marshal(task)
	if err != nil {
		return err
	}

	err = q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, raw)
	})
	if err != nil {
		return fmt.Errorf("queue push: %w", err)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// pop removes and returns the oldest item, if any.
func (q *Queue) pop() (models.Task, bool, error) {
	var (
		task  models.Task
		found bool
	)
	err := q.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketQueue).Cursor()
		k, v := c.First()
		if k == nil {
			return nil
		}
		if err := json.Unmarshal(v, &task); err != nil {
			return err
		}
		found = true
		return c.Delete()
	})
	if err != nil {
		return models.Task{}, false, fmt.Errorf("queue pop: %w", err)
	}
	return task, found, nil
}

// PopWait blocks up to timeout for an item. The second return value is
// false on timeout, which consumer loops use as their liveness check
// point. Returns ctx.Err() when the context is cancelled.
func (q *Queue) PopWait(ctx context.Context, timeout time.Duration) (models.Task, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		task, ok, err := q.pop()
		if err != nil || ok {
			return task, ok, err
		}

		select {
		case <-q.notify:
			// Another push arrived; retry. The item may already have
			// been taken by a sibling consumer, in which case we keep
			// waiting for the remainder of the timeout.
		case <-timer.C:
			return models.Task{}, false, nil
		case <-ctx.Done():
			return models.Task{}, false, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() (int, error) {
	var n int
	err := q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketQueue).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("queue len: %w", err)
	}
	return n, nil
}
