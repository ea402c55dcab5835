// Package worker runs the local execution pool: a fixed number of
// goroutines draining the durable task queue and persisting results.
package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/culture-union/checkpulse/internal/probes"
	"github.com/culture-union/checkpulse/internal/storage"
	"github.com/culture-union/checkpulse/models"
)

const popTimeout = 5 * time.Second

// Pool drains the queue with a fixed number of workers. Each popped task
// is executed through the probe set and its result upserted; a task is
// removed from the queue before execution, so a crash mid-execution
// loses at most the in-flight tasks, never queued ones.
type Pool struct {
	queue   *storage.Queue
	store   *storage.Storage
	set     probes.Set
	size    int
	wg      sync.WaitGroup
	started bool
}

// NewPool creates a pool of size workers. Size must be at least 1.
func NewPool(queue *storage.Queue, store *storage.Storage, set probes.Set, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		queue: queue,
		store: store,
		set:   set,
		size:  size,
	}
}

// Start launches the worker goroutines. Workers exit when ctx is
// cancelled; Wait blocks until all of them have drained out.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	log.Printf("worker pool started with %d workers", p.size)
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	for {
		task, ok, err := p.queue.PopWait(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker %d: pop failed: %v", id, err)
			continue
		}
		if !ok {
			continue
		}

		p.execute(ctx, id, task)
	}
}

func (p *Pool) execute(ctx context.Context, id int, task models.Task) {
	result := probes.Execute(ctx, p.set, task)
	if err := p.store.UpsertResult(result); err != nil {
		log.Printf("worker %d: store result for task %s: %v", id, task.ID, err)
		return
	}
	log.Printf("worker %d: task %s (%s %s) -> %s", id, task.ID, task.Type, task.Target, result.Status)
}
