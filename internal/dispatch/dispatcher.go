// Package dispatch turns submitted checks into persisted tasks and
// routes them for execution: to a connected agent when one is available,
// otherwise onto the durable local queue.
package dispatch

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/culture-union/checkpulse/internal/storage"
	"github.com/culture-union/checkpulse/models"
)

// AgentDirectory is the view of the agent registry the dispatcher needs.
type AgentDirectory interface {
	LiveAgents() []string
	Send(apiKey string, task models.Task) bool
}

// Receipt is what a submission returns: the id to poll and, for full
// checks, the number of sibling tasks fanned out.
type Receipt struct {
	ID    string
	Parts int
}

// Dispatcher persists and routes tasks.
type Dispatcher struct {
	store  *storage.Storage
	queue  *storage.Queue
	agents AgentDirectory
	policy SelectionPolicy
}

func New(store *storage.Storage, queue *storage.Queue, agents AgentDirectory, policy SelectionPolicy) *Dispatcher {
	if policy == nil {
		policy = RandomPolicy{}
	}
	return &Dispatcher{
		store:  store,
		queue:  queue,
		agents: agents,
		policy: policy,
	}
}

// Submit creates the task (or, for a full check, the task group),
// persists everything, and routes each executable task. The returned
// receipt id doubles as the group id for full checks.
func (d *Dispatcher) Submit(target string, checkType models.CheckType, port int, recordType string) (Receipt, error) {
	if !checkType.Valid() {
		return Receipt{}, fmt.Errorf("submit: unknown check type %q", checkType)
	}

	if checkType == models.CheckFull {
		return d.submitFull(target, port, recordType)
	}

	task := models.Task{
		ID:         uuid.NewString(),
		Target:     target,
		Type:       checkType,
		Port:       port,
		RecordType: recordType,
	}
	if err := d.store.PutTask(task); err != nil {
		return Receipt{}, err
	}
	if err := d.routeTask(task); err != nil {
		return Receipt{}, err
	}
	return Receipt{ID: task.ID}, nil
}

// submitFull fans a full check out into one task per concrete check
// type, all sharing a group anchored by a task whose id equals the group
// id. The anchor is persisted for lookups but never executed.
func (d *Dispatcher) submitFull(target string, port int, recordType string) (Receipt, error) {
	groupID := uuid.NewString()

	anchor := models.Task{
		ID:      groupID,
		Target:  target,
		Type:    models.CheckFull,
		GroupID: groupID,
	}
	if err := d.store.PutTask(anchor); err != nil {
		return Receipt{}, err
	}

	types := models.FanoutTypes()
	for _, ct := range types {
		task := models.Task{
			ID:      uuid.NewString(),
			Target:  target,
			Type:    ct,
			Port:    port,
			GroupID: groupID,
		}
		if ct == models.CheckDNS {
			task.RecordType = recordType
		}

		if err := d.store.PutTask(task); err != nil {
			return Receipt{}, err
		}
		if err := d.routeTask(task); err != nil {
			return Receipt{}, err
		}
	}

	return Receipt{ID: groupID, Parts: len(types)}, nil
}

// routeTask tries exactly one agent delivery and falls back to the local
// queue. There is no retry against a second agent: a failed push already
// tore the dead connection down, and the queue guarantees execution.
func (d *Dispatcher) routeTask(task models.Task) error {
	if apiKey := d.policy.Pick(d.agents.LiveAgents()); apiKey != "" {
		if d.agents.Send(apiKey, task) {
			log.Printf("task %s (%s %s) pushed to agent", task.ID, task.Type, task.Target)
			return nil
		}
	}

	if err := d.queue.Push(task); err != nil {
		return fmt.Errorf("route task %s: %w", task.ID, err)
	}
	log.Printf("task %s (%s %s) queued locally", task.ID, task.Type, task.Target)
	return nil
}
