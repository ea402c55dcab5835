package storage

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/culture-union/checkpulse/models"
)

// PutTask persists a task. Tasks are immutable, so writing the same id
// twice is not expected but is harmless (last write wins).
func (s *Storage) PutTask(task models.Task) error {
	if task.ID == "" {
		return fmt.Errorf("put task: empty id")
	}

	raw, err := marshal(task)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketTasks).Put([]byte(task.ID), raw); err != nil {
			return err
		}
		if task.GroupID != "" {
			return tx.Bucket(bucketGroupTasks).Put(groupKey(task.GroupID, task.ID), nil)
		}
		return nil
	})
}

// GetTask retrieves a task by id. Returns nil when the id is unknown.
func (s *Storage) GetTask(id string) (*models.Task, error) {
	var task *models.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTasks).Get([]byte(id))
		if raw == nil {
			return nil
		}
		task = &models.Task{}
		return json.Unmarshal(raw, task)
	})
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// TasksByGroup returns every task whose group id equals groupID,
// including the group anchor itself.
func (s *Storage) TasksByGroup(groupID string) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanGroup(tx, bucketGroupTasks, bucketTasks, groupID, func(raw []byte) error {
			var t models.Task
			if err := json.Unmarshal(raw, &t); err != nil {
				return err
			}
			tasks = append(tasks, t)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("tasks by group %s: %w", groupID, err)
	}
	return tasks, nil
}
