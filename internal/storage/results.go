package storage

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/culture-union/checkpulse/models"
)

// UpsertResult inserts the result, or overwrites every field of an
// existing result with the same id. Overwrite is wholesale: stale fields
// from an earlier report are never merged in. Agents may retransmit, so a
// second report for the same id is normal, not an error.
func (s *Storage) UpsertResult(result models.Result) error {
	if result.ID == "" {
		return fmt.Errorf("upsert result: empty id")
	}

	raw, err := marshal(result)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketResults).Put([]byte(result.ID), raw); err != nil {
			return err
		}
		if result.GroupID != "" {
			return tx.Bucket(bucketGroupResults).Put(groupKey(result.GroupID, result.ID), nil)
		}
		return nil
	})
}

// GetResult retrieves a result by task id. Returns nil when no result has
// been reported yet; callers interpret that as "pending".
func (s *Storage) GetResult(id string) (*models.Result, error) {
	var result *models.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketResults).Get([]byte(id))
		if raw == nil {
			return nil
		}
		result = &models.Result{}
		return json.Unmarshal(raw, result)
	})
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", id, err)
	}
	return result, nil
}

// ResultsByGroup returns every reported result whose group id equals
// groupID.
func (s *Storage) ResultsByGroup(groupID string) ([]models.Result, error) {
	var results []models.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanGroup(tx, bucketGroupResults, bucketResults, groupID, func(raw []byte) error {
			var r models.Result
			if err := json.Unmarshal(raw, &r); err != nil {
				return err
			}
			results = append(results, r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("results by group %s: %w", groupID, err)
	}
	return results, nil
}
