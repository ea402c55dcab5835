package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/culture-union/checkpulse/models"
)

// CreateAgent persists a new agent and indexes it by api key.
func (s *Storage) CreateAgent(agent models.Agent) error {
	if agent.ID == "" || agent.APIKey == "" {
		return fmt.Errorf("create agent: id and api key are required")
	}

	raw, err := marshal(agent)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		keys := tx.Bucket(bucketAgentKey)
		if keys.Get([]byte(agent.APIKey)) != nil {
			return fmt.Errorf("create agent: api key already registered")
		}
		if err := tx.Bucket(bucketAgents).Put([]byte(agent.ID), raw); err != nil {
			return err
		}
		return keys.Put([]byte(agent.APIKey), []byte(agent.ID))
	})
}

// GetAgent retrieves an agent by id. Returns nil when unknown.
func (s *Storage) GetAgent(id string) (*models.Agent, error) {
	var agent *models.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAgents).Get([]byte(id))
		if raw == nil {
			return nil
		}
		agent = &models.Agent{}
		return json.Unmarshal(raw, agent)
	})
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return agent, nil
}

// GetAgentByKey retrieves an agent by its api key. Returns nil when the
// key is not registered.
func (s *Storage) GetAgentByKey(apiKey string) (*models.Agent, error) {
	var agent *models.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketAgentKey).Get([]byte(apiKey))
		if id == nil {
			return nil
		}
		raw := tx.Bucket(bucketAgents).Get(id)
		if raw == nil {
			return nil
		}
		agent = &models.Agent{}
		return json.Unmarshal(raw, agent)
	})
	if err != nil {
		return nil, fmt.Errorf("get agent by key: %w", err)
	}
	return agent, nil
}

// ListAgents returns all registered agents.
func (s *Storage) ListAgents() ([]models.Agent, error) {
	var agents []models.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAgents).ForEach(func(_, raw []byte) error {
			var a models.Agent
			if err := json.Unmarshal(raw, &a); err != nil {
				return err
			}
			agents = append(agents, a)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// DeleteAgent removes an agent together with its api key index and any
// presence row. The caller is responsible for closing a live connection.
// Deleting an unknown id is a no-op.
func (s *Storage) DeleteAgent(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		agents := tx.Bucket(bucketAgents)
		raw := agents.Get([]byte(id))
		if raw == nil {
			return nil
		}
		var agent models.Agent
		if err := json.Unmarshal(raw, &agent); err != nil {
			return err
		}
		if err := agents.Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketAgentKey).Delete([]byte(agent.APIKey)); err != nil {
			return err
		}
		return tx.Bucket(bucketPresence).Delete([]byte(agent.APIKey))
	})
}

// UpdateAgentIP records the last known IP on the agent record.
func (s *Storage) UpdateAgentIP(id, ip string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		agents := tx.Bucket(bucketAgents)
		raw := agents.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("update agent ip: unknown agent %s", id)
		}
		var agent models.Agent
		if err := json.Unmarshal(raw, &agent); err != nil {
			return err
		}
		agent.LastKnownIP = ip
		updated, err := marshal(agent)
		if err != nil {
			return err
		}
		return agents.Put([]byte(id), updated)
	})
}

// UpsertPresence creates or refreshes the presence row for an api key,
// preserving ConnectedAt on refresh. At most one row exists per key.
func (s *Storage) UpsertPresence(p models.Presence) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPresence)
		if raw := b.Get([]byte(p.APIKey)); raw != nil {
			var existing models.Presence
			if err := json.Unmarshal(raw, &existing); err == nil && !existing.ConnectedAt.IsZero() {
				p.ConnectedAt = existing.ConnectedAt
			}
		}
		if p.ConnectedAt.IsZero() {
			p.ConnectedAt = time.Now().UTC()
		}
		p.RefreshedAt = time.Now().UTC()
		raw, err := marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.APIKey), raw)
	})
}

// DeletePresence removes the presence row for an api key. Safe to call
// when no row exists.
func (s *Storage) DeletePresence(apiKey string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPresence).Delete([]byte(apiKey))
	})
}

// ListPresence returns all presence rows.
func (s *Storage) ListPresence() ([]models.Presence, error) {
	var rows []models.Presence
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPresence).ForEach(func(_, raw []byte) error {
			var p models.Presence
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			rows = append(rows, p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	return rows, nil
}

// ClearPresence deletes every presence row. Called on startup: after a
// restart no connection survives, so any persisted row is stale by
// definition.
func (s *Storage) ClearPresence() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketPresence); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketPresence)
		return err
	})
}
