package models

import "time"

// Agent is a registered remote executor identity. Created once at
// registration; only LastKnownIP changes afterwards. Deleting an agent
// cascades to its live connection and presence row.
type Agent struct {
	ID           string    `json:"id"`
	APIKey       string    `json:"api_key"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	LastKnownIP  string    `json:"last_known_ip,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Presence records that an agent currently holds an open connection. It is
// a best-effort mirror of the registry's in-memory connection map; the map
// is authoritative for routing decisions. At most one presence row exists
// per api key.
type Presence struct {
	APIKey      string    `json:"api_key"`
	AgentID     string    `json:"agent_id"`
	Name        string    `json:"name"`
	IP          string    `json:"ip"`
	ConnectedAt time.Time `json:"connected_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
