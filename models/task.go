package models

// Task is one requested check. Tasks are immutable once created and are
// never deleted in normal operation.
type Task struct {
	// ID is the opaque unique identifier assigned at creation.
	ID string `json:"id"`

	// Target is the host, URL or IP to check.
	Target string `json:"target"`

	// Type is the check type to perform.
	Type CheckType `json:"type"`

	// Port is only meaningful for tcp checks. Zero means the default (80).
	Port int `json:"port,omitempty"`

	// RecordType is only meaningful for dns checks (A, AAAA, MX, ...).
	RecordType string `json:"record_type,omitempty"`

	// GroupID links sibling tasks produced by a full fan-out. A task
	// without a group is its own implicit singleton group.
	GroupID string `json:"group_id,omitempty"`
}
