package models

// ResultStatus is the terminal outcome of a task. "pending" is never
// stored; it is derived from the absence of a Result.
type ResultStatus string

const (
	// StatusOK means the check succeeded.
	StatusOK ResultStatus = "ok"

	// StatusFail means the check ran but the target was unreachable or
	// otherwise failed the success condition.
	StatusFail ResultStatus = "fail"

	// StatusError means the check itself crashed (bad arguments, missing
	// tool, panic in the prober).
	StatusError ResultStatus = "error"

	// StatusPending marks a placeholder entry synthesized for a group
	// sibling that has not reported. It is never persisted.
	StatusPending ResultStatus = "pending"
)

// Result is the outcome of executing exactly one Task. It shares the
// task's id; at most one Result exists per task, with upsert semantics so
// a retransmitted report from an agent overwrites the previous one.
type Result struct {
	// ID equals the id of the Task this result answers.
	ID string `json:"id"`

	Status ResultStatus `json:"status"`

	// Code is an optional numeric status code (HTTP status for http checks).
	Code *int `json:"code,omitempty"`

	// ResponseTime is the elapsed time in seconds, when known.
	ResponseTime *float64 `json:"response_time,omitempty"`

	// Data is the check-type-specific payload.
	Data *ResultData `json:"data,omitempty"`

	// Error holds human-readable failure detail when Status is fail or error.
	Error string `json:"error,omitempty"`

	// GroupID is a denormalized copy of the originating task's group id,
	// so group aggregation needs no join.
	GroupID string `json:"group_id,omitempty"`
}

// ResultData is the structured payload of a result. It always carries its
// own Type tag so a result can be classified without consulting its task;
// the remaining fields are populated per check type.
type ResultData struct {
	Type CheckType `json:"type"`

	// http
	Headers map[string]string `json:"headers,omitempty"`
	URL     string            `json:"url,omitempty"`

	// ping
	Output string `json:"output,omitempty"`

	// tcp
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// traceroute
	Trace []string `json:"trace,omitempty"`

	// dns
	Records    []string `json:"records,omitempty"`
	RecordType string   `json:"record_type,omitempty"`
}
