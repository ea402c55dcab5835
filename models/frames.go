package models

// Frame types exchanged with remote agents over their WebSocket connection.
const (
	FrameTask   = "task"
	FrameResult = "result"
)

// TaskFrame is pushed by the server to an agent. Data carries the full
// task fields needed for execution, not just the id.
type TaskFrame struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
	Data   Task   `json:"data"`
}

// ResultFrame is sent by an agent once a pushed task has been executed.
// Any frame whose Type the server does not recognize is ignored, so older
// servers tolerate newer agents.
type ResultFrame struct {
	Type   string  `json:"type"`
	Result *Result `json:"result,omitempty"`
}
