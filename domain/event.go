package domain

// Task event types published after a successful mutation.
const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskDeleted = "task-deleted"
)

// TaskEvent describes a single persisted task change. Task carries the
// authoritative record after the change, or the removed record for deletes.
type TaskEvent struct {
	Type      string `json:"type"`
	OwnerID   string `json:"ownerId"`
	TaskID    string `json:"taskId"`
	Task      *Task  `json:"task,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewTaskEvent builds an event for t. The timestamp is assigned on publish.
func NewTaskEvent(eventType string, t Task) TaskEvent {
	return TaskEvent{Type: eventType, OwnerID: t.OwnerID, TaskID: t.ID, Task: &t}
}
