package domain

import (
	"strings"
	"time"
)

// Priority is the importance of a task. Declared order is Low < Med < High.
type Priority string

const (
	PriorityLow  Priority = "Low"
	PriorityMed  Priority = "Med"
	PriorityHigh Priority = "High"
)

// Status is the progress state of a task.
type Status string

const (
	StatusTodo       Status = "Todo"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Task represents a single task owned by one user.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"dueDate"`
	OwnerID     string     `json:"ownerId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskList is the ordered result of a resolve call.
type TaskList struct {
	Count int    `json:"count"`
	Tasks []Task `json:"tasks"`
}

// NewTaskList materializes tasks into a list whose count matches its length.
func NewTaskList(tasks []Task) TaskList {
	if tasks == nil {
		tasks = []Task{}
	}
	return TaskList{Count: len(tasks), Tasks: tasks}
}

// Rank returns the position of p in the declared enumeration, or -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMed:
		return 1
	case PriorityHigh:
		return 2
	}
	return -1
}

// Valid reports whether p is a declared priority.
func (p Priority) Valid() bool { return p.Rank() >= 0 }

// Valid reports whether s is a declared status.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParsePriority accepts only declared priority values.
func ParsePriority(v string) (Priority, error) {
	p := Priority(v)
	if !p.Valid() {
		return "", &ValidationError{Field: "priority", Reason: "Priority must be one of Low, Med, High"}
	}
	return p, nil
}

// ParseStatus accepts only declared status values.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Reason: "Status must be one of Todo, In Progress, Completed"}
	}
	return s, nil
}

// TaskDraft carries the fields of a create request.
type TaskDraft struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// NewTask validates the draft and builds a task with defaults applied.
func NewTask(d TaskDraft, ownerID, id string, now time.Time) (Task, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return Task{}, &ValidationError{Field: "title", Reason: "Title is required"}
	}
	t := Task{
		ID:        id,
		Title:     title,
		Priority:  PriorityMed,
		Status:    StatusTodo,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if d.Description != nil {
		t.Description = strings.TrimSpace(*d.Description)
	}
	if d.Priority != nil && *d.Priority != "" {
		p, err := ParsePriority(string(*d.Priority))
		if err != nil {
			return Task{}, err
		}
		t.Priority = p
	}
	if d.Status != nil && *d.Status != "" {
		s, err := ParseStatus(string(*d.Status))
		if err != nil {
			return Task{}, err
		}
		t.Status = s
	}
	if d.DueDate != nil {
		due := d.DueDate.UTC()
		t.DueDate = &due
	}
	return t, nil
}
