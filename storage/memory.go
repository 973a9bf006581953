package storage

import (
	"context"
	"sync"

	"quicktask/domain"
)

// Memory is an in-process backend used for local runs and tests. Each owner's
// tasks are kept in insertion order.
type Memory struct {
	mu     sync.RWMutex
	tasks  map[string][]domain.Task
	events []domain.TaskEvent
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string][]domain.Task)}
}

func (m *Memory) ListTasks(_ context.Context, ownerID string, c domain.Criteria) ([]domain.Task, error) {
	status, byStatus := c.StatusFilter()
	priority, byPriority := c.PriorityFilter()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Task{}
	for _, t := range m.tasks[ownerID] {
		if byStatus && t.Status != status {
			continue
		}
		if byPriority && t.Priority != priority {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) GetTask(_ context.Context, ownerID, id string) (domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexOf(ownerID, id); i >= 0 {
		return m.tasks[ownerID][i], nil
	}
	return domain.Task{}, domain.ErrTaskNotFound
}

func (m *Memory) InsertTask(_ context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.OwnerID] = append(m.tasks[t.OwnerID], t)
	return nil
}

func (m *Memory) ReplaceTask(_ context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(t.OwnerID, t.ID)
	if i < 0 {
		return domain.ErrTaskNotFound
	}
	m.tasks[t.OwnerID][i] = t
	return nil
}

func (m *Memory) DeleteTask(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(ownerID, id)
	if i < 0 {
		return domain.ErrTaskNotFound
	}
	list := m.tasks[ownerID]
	m.tasks[ownerID] = append(list[:i:i], list[i+1:]...)
	return nil
}

// PublishTaskEvent records ev; see Events.
func (m *Memory) PublishTaskEvent(_ context.Context, ev domain.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns the events published so far.
func (m *Memory) Events() []domain.TaskEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.TaskEvent(nil), m.events...)
}

func (m *Memory) indexOf(ownerID, id string) int {
	for i, t := range m.tasks[ownerID] {
		if t.ID == id {
			return i
		}
	}
	return -1
}
