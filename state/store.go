// Package state keeps the client-side copy of the caller's tasks in sync with
// the API. Intents call the backend and feed the outcome through a single
// reducer; refresh responses are sequenced so only the latest is applied.
package state

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"quicktask/domain"
)

// Backend is the remote task API.
type Backend interface {
	ListTasks(ctx context.Context, c domain.Criteria) (domain.TaskList, error)
	CreateTask(ctx context.Context, d domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) (domain.Task, error)
}

// Store is safe for concurrent use.
type Store struct {
	backend Backend
	log     *log.Logger

	mu      sync.Mutex
	state   State
	version uint64
	subs    map[int]func(State)
	nextSub int

	// notifyMu serializes delivery; delivered is guarded by it.
	notifyMu  sync.Mutex
	delivered uint64
}

// New creates a store with default criteria and no tasks. Call Refresh to
// load tasks.
func New(backend Backend, logger *log.Logger) *Store {
	if backend == nil {
		panic("state.New: backend is nil")
	}
	if logger == nil {
		panic("state.New: logger is nil")
	}
	return &Store{backend: backend, log: logger, state: initialState(), subs: map[int]func(State){}}
}

// Snapshot returns the current state. The returned Tasks slice must not be
// modified.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive state changes. Calls are sequential and
// in order; a state superseded before it could be delivered is skipped, so
// the last call always carries the latest state. fn must not call intents on
// the same store. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) dispatch(m message) State {
	s.mu.Lock()
	s.state = reduce(s.state, m)
	s.version++
	next := s.state
	s.mu.Unlock()

	s.notify()
	return next
}

// notify delivers the newest state to subscribers unless a concurrent
// dispatch already did.
func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.version == s.delivered {
		s.mu.Unlock()
		return
	}
	latest, version := s.state, s.version
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(latest)
	}
	s.delivered = version
}

// SetCriteria merges partial into the current criteria and refreshes. An
// empty value clears that constraint.
func (s *Store) SetCriteria(ctx context.Context, partial domain.Criteria) error {
	s.dispatch(criteriaMerged{partial: partial})
	return s.Refresh(ctx)
}

// ClearCriteria restores the default criteria and refreshes.
func (s *Store) ClearCriteria(ctx context.Context) error {
	s.dispatch(criteriaReset{})
	return s.Refresh(ctx)
}

// Refresh replaces the collection with the server's answer for the current
// criteria. A response that arrives after a newer refresh was issued is
// discarded.
func (s *Store) Refresh(ctx context.Context) error {
	issued := s.dispatch(refreshIssued{})
	seq, criteria := issued.Issued, issued.Criteria

	list, err := s.backend.ListTasks(ctx, criteria)
	if err != nil {
		next := s.dispatch(refreshFailed{seq: seq, err: err})
		if next.Issued != seq {
			s.log.WithError(err).Debugf("stale refresh %d failed, latest is %d", seq, next.Issued)
		} else {
			s.log.WithError(err).Warn("refresh tasks failed")
		}
		return err
	}

	next := s.dispatch(refreshSucceeded{seq: seq, tasks: list.Tasks})
	if next.Applied != seq {
		s.log.Debugf("discarded stale refresh %d, latest is %d", seq, next.Issued)
	}
	return nil
}

// Create adds a task and prepends the stored record.
func (s *Store) Create(ctx context.Context, d domain.TaskDraft) (domain.Task, error) {
	t, err := s.backend.CreateTask(ctx, d)
	if err != nil {
		s.fail("create task", err)
		return domain.Task{}, err
	}
	s.dispatch(taskCreated{task: t})
	return t, nil
}

// Update changes the present fields of a task and replaces it with the
// stored record.
func (s *Store) Update(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	t, err := s.backend.UpdateTask(ctx, id, p)
	if err != nil {
		s.fail("update task", err)
		return domain.Task{}, err
	}
	s.dispatch(taskUpdated{task: t})
	return t, nil
}

// Delete removes a task.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.backend.DeleteTask(ctx, id); err != nil {
		s.fail("delete task", err)
		return err
	}
	s.dispatch(taskDeleted{id: id})
	return nil
}

func (s *Store) fail(op string, err error) {
	s.log.WithError(err).Warn(op + " failed")
	s.dispatch(intentFailed{err: err})
}
