// Package resolver answers task queries and mutations for a verified owner.
// Every read and write is scoped to the owner's partition.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"quicktask/domain"
	"quicktask/query"
)

// Store is the persistence collaborator.
type Store interface {
	ListTasks(ctx context.Context, ownerID string, c domain.Criteria) ([]domain.Task, error)
	GetTask(ctx context.Context, ownerID, id string) (domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	ReplaceTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, ownerID, id string) error
}

// EventSink receives task events after successful writes.
type EventSink interface {
	Publish(ctx context.Context, ev domain.TaskEvent)
}

// Resolver implements the task operations on top of a Store.
type Resolver struct {
	store  Store
	events EventSink
	log    *log.Logger
	now    func() time.Time
	newID  func() (string, error)
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(r *Resolver) { r.newID = fn }
}

// New builds a Resolver. events may be nil.
func New(store Store, events EventSink, logger *log.Logger, opts ...Option) *Resolver {
	if store == nil {
		panic("resolver.New: store is nil")
	}
	if logger == nil {
		panic("Logger is not initialized")
	}
	r := &Resolver{
		store:  store,
		events: events,
		log:    logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  newTaskID,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// newTaskID returns a time ordered UUID so row key order follows insertion.
func newTaskID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Resolve returns the owner's tasks matching c in the requested order.
func (r *Resolver) Resolve(ctx context.Context, ownerID string, c domain.Criteria) (domain.TaskList, error) {
	if ownerID == "" {
		return domain.TaskList{}, domain.ErrUnauthorized
	}
	tasks, err := r.store.ListTasks(ctx, ownerID, c)
	if err != nil {
		return domain.TaskList{}, fmt.Errorf("list tasks: %w", err)
	}
	return domain.NewTaskList(query.Apply(tasks, ownerID, c)), nil
}

// Get returns one of the owner's tasks. A task owned by someone else is
// reported as not found.
func (r *Resolver) Get(ctx context.Context, ownerID, id string) (domain.Task, error) {
	if ownerID == "" {
		return domain.Task{}, domain.ErrUnauthorized
	}
	t, err := r.store.GetTask(ctx, ownerID, id)
	if err != nil {
		return domain.Task{}, wrapStoreError("get task", err)
	}
	if t.OwnerID != ownerID {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return t, nil
}

// Create validates the draft and stores a new task for the owner.
func (r *Resolver) Create(ctx context.Context, ownerID string, d domain.TaskDraft) (domain.Task, error) {
	if ownerID == "" {
		return domain.Task{}, domain.ErrUnauthorized
	}
	id, err := r.newID()
	if err != nil {
		return domain.Task{}, fmt.Errorf("generate task id: %w", err)
	}
	t, err := domain.NewTask(d, ownerID, id, r.now())
	if err != nil {
		return domain.Task{}, err
	}
	if err := r.store.InsertTask(ctx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	r.log.Debugf("task created, owner: %s, task: %s", ownerID, t.ID)
	r.publish(ctx, domain.NewTaskEvent(domain.TaskCreated, t))
	return t, nil
}

// Update applies the fields present in p to one of the owner's tasks.
func (r *Resolver) Update(ctx context.Context, ownerID, id string, p domain.TaskPatch) (domain.Task, error) {
	current, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return domain.Task{}, err
	}
	updated, err := p.Apply(current, r.now())
	if err != nil {
		return domain.Task{}, err
	}
	if err := r.store.ReplaceTask(ctx, updated); err != nil {
		return domain.Task{}, wrapStoreError("replace task", err)
	}
	r.log.Debugf("task updated, owner: %s, task: %s", ownerID, id)
	r.publish(ctx, domain.NewTaskEvent(domain.TaskUpdated, updated))
	return updated, nil
}

// Delete removes one of the owner's tasks and returns the removed record.
func (r *Resolver) Delete(ctx context.Context, ownerID, id string) (domain.Task, error) {
	current, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := r.store.DeleteTask(ctx, ownerID, id); err != nil {
		return domain.Task{}, wrapStoreError("delete task", err)
	}
	r.log.Debugf("task deleted, owner: %s, task: %s", ownerID, id)
	r.publish(ctx, domain.NewTaskEvent(domain.TaskDeleted, current))
	return current, nil
}

func (r *Resolver) publish(ctx context.Context, ev domain.TaskEvent) {
	if r.events == nil {
		return
	}
	r.events.Publish(ctx, ev)
}

func wrapStoreError(op string, err error) error {
	if errors.Is(err, domain.ErrTaskNotFound) {
		return domain.ErrTaskNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
