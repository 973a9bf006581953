package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"quicktask/domain"
	"quicktask/storage"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.TaskEvent
}

func (s *recordingSink) Publish(ctx context.Context, ev domain.TaskEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

type failingStore struct {
	*storage.Memory
	err error
}

func (f failingStore) ListTasks(ctx context.Context, ownerID string, c domain.Criteria) ([]domain.Task, error) {
	return nil, f.err
}

func (f failingStore) InsertTask(ctx context.Context, t domain.Task) error {
	return f.err
}

func newTestResolver(t *testing.T, store Store) (*Resolver, *recordingSink) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	sink := &recordingSink{}
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	seq := 0
	r := New(store, sink, logger,
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
		WithIDGenerator(func() (string, error) {
			seq++
			return fmt.Sprintf("task-%03d", seq), nil
		}),
	)
	return r, sink
}

func ptr[T any](v T) *T { return &v }

func TestCreateThenGetAppliesDefaults(t *testing.T) {
	r, sink := newTestResolver(t, storage.NewMemory())
	ctx := context.Background()

	created, err := r.Create(ctx, "alice", domain.TaskDraft{Title: "X"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := r.Get(ctx, "alice", created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Description != "" || got.Priority != domain.PriorityMed || got.Status != domain.StatusTodo || got.DueDate != nil {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.OwnerID != "alice" {
		t.Fatalf("unexpected owner: %s", got.OwnerID)
	}
	if len(sink.events) != 1 || sink.events[0].Type != domain.TaskCreated || sink.events[0].TaskID != created.ID {
		t.Fatalf("unexpected events: %+v", sink.events)
	}
}

func TestCreateRejectsInvalidDrafts(t *testing.T) {
	store := storage.NewMemory()
	r, sink := newTestResolver(t, store)
	ctx := context.Background()

	if _, err := r.Create(ctx, "alice", domain.TaskDraft{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := r.Create(ctx, "alice", domain.TaskDraft{Title: "x", Priority: ptr(domain.Priority("Urgent"))}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for priority, got %v", err)
	}
	list, _ := r.Resolve(ctx, "alice", domain.Criteria{})
	if list.Count != 0 || len(sink.events) != 0 {
		t.Fatalf("expected nothing persisted, got %+v / %+v", list, sink.events)
	}
}

func TestResolveRequiresOwner(t *testing.T) {
	r, _ := newTestResolver(t, storage.NewMemory())
	if _, err := r.Resolve(context.Background(), "", domain.Criteria{}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := r.Create(context.Background(), "", domain.TaskDraft{Title: "x"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestResolveNeverReturnsForeignTasks(t *testing.T) {
	r, _ := newTestResolver(t, storage.NewMemory())
	ctx := context.Background()
	for _, owner := range []string{"alice", "bob", "alice", "bob"} {
		if _, err := r.Create(ctx, owner, domain.TaskDraft{Title: "shared title"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := r.Resolve(ctx, "alice", domain.Criteria{Search: ptr("SHARED")})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if list.Count != 2 || len(list.Tasks) != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}
	for _, tk := range list.Tasks {
		if tk.OwnerID != "alice" {
			t.Fatalf("foreign task leaked: %+v", tk)
		}
	}
}

func TestResolvePriorityDescendingScenario(t *testing.T) {
	store := storage.NewMemory()
	logger, _ := logtest.NewNullLogger()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seq := 0
	r := New(store, nil, logger,
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() (string, error) { seq++; return fmt.Sprintf("t%d", seq), nil }),
	)
	ctx := context.Background()
	for _, p := range []domain.Priority{domain.PriorityHigh, domain.PriorityLow, domain.PriorityMed} {
		if _, err := r.Create(ctx, "o", domain.TaskDraft{Title: string(p), Priority: ptr(p)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := r.Resolve(ctx, "o", domain.Criteria{SortBy: ptr(domain.SortByPriority), SortOrder: ptr(domain.SortDesc)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []domain.Priority{domain.PriorityHigh, domain.PriorityMed, domain.PriorityLow}
	for i, p := range want {
		if list.Tasks[i].Priority != p {
			t.Fatalf("position %d: want %s, got %s", i, p, list.Tasks[i].Priority)
		}
	}

	list, _ = r.Resolve(ctx, "o", domain.Criteria{SortBy: ptr(domain.SortByPriority), SortOrder: ptr(domain.SortAsc)})
	want = []domain.Priority{domain.PriorityLow, domain.PriorityMed, domain.PriorityHigh}
	for i, p := range want {
		if list.Tasks[i].Priority != p {
			t.Fatalf("asc position %d: want %s, got %s", i, p, list.Tasks[i].Priority)
		}
	}
}

func TestResolveUnknownFilterYieldsEmptyList(t *testing.T) {
	r, _ := newTestResolver(t, storage.NewMemory())
	ctx := context.Background()
	_, _ = r.Create(ctx, "o", domain.TaskDraft{Title: "x"})

	list, err := r.Resolve(ctx, "o", domain.Criteria{Status: ptr(domain.Status("Archived"))})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if list.Count != 0 || list.Tasks == nil {
		t.Fatalf("expected empty list, got %+v", list)
	}
}

func TestUpdateOnlyChangesPresentFields(t *testing.T) {
	r, sink := newTestResolver(t, storage.NewMemory())
	ctx := context.Background()
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	created, err := r.Create(ctx, "o", domain.TaskDraft{
		Title:       "Plan trip",
		Description: ptr("flights"),
		Priority:    ptr(domain.PriorityHigh),
		DueDate:     &due,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := r.Update(ctx, "o", created.ID, domain.TaskPatch{Status: ptr(domain.StatusCompleted)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, _ := r.Get(ctx, "o", created.ID)
	for _, tk := range []domain.Task{updated, stored} {
		if tk.Status != domain.StatusCompleted {
			t.Fatalf("expected completed, got %s", tk.Status)
		}
		if tk.Title != "Plan trip" || tk.Description != "flights" || tk.Priority != domain.PriorityHigh || tk.DueDate == nil || !tk.DueDate.Equal(due) {
			t.Fatalf("unexpected field change: %+v", tk)
		}
		if !tk.CreatedAt.Equal(created.CreatedAt) || !tk.UpdatedAt.After(created.UpdatedAt) {
			t.Fatalf("unexpected timestamps: %+v", tk)
		}
	}
	if last := sink.events[len(sink.events)-1]; last.Type != domain.TaskUpdated {
		t.Fatalf("expected update event, got %+v", last)
	}
}

func TestUpdateForeignTaskIsNotFound(t *testing.T) {
	r, _ := newTestResolver(t, storage.NewMemory())
	ctx := context.Background()
	created, _ := r.Create(ctx, "alice", domain.TaskDraft{Title: "secret"})

	_, err := r.Update(ctx, "mallory", created.ID, domain.TaskPatch{Title: ptr("pwned")})
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	got, _ := r.Get(ctx, "alice", created.ID)
	if got.Title != "secret" {
		t.Fatalf("foreign update applied: %+v", got)
	}
}

func TestUpdateValidationLeavesTaskUntouched(t *testing.T) {
	r, _ := newTestResolver(t, storage.NewMemory())
	ctx := context.Background()
	created, _ := r.Create(ctx, "o", domain.TaskDraft{Title: "keep"})

	_, err := r.Update(ctx, "o", created.ID, domain.TaskPatch{Title: ptr(""), Status: ptr(domain.StatusCompleted)})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := r.Get(ctx, "o", created.ID)
	if got.Title != "keep" || got.Status != domain.StatusTodo {
		t.Fatalf("partial update applied: %+v", got)
	}
}

func TestDeleteTwiceIsNotFound(t *testing.T) {
	r, sink := newTestResolver(t, storage.NewMemory())
	ctx := context.Background()
	created, _ := r.Create(ctx, "o", domain.TaskDraft{Title: "temp"})

	deleted, err := r.Delete(ctx, "o", created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.ID != created.ID || deleted.Title != "temp" {
		t.Fatalf("unexpected deleted record: %+v", deleted)
	}
	if _, err := r.Delete(ctx, "o", created.ID); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := r.Get(ctx, "o", created.ID); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if last := sink.events[len(sink.events)-1]; last.Type != domain.TaskDeleted || last.Task == nil || last.Task.Title != "temp" {
		t.Fatalf("unexpected delete event: %+v", last)
	}
}

func TestStoreFailuresAreWrapped(t *testing.T) {
	boom := errors.New("table unavailable")
	r, sink := newTestResolver(t, failingStore{Memory: storage.NewMemory(), err: boom})
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "o", domain.Criteria{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, err := r.Create(ctx, "o", domain.TaskDraft{Title: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("expected no events for failed writes")
	}
}

func TestDefaultIDsFollowInsertionOrder(t *testing.T) {
	a, err := newTaskID()
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	b, _ := newTaskID()
	if !(a < b) {
		t.Fatalf("expected %s < %s", a, b)
	}
}
