package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quicktask/domain"
)

func ptr[T any](v T) *T { return &v }

type backendMock struct {
	mock.Mock
}

func (m *backendMock) ListTasks(ctx context.Context, c domain.Criteria) (domain.TaskList, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(domain.TaskList), args.Error(1)
}

func (m *backendMock) CreateTask(ctx context.Context, d domain.TaskDraft) (domain.Task, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(domain.Task), args.Error(1)
}

func (m *backendMock) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	args := m.Called(ctx, id, p)
	return args.Get(0).(domain.Task), args.Error(1)
}

func (m *backendMock) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Task), args.Error(1)
}

func newStore(t *testing.T, b Backend) *Store {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	return New(b, logger)
}

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func list(ids ...string) domain.TaskList {
	tasks := make([]domain.Task, len(ids))
	for i, id := range ids {
		tasks[i] = domain.Task{ID: id, Title: id}
	}
	return domain.NewTaskList(tasks)
}

func TestNewStoreStartsWithDefaults(t *testing.T) {
	s := newStore(t, new(backendMock))
	snap := s.Snapshot()

	require.Empty(t, snap.Tasks)
	require.NotNil(t, snap.Tasks)
	key, order := snap.Criteria.Ordering()
	require.Equal(t, domain.SortByDate, key)
	require.Equal(t, domain.SortDesc, order)
	require.Zero(t, snap.Issued)
}

func TestRefreshReplacesCollection(t *testing.T) {
	b := new(backendMock)
	b.On("ListTasks", mock.Anything, mock.Anything).Return(list("a", "b"), nil).Once()
	b.On("ListTasks", mock.Anything, mock.Anything).Return(list("c"), nil).Once()
	s := newStore(t, b)

	require.NoError(t, s.Refresh(context.Background()))
	require.Equal(t, []string{"a", "b"}, ids(s.Snapshot().Tasks))

	require.NoError(t, s.Refresh(context.Background()))
	snap := s.Snapshot()
	require.Equal(t, []string{"c"}, ids(snap.Tasks))
	require.Equal(t, uint64(2), snap.Applied)
	require.False(t, snap.Loading)
	b.AssertExpectations(t)
}

func TestSetCriteriaMergesThenRefreshes(t *testing.T) {
	b := new(backendMock)
	b.On("ListTasks", mock.Anything, mock.MatchedBy(func(c domain.Criteria) bool {
		s, ok := c.StatusFilter()
		return ok && s == domain.StatusTodo && c.Priority == nil
	})).Return(list("todo"), nil).Once()
	b.On("ListTasks", mock.Anything, mock.MatchedBy(func(c domain.Criteria) bool {
		s, sok := c.StatusFilter()
		p, pok := c.PriorityFilter()
		return sok && s == domain.StatusTodo && pok && p == domain.PriorityHigh
	})).Return(list("todo-high"), nil).Once()
	s := newStore(t, b)
	ctx := context.Background()

	require.NoError(t, s.SetCriteria(ctx, domain.Criteria{Status: ptr(domain.StatusTodo)}))
	require.NoError(t, s.SetCriteria(ctx, domain.Criteria{Priority: ptr(domain.PriorityHigh)}))

	snap := s.Snapshot()
	require.Equal(t, []string{"todo-high"}, ids(snap.Tasks))
	key, _ := snap.Criteria.Ordering()
	require.Equal(t, domain.SortByDate, key)
	b.AssertExpectations(t)
}

func TestClearCriteriaRestoresDefaults(t *testing.T) {
	b := new(backendMock)
	b.On("ListTasks", mock.Anything, mock.Anything).Return(list("x"), nil)
	s := newStore(t, b)
	ctx := context.Background()

	require.NoError(t, s.SetCriteria(ctx, domain.Criteria{
		Status: ptr(domain.StatusCompleted), Search: ptr("report"), SortBy: ptr(domain.SortByPriority),
	}))
	require.NoError(t, s.ClearCriteria(ctx))

	c := s.Snapshot().Criteria
	_, hasStatus := c.StatusFilter()
	_, hasSearch := c.SearchFilter()
	key, order := c.Ordering()
	require.False(t, hasStatus)
	require.False(t, hasSearch)
	require.Equal(t, domain.SortByDate, key)
	require.Equal(t, domain.SortDesc, order)

	last := b.Calls[len(b.Calls)-1].Arguments.Get(1).(domain.Criteria)
	_, lastHasStatus := last.StatusFilter()
	require.False(t, lastHasStatus)
}

func TestRefreshFailureKeepsCollection(t *testing.T) {
	boom := errors.New("network down")
	b := new(backendMock)
	b.On("ListTasks", mock.Anything, mock.Anything).Return(list("a"), nil).Once()
	b.On("ListTasks", mock.Anything, mock.Anything).Return(domain.TaskList{}, boom).Once()
	s := newStore(t, b)

	require.NoError(t, s.Refresh(context.Background()))
	err := s.Refresh(context.Background())
	require.ErrorIs(t, err, boom)

	snap := s.Snapshot()
	require.Equal(t, []string{"a"}, ids(snap.Tasks))
	require.ErrorIs(t, snap.Err, boom)
	require.False(t, snap.Loading)
	require.Equal(t, uint64(1), snap.Applied)
}

func TestCreatePrependsAuthoritativeRecord(t *testing.T) {
	b := new(backendMock)
	b.On("ListTasks", mock.Anything, mock.Anything).Return(list("old"), nil).Once()
	b.On("CreateTask", mock.Anything, domain.TaskDraft{Title: "X"}).
		Return(domain.Task{ID: "new", Title: "X", Priority: domain.PriorityMed, Status: domain.StatusTodo}, nil).Once()
	s := newStore(t, b)
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))

	created, err := s.Create(ctx, domain.TaskDraft{Title: "X"})
	require.NoError(t, err)
	require.Equal(t, domain.PriorityMed, created.Priority)

	snap := s.Snapshot()
	require.Equal(t, []string{"new", "old"}, ids(snap.Tasks))
	require.Equal(t, domain.StatusTodo, snap.Tasks[0].Status)
}

func TestUpdateReplacesByIdentity(t *testing.T) {
	b := new(backendMock)
	b.On("ListTasks", mock.Anything, mock.Anything).Return(list("a", "b", "c"), nil).Once()
	patch := domain.TaskPatch{Status: ptr(domain.StatusCompleted)}
	b.On("UpdateTask", mock.Anything, "b", patch).
		Return(domain.Task{ID: "b", Title: "b", Status: domain.StatusCompleted}, nil).Once()
	s := newStore(t, b)
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))
	before := s.Snapshot()

	_, err := s.Update(ctx, "b", patch)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Equal(t, []string{"a", "b", "c"}, ids(snap.Tasks))
	require.Equal(t, domain.StatusCompleted, snap.Tasks[1].Status)
	require.Empty(t, before.Tasks[1].Status, "earlier snapshot must not change")
}

func TestDeleteRemovesByIdentity(t *testing.T) {
	b := new(backendMock)
	b.On("ListTasks", mock.Anything, mock.Anything).Return(list("a", "b"), nil).Once()
	b.On("DeleteTask", mock.Anything, "a").Return(domain.Task{ID: "a"}, nil).Once()
	s := newStore(t, b)
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))

	require.NoError(t, s.Delete(ctx, "a"))
	require.Equal(t, []string{"b"}, ids(s.Snapshot().Tasks))
}

func TestFailedMutationsLeaveCollectionIntact(t *testing.T) {
	b := new(backendMock)
	b.On("ListTasks", mock.Anything, mock.Anything).Return(list("a"), nil).Once()
	b.On("CreateTask", mock.Anything, mock.Anything).
		Return(domain.Task{}, &domain.ValidationError{Field: "title", Reason: "Title is required"}).Once()
	b.On("UpdateTask", mock.Anything, "ghost", mock.Anything).Return(domain.Task{}, domain.ErrTaskNotFound).Once()
	b.On("DeleteTask", mock.Anything, "a").Return(domain.Task{}, errors.New("timeout")).Once()
	s := newStore(t, b)
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))

	_, err := s.Create(ctx, domain.TaskDraft{})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = s.Update(ctx, "ghost", domain.TaskPatch{Title: ptr("x")})
	require.ErrorIs(t, err, domain.ErrTaskNotFound)
	require.Error(t, s.Delete(ctx, "a"))

	snap := s.Snapshot()
	require.Equal(t, []string{"a"}, ids(snap.Tasks))
	require.EqualError(t, snap.Err, "timeout")
}

// gatedBackend holds every ListTasks call until the test answers it.
type gatedBackend struct {
	backendMock
	calls chan listCall
}

type listCall struct {
	criteria domain.Criteria
	reply    chan listReply
}

type listReply struct {
	list domain.TaskList
	err  error
}

func (g *gatedBackend) ListTasks(ctx context.Context, c domain.Criteria) (domain.TaskList, error) {
	call := listCall{criteria: c, reply: make(chan listReply)}
	g.calls <- call
	r := <-call.reply
	return r.list, r.err
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	b := &gatedBackend{calls: make(chan listCall)}
	s := newStore(t, b)
	ctx := context.Background()
	errs := make(chan error, 2)

	go func() { errs <- s.SetCriteria(ctx, domain.Criteria{Status: ptr(domain.StatusTodo)}) }()
	first := <-b.calls
	go func() { errs <- s.SetCriteria(ctx, domain.Criteria{Status: ptr(domain.StatusCompleted)}) }()
	second := <-b.calls

	status, _ := second.criteria.StatusFilter()
	require.Equal(t, domain.StatusCompleted, status)

	second.reply <- listReply{list: list("completed")}
	require.NoError(t, <-errs)
	first.reply <- listReply{list: list("todo")}
	require.NoError(t, <-errs)

	snap := s.Snapshot()
	require.Equal(t, []string{"completed"}, ids(snap.Tasks))
	require.Equal(t, uint64(2), snap.Issued)
	require.Equal(t, uint64(2), snap.Applied)
	require.False(t, snap.Loading)
}

func TestStaleRefreshFailureIsNotRecorded(t *testing.T) {
	b := &gatedBackend{calls: make(chan listCall)}
	s := newStore(t, b)
	ctx := context.Background()
	errs := make(chan error, 2)

	go func() { errs <- s.Refresh(ctx) }()
	first := <-b.calls
	go func() { errs <- s.Refresh(ctx) }()
	second := <-b.calls

	second.reply <- listReply{list: list("fresh")}
	require.NoError(t, <-errs)
	boom := errors.New("late failure")
	first.reply <- listReply{err: boom}
	require.ErrorIs(t, <-errs, boom)

	snap := s.Snapshot()
	require.NoError(t, snap.Err)
	require.Equal(t, []string{"fresh"}, ids(snap.Tasks))
}

func TestSubscribeReceivesEveryChange(t *testing.T) {
	b := new(backendMock)
	b.On("ListTasks", mock.Anything, mock.Anything).Return(list("a"), nil).Once()
	s := newStore(t, b)

	var (
		mu   sync.Mutex
		seen []State
	)
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	require.NoError(t, s.Refresh(context.Background()))
	mu.Lock()
	require.Len(t, seen, 2)
	require.True(t, seen[0].Loading)
	require.False(t, seen[1].Loading)
	require.Equal(t, []string{"a"}, ids(seen[1].Tasks))
	mu.Unlock()

	unsubscribe()
	s.dispatch(criteriaReset{})
	mu.Lock()
	require.Len(t, seen, 2)
	mu.Unlock()
}

func TestSubscriberEndsOnLatestStateUnderConcurrentIntents(t *testing.T) {
	b := new(backendMock)
	b.On("ListTasks", mock.Anything, mock.Anything).Return(list("a"), nil).Once()
	b.On("CreateTask", mock.Anything, mock.Anything).Return(domain.Task{ID: "x", Title: "x"}, nil).Once()
	s := newStore(t, b)

	blocked := make(chan struct{})
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		last []string
		once sync.Once
	)
	s.Subscribe(func(st State) {
		if !st.Loading && len(st.Tasks) == 1 {
			once.Do(func() {
				close(blocked)
				<-release
			})
		}
		mu.Lock()
		last = ids(st.Tasks)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Refresh(context.Background()))
	}()
	<-blocked

	go func() {
		defer wg.Done()
		_, err := s.Create(context.Background(), domain.TaskDraft{Title: "x"})
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool {
		return len(s.Snapshot().Tasks) == 2
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	require.Equal(t, []string{"x", "a"}, ids(s.Snapshot().Tasks))
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"x", "a"}, last)
}

func TestReduceIgnoresOutOfOrderSuccess(t *testing.T) {
	s := initialState()
	s = reduce(s, refreshIssued{})
	s = reduce(s, refreshIssued{})
	s = reduce(s, refreshSucceeded{seq: 1, tasks: list("old").Tasks})

	require.Empty(t, s.Tasks)
	require.True(t, s.Loading)
	require.Zero(t, s.Applied)

	s = reduce(s, refreshSucceeded{seq: 2})
	require.NotNil(t, s.Tasks)
	require.False(t, s.Loading)
}
