package state

import "quicktask/domain"

// State is the client view of the caller's tasks. Tasks is never mutated in
// place; every change produces a new slice, so snapshots may be shared.
type State struct {
	Tasks    []domain.Task
	Criteria domain.Criteria
	Loading  bool
	Err      error
	// Issued is the sequence number of the latest refresh request.
	Issued uint64
	// Applied is the sequence number of the refresh whose result Tasks holds.
	Applied uint64
}

func initialState() State {
	return State{Tasks: []domain.Task{}, Criteria: domain.DefaultCriteria()}
}

type message interface{ isMessage() }

type (
	criteriaMerged   struct{ partial domain.Criteria }
	criteriaReset    struct{}
	refreshIssued    struct{}
	refreshSucceeded struct {
		seq   uint64
		tasks []domain.Task
	}
	refreshFailed struct {
		seq uint64
		err error
	}
	taskCreated  struct{ task domain.Task }
	taskUpdated  struct{ task domain.Task }
	taskDeleted  struct{ id string }
	intentFailed struct{ err error }
)

func (criteriaMerged) isMessage()   {}
func (criteriaReset) isMessage()    {}
func (refreshIssued) isMessage()    {}
func (refreshSucceeded) isMessage() {}
func (refreshFailed) isMessage()    {}
func (taskCreated) isMessage()      {}
func (taskUpdated) isMessage()      {}
func (taskDeleted) isMessage()      {}
func (intentFailed) isMessage()     {}

// reduce is the only place State changes.
func reduce(s State, m message) State {
	switch m := m.(type) {
	case criteriaMerged:
		s.Criteria = s.Criteria.Merge(m.partial)
	case criteriaReset:
		s.Criteria = domain.DefaultCriteria()
	case refreshIssued:
		s.Issued++
		s.Loading = true
	case refreshSucceeded:
		if m.seq != s.Issued {
			return s
		}
		tasks := m.tasks
		if tasks == nil {
			tasks = []domain.Task{}
		}
		s.Tasks = tasks
		s.Applied = m.seq
		s.Loading = false
		s.Err = nil
	case refreshFailed:
		if m.seq != s.Issued {
			return s
		}
		s.Loading = false
		s.Err = m.err
	case taskCreated:
		tasks := make([]domain.Task, 0, len(s.Tasks)+1)
		tasks = append(tasks, m.task)
		s.Tasks = append(tasks, s.Tasks...)
		s.Err = nil
	case taskUpdated:
		tasks := make([]domain.Task, len(s.Tasks))
		copy(tasks, s.Tasks)
		for i := range tasks {
			if tasks[i].ID == m.task.ID {
				tasks[i] = m.task
			}
		}
		s.Tasks = tasks
		s.Err = nil
	case taskDeleted:
		tasks := make([]domain.Task, 0, len(s.Tasks))
		for _, t := range s.Tasks {
			if t.ID != m.id {
				tasks = append(tasks, t)
			}
		}
		s.Tasks = tasks
		s.Err = nil
	case intentFailed:
		s.Err = m.err
	}
	return s
}
