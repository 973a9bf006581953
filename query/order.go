package query

import (
	"quicktask/domain"
)

// Less orders two tasks; it must be used with a stable sort.
type Less func(a, b domain.Task) bool

// LessFor returns the comparator for the effective ordering of c.
func LessFor(c domain.Criteria) Less {
	key, order := c.Ordering()
	desc := order == domain.SortDesc

	switch key {
	case domain.SortByPriority:
		return func(a, b domain.Task) bool {
			return directed(a.Priority.Rank()-b.Priority.Rank(), desc)
		}
	case domain.SortByDueDate:
		return func(a, b domain.Task) bool {
			// unset due dates sort last in both directions
			switch {
			case a.DueDate == nil && b.DueDate == nil:
				return false
			case a.DueDate == nil:
				return false
			case b.DueDate == nil:
				return true
			}
			return directed(a.DueDate.Compare(*b.DueDate), desc)
		}
	default:
		return func(a, b domain.Task) bool {
			return directed(a.CreatedAt.Compare(b.CreatedAt), desc)
		}
	}
}

func directed(cmp int, desc bool) bool {
	if desc {
		return cmp > 0
	}
	return cmp < 0
}
