package query

import (
	"strings"

	"golang.org/x/text/cases"

	"quicktask/domain"
)

// Predicate reports whether a task belongs in a result set.
type Predicate func(domain.Task) bool

// PredicateFor builds the conjunctive filter for a resolve call. The owner
// term is always present; the others only when the criteria constrain them.
// Title search compares under full Unicode case folding.
func PredicateFor(ownerID string, c domain.Criteria) Predicate {
	status, byStatus := c.StatusFilter()
	priority, byPriority := c.PriorityFilter()
	search, bySearch := c.SearchFilter()
	fold := cases.Fold()
	needle := fold.String(search)

	return func(t domain.Task) bool {
		if t.OwnerID != ownerID {
			return false
		}
		if byStatus && t.Status != status {
			return false
		}
		if byPriority && t.Priority != priority {
			return false
		}
		if bySearch && !strings.Contains(fold.String(t.Title), needle) {
			return false
		}
		return true
	}
}
