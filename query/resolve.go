// Package query turns resolve criteria into a filter and an ordering and
// applies them to an owner's tasks.
package query

import (
	"sort"

	"quicktask/domain"
)

// Apply returns the tasks of ownerID matching c in the requested order. The
// input order is treated as storage order and breaks ties. The input slice is
// not modified.
func Apply(tasks []domain.Task, ownerID string, c domain.Criteria) []domain.Task {
	match := PredicateFor(ownerID, c)
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if match(t) {
			out = append(out, t)
		}
	}
	less := LessFor(c)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
