package domain

// SortKey selects the comparison key of a resolve call.
type SortKey string

const (
	SortByDate     SortKey = "date"
	SortByPriority SortKey = "priority"
	SortByDueDate  SortKey = "dueDate"
)

// SortOrder selects the direction of a resolve call.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	DefaultSortKey   = SortByDate
	DefaultSortOrder = SortDesc
)

// Criteria are the filter and sort parameters of a resolve call. A nil field
// or an empty value means no constraint on that field.
type Criteria struct {
	Status    *Status
	Priority  *Priority
	Search    *string
	SortBy    *SortKey
	SortOrder *SortOrder
}

// DefaultCriteria returns criteria with the default ordering spelled out.
func DefaultCriteria() Criteria {
	by, order := DefaultSortKey, DefaultSortOrder
	return Criteria{SortBy: &by, SortOrder: &order}
}

// Merge returns c with every non-nil field of partial applied on top.
func (c Criteria) Merge(partial Criteria) Criteria {
	if partial.Status != nil {
		c.Status = partial.Status
	}
	if partial.Priority != nil {
		c.Priority = partial.Priority
	}
	if partial.Search != nil {
		c.Search = partial.Search
	}
	if partial.SortBy != nil {
		c.SortBy = partial.SortBy
	}
	if partial.SortOrder != nil {
		c.SortOrder = partial.SortOrder
	}
	return c
}

// StatusFilter returns the status constraint, if any.
func (c Criteria) StatusFilter() (Status, bool) {
	if c.Status == nil || *c.Status == "" {
		return "", false
	}
	return *c.Status, true
}

// PriorityFilter returns the priority constraint, if any.
func (c Criteria) PriorityFilter() (Priority, bool) {
	if c.Priority == nil || *c.Priority == "" {
		return "", false
	}
	return *c.Priority, true
}

// SearchFilter returns the title search term, if any.
func (c Criteria) SearchFilter() (string, bool) {
	if c.Search == nil || *c.Search == "" {
		return "", false
	}
	return *c.Search, true
}

// Ordering resolves the effective sort key and direction. An unrecognized key
// falls back to date descending whatever the requested direction; an
// unrecognized direction falls back to the default.
func (c Criteria) Ordering() (SortKey, SortOrder) {
	key := DefaultSortKey
	if c.SortBy != nil && *c.SortBy != "" {
		switch *c.SortBy {
		case SortByDate, SortByPriority, SortByDueDate:
			key = *c.SortBy
		default:
			return SortByDate, SortDesc
		}
	}
	order := DefaultSortOrder
	if c.SortOrder != nil {
		switch *c.SortOrder {
		case SortAsc, SortDesc:
			order = *c.SortOrder
		}
	}
	return key, order
}
