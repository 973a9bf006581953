package storage

import (
	"strings"

	"quicktask/domain"
)

// taskFilter builds the OData filter for an owner's partition with the
// equality constraints the table service can evaluate. Title search is not
// expressible in OData and is left to the caller.
func taskFilter(ownerID string, c domain.Criteria) string {
	var b strings.Builder
	b.WriteString("PartitionKey eq ")
	b.WriteString(quote(ownerID))
	if s, ok := c.StatusFilter(); ok {
		b.WriteString(" and Status eq ")
		b.WriteString(quote(string(s)))
	}
	if p, ok := c.PriorityFilter(); ok {
		b.WriteString(" and Priority eq ")
		b.WriteString(quote(string(p)))
	}
	return b.String()
}

// quote renders v as an OData string literal.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
