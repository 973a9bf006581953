package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

var errInvalidPayload = &ValidationError{Reason: "Invalid task payload"}

// TaskPatch carries a field level update. Nil fields are left untouched.
// DueDateSet distinguishes "clear the due date" from "leave it alone".
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Status      *Status
	DueDate     *time.Time
	DueDateSet  bool
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Status == nil && !p.DueDateSet
}

// Apply validates the patch and returns t with the present fields replaced.
// Identity, owner and creation time are never changed.
func (p TaskPatch) Apply(t Task, now time.Time) (Task, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return Task{}, &ValidationError{Field: "title", Reason: "Title is required"}
		}
		t.Title = title
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.Priority != nil {
		pr, err := ParsePriority(string(*p.Priority))
		if err != nil {
			return Task{}, err
		}
		t.Priority = pr
	}
	if p.Status != nil {
		st, err := ParseStatus(string(*p.Status))
		if err != nil {
			return Task{}, err
		}
		t.Status = st
	}
	if p.DueDateSet {
		if p.DueDate == nil {
			t.DueDate = nil
		} else {
			due := p.DueDate.UTC()
			t.DueDate = &due
		}
	}
	t.UpdatedAt = now
	return t, nil
}

// MarshalJSON emits only the fields present in the patch. A cleared due date
// is sent as null.
func (p TaskPatch) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 5)
	if p.Title != nil {
		out["title"] = *p.Title
	}
	if p.Description != nil {
		out["description"] = *p.Description
	}
	if p.Priority != nil {
		out["priority"] = *p.Priority
	}
	if p.Status != nil {
		out["status"] = *p.Status
	}
	if p.DueDateSet {
		if p.DueDate == nil {
			out["dueDate"] = nil
		} else {
			out["dueDate"] = p.DueDate.UTC().Format(time.RFC3339)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON records which fields were present in the payload. Unknown
// keys are ignored; ownership and timestamps can never be patched.
func (p *TaskPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return errInvalidPayload
	}
	*p = TaskPatch{}

	if v, ok := raw["title"]; ok {
		s, err := nullableString(v)
		if err != nil {
			return err
		}
		p.Title = &s
	}
	if v, ok := raw["description"]; ok {
		s, err := nullableString(v)
		if err != nil {
			return err
		}
		p.Description = &s
	}
	if v, ok := raw["priority"]; ok {
		s, err := nullableString(v)
		if err != nil {
			return err
		}
		pr := Priority(s)
		p.Priority = &pr
	}
	if v, ok := raw["status"]; ok {
		s, err := nullableString(v)
		if err != nil {
			return err
		}
		st := Status(s)
		p.Status = &st
	}
	if v, ok := raw["dueDate"]; ok {
		s, err := nullableString(v)
		if err != nil {
			return err
		}
		due, err := ParseDueDate(s)
		if err != nil {
			return err
		}
		p.DueDate = due
		p.DueDateSet = true
	}
	return nil
}

// UnmarshalJSON accepts due dates either as RFC 3339 timestamps or plain dates.
func (d *TaskDraft) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Priority    *string `json:"priority"`
		Status      *string `json:"status"`
		DueDate     *string `json:"dueDate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errInvalidPayload
	}
	*d = TaskDraft{Description: raw.Description}
	if raw.Title != nil {
		d.Title = *raw.Title
	}
	if raw.Priority != nil {
		pr := Priority(*raw.Priority)
		d.Priority = &pr
	}
	if raw.Status != nil {
		st := Status(*raw.Status)
		d.Status = &st
	}
	if raw.DueDate != nil {
		due, err := ParseDueDate(*raw.DueDate)
		if err != nil {
			return err
		}
		d.DueDate = due
	}
	return nil
}

// ParseDueDate parses an RFC 3339 timestamp or a YYYY-MM-DD date. An empty
// string means no due date.
func ParseDueDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateOnlyLayout, v)
	if err != nil {
		return nil, &ValidationError{Field: "dueDate", Reason: "Due date must be an RFC 3339 timestamp or a YYYY-MM-DD date"}
	}
	return &t, nil
}

func nullableString(v json.RawMessage) (string, error) {
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", errInvalidPayload
	}
	return s, nil
}
