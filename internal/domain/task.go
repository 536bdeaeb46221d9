package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskDeleted   TaskStatus = "deleted"
	TaskWaiting   TaskStatus = "waiting"
	TaskRecurring TaskStatus = "recurring"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskCompleted, TaskDeleted, TaskWaiting, TaskRecurring:
		return true
	}
	return false
}

type Annotation struct {
	Entry       string `json:"entry"`
	Description string `json:"description"`
}

// Task is one record of `task export`. Attributes without a field here
// (user defined attributes, depends, recur, ...) are kept verbatim in UDA so
// a task survives a push/fetch round trip unchanged.
type Task struct {
	ID          int          `json:"id,omitempty"`
	UUID        string       `json:"uuid"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status"`
	Entry       string       `json:"entry,omitempty"`
	Modified    string       `json:"modified,omitempty"`
	Start       string       `json:"start,omitempty"`
	End         string       `json:"end,omitempty"`
	Due         string       `json:"due,omitempty"`
	Wait        string       `json:"wait,omitempty"`
	Scheduled   string       `json:"scheduled,omitempty"`
	Project     string       `json:"project,omitempty"`
	Priority    string       `json:"priority,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Urgency     float64      `json:"urgency"`

	UDA map[string]json.RawMessage `json:"-"`
}

var knownTaskFields = map[string]struct{}{
	"id": {}, "uuid": {}, "description": {}, "status": {}, "entry": {},
	"modified": {}, "start": {}, "end": {}, "due": {}, "wait": {},
	"scheduled": {}, "project": {}, "priority": {}, "tags": {},
	"annotations": {}, "urgency": {},
}

// taskFields has Task's fields without its JSON methods.
type taskFields Task

func (t *Task) UnmarshalJSON(data []byte) error {
	var fields taskFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range knownTaskFields {
		delete(raw, key)
	}
	if len(raw) > 0 {
		fields.UDA = raw
	} else {
		fields.UDA = nil
	}

	*t = Task(fields)
	return nil
}

func (t Task) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(taskFields(t))
	if err != nil {
		return nil, err
	}
	if len(t.UDA) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(t.UDA)+len(knownTaskFields))
	for key, value := range t.UDA {
		if _, ok := knownTaskFields[key]; ok {
			continue
		}
		merged[key] = value
	}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(merged); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (t Task) Validate() error {
	if _, err := uuid.Parse(t.UUID); err != nil {
		return fmt.Errorf("%w: uuid %q: %v", ErrInvalidTask, t.UUID, err)
	}
	if t.Description == "" {
		return fmt.Errorf("%w: %s has no description", ErrInvalidTask, t.UUID)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: %s has unknown status %q", ErrInvalidTask, t.UUID, t.Status)
	}
	return nil
}

// ValidateTasks validates every task and rejects duplicate uuids.
func ValidateTasks(tasks []Task) error {
	seen := make(map[string]int, len(tasks))
	for i, task := range tasks {
		if err := task.Validate(); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
		if first, ok := seen[task.UUID]; ok {
			return fmt.Errorf("task %d: %w: duplicate uuid %s (first at %d)", i, ErrInvalidTask, task.UUID, first)
		}
		seen[task.UUID] = i
	}
	return nil
}
