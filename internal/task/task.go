// Package task implements task storage, the authorization-gated task
// operations and their HTTP endpoints.
package task

import (
	"errors"
	"time"

	"github.com/opsboard/opsboard/internal/authz"
)

var (
	ErrNotFound        = errors.New("task not found")
	ErrVersionConflict = errors.New("task was modified concurrently")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrTitleRequired   = errors.New("title is required")
	ErrTitleTooLong    = errors.New("title must be at most 200 characters")
)

const maxTitleLength = 200

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the known statuses. Any transition
// between them is allowed.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a unit of work owned by one department of one company.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority"`
	Category     string     `json:"category"`
	AssigneeID   string     `json:"assignee_id"`
	CreatedByID  string     `json:"created_by_id"`
	CompanyID    string     `json:"company_id"`
	DepartmentID string     `json:"department_id"`
	DueDate      *time.Time `json:"due_date"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Ref is the ownership snapshot the authorization gate decides on.
func (t *Task) Ref() authz.TaskRef {
	return authz.TaskRef{
		CompanyID:    t.CompanyID,
		DepartmentID: t.DepartmentID,
		AssigneeID:   t.AssigneeID,
		CreatedByID:  t.CreatedByID,
	}
}

// validate checks the fields a caller controls.
func (t *Task) validate() error {
	if t.Title == "" {
		return ErrTitleRequired
	}
	if len([]rune(t.Title)) > maxTitleLength {
		return ErrTitleTooLong
	}
	if !t.Status.Valid() {
		return ErrInvalidStatus
	}
	if !t.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

// EventType names a change published on the live feed.
type EventType string

const (
	EventCreated EventType = "task.created"
	EventUpdated EventType = "task.updated"
	EventDeleted EventType = "task.deleted"
	// EventMoved tells a subscriber that a task left its view. It carries
	// only the task id.
	EventMoved EventType = "task.moved"
)

// Event is a committed task change. Previous is the task's snapshot
// before an update that changed its department.
type Event struct {
	Type     EventType      `json:"type"`
	Task     Task           `json:"task"`
	At       time.Time      `json:"at"`
	Previous *authz.TaskRef `json:"-"`
}

// Departed is the event sent to a subscriber who could see the task
// before the change but not after.
func (e Event) Departed() Event {
	return Event{Type: EventMoved, Task: Task{ID: e.Task.ID}, At: e.At}
}

// Publisher receives committed task changes. Implementations must not
// block.
type Publisher interface {
	Publish(e Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
