package domain

import (
	"slices"
	"strings"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var validPriorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Rank orders priorities for board sorting: high sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return len(validPriorities)
	}
}

// ParsePriority normalizes user input into a known priority.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if !slices.Contains(validPriorities, p) {
		return "", ErrInvalidPriority
	}
	return p, nil
}

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

var validStatuses = []Status{StatusTodo, StatusInProgress, StatusCompleted}

// Statuses returns all workflow states in board order.
func Statuses() []Status {
	return slices.Clone(validStatuses)
}

// ParseStatus normalizes user input into a known status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s == "in_progress" || s == "inprogress" {
		s = StatusInProgress
	}
	if !slices.Contains(validStatuses, s) {
		return "", ErrInvalidStatus
	}
	return s, nil
}

type Task struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	DueDate     time.Time
	Priority    Priority
	Status      Status
	AssignedBy  string
	AssignedTo  string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TaskInput struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	DueDate     time.Time
	Priority    Priority
	AssignedBy  string
	AssignedTo  string
	CreatedBy   string
}

// TaskDraft holds the mutable fields of a task for the edit flow.
type TaskDraft struct {
	Title       string
	Description string
	Priority    Priority
	DueDate     time.Time
}

func NewTask(in TaskInput, now time.Time) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.AssignedBy = strings.TrimSpace(in.AssignedBy)
	in.AssignedTo = strings.TrimSpace(in.AssignedTo)
	in.CreatedBy = strings.TrimSpace(in.CreatedBy)

	if in.ID == "" {
		return Task{}, ErrInvalidID
	}
	if in.Title == "" {
		return Task{}, ErrInvalidTitle
	}
	if in.ProjectID == "" {
		if in.AssignedBy != "" || in.AssignedTo != "" {
			return Task{}, ErrPersonalTask
		}
	} else if in.AssignedTo == "" {
		return Task{}, ErrAssigneeRequired
	}

	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !slices.Contains(validPriorities, in.Priority) {
		return Task{}, ErrInvalidPriority
	}
	due := in.DueDate
	if due.IsZero() {
		due = now
	}

	return Task{
		ID:          in.ID,
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     CalendarDate(due),
		Priority:    in.Priority,
		Status:      StatusTodo,
		AssignedBy:  in.AssignedBy,
		AssignedTo:  in.AssignedTo,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// IsPersonal reports whether the task has no owning project.
func (t Task) IsPersonal() bool {
	return t.ProjectID == ""
}

// Draft returns the prefilled edit draft for this task.
func (t Task) Draft() TaskDraft {
	return TaskDraft{
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
	}
}

// ApplyDraft replaces the mutable fields. Identity, status, project and assignment stay as they are.
func (t *Task) ApplyDraft(d TaskDraft, now time.Time) error {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return ErrInvalidTitle
	}
	priority := d.Priority
	if priority == "" {
		priority = t.Priority
	}
	if !slices.Contains(validPriorities, priority) {
		return ErrInvalidPriority
	}
	if d.DueDate.IsZero() {
		return ErrInvalidDueDate
	}
	t.Title = title
	t.Description = strings.TrimSpace(d.Description)
	t.Priority = priority
	t.DueDate = CalendarDate(d.DueDate)
	t.UpdatedAt = now.UTC()
	return nil
}

// SetStatus moves the task to any workflow state; all states are mutually reachable.
func (t *Task) SetStatus(status Status, now time.Time) error {
	if !slices.Contains(validStatuses, status) {
		return ErrInvalidStatus
	}
	t.Status = status
	t.UpdatedAt = now.UTC()
	return nil
}

// CalendarDate drops the time-of-day so due dates compare as dates.
func CalendarDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or RFC3339 input.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDueDate
	}
	if ts, err := time.Parse(time.DateOnly, raw); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, ErrInvalidDueDate
	}
	return CalendarDate(ts), nil
}
