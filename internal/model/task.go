package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusOnHold     Status = "on_hold"
)

// Priority orders tasks inside a day or a list.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// RecurrenceKind is the step used to expand a recurring task.
type RecurrenceKind string

const (
	RecurDaily   RecurrenceKind = "daily"
	RecurWeekly  RecurrenceKind = "weekly"
	RecurMonthly RecurrenceKind = "monthly"
)

// ErrInvalidTask is returned when a task document fails validation at the
// store boundary.
var ErrInvalidTask = errors.New("invalid task")

// Task represents a single item in the planner. A task with GroupID == nil is
// personal; otherwise it belongs to the referenced group.
type Task struct {
	ID          string   `gorm:"primaryKey;size:36"`
	Title       string   `gorm:"not null"`
	Description string
	Status      Status   `gorm:"size:16;index;default:not_started"`
	Priority    Priority `gorm:"size:8;default:medium"`
	DueDate     *string  `gorm:"size:10;index"` // YYYY-MM-DD
	DueTime     *string  `gorm:"size:5"`        // HH:MM
	OwnerID     string   `gorm:"size:36;index"`
	GroupID     *string  `gorm:"size:36;index"`

	IsRecurring         bool           `gorm:"default:false"`
	RecurrenceKind      RecurrenceKind `gorm:"size:8"`
	RecurrenceEndDate   *string        `gorm:"size:10"`
	IsRecurringInstance bool           `gorm:"default:false"`
	OriginalStartDate   *string        `gorm:"size:10"`
	SeriesID            *string        `gorm:"size:36;index"`

	SharedFromUserID *string `gorm:"size:36"`
	OriginalTaskID   *string `gorm:"size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPersonal reports whether the task has no group scope.
func (t Task) IsPersonal() bool {
	return t.GroupID == nil || *t.GroupID == ""
}

// IsShared reports whether the task is a copy made by sharing.
func (t Task) IsShared() bool {
	return t.OriginalTaskID != nil && *t.OriginalTaskID != ""
}

// Validate checks the document shape. Dates are compared lexically, which is
// correct for the zero-padded YYYY-MM-DD representation.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if strings.TrimSpace(t.OwnerID) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidTask)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTask, t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, t.Priority)
	}
	if t.GroupID != nil && *t.GroupID == "" {
		t.GroupID = nil
	}
	if t.DueDate != nil && !isISODate(*t.DueDate) {
		return fmt.Errorf("%w: due date %q is not YYYY-MM-DD", ErrInvalidTask, *t.DueDate)
	}
	if t.IsRecurring && t.RecurrenceEndDate != nil && t.DueDate != nil && *t.RecurrenceEndDate < *t.DueDate {
		return fmt.Errorf("%w: recurrence ends before due date", ErrInvalidTask)
	}
	return nil
}

// BeforeCreate assigns the identifier.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave fills defaults and validates the document before it reaches
// the database. gorm runs it ahead of BeforeCreate.
func (t *Task) BeforeSave(tx *gorm.DB) error {
	t.applyDefaults()
	return t.Validate()
}

func (t *Task) applyDefaults() {
	if t.Status == "" {
		t.Status = StatusNotStarted
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusDone, StatusOnHold:
		return true
	}
	return false
}

// ParseStatus accepts the canonical value case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank is 0 for high, 1 for medium and 2 for low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// ParsePriority accepts the canonical value case-insensitively.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", raw)
	}
	return p, nil
}

// Valid reports whether k is a known recurrence kind.
func (k RecurrenceKind) Valid() bool {
	switch k {
	case RecurDaily, RecurWeekly, RecurMonthly:
		return true
	}
	return false
}

// TaskPatch is a partial update. Nil fields are left untouched; ClearDueDate
// resets both due date and due time to absent.
type TaskPatch struct {
	Title        *string
	Description  *string
	Status       *Status
	Priority     *Priority
	DueDate      *string
	DueTime      *string
	ClearDueDate bool
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.DueDate == nil && p.DueTime == nil && !p.ClearDueDate
}

// Columns converts the patch to the column map used by gorm's Updates.
func (p TaskPatch) Columns() (map[string]interface{}, error) {
	updates := make(map[string]interface{})
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidTask)
		}
		updates["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTask, *p.Status)
		}
		updates["status"] = *p.Status
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, *p.Priority)
		}
		updates["priority"] = *p.Priority
	}
	if p.ClearDueDate {
		updates["due_date"] = nil
		updates["due_time"] = nil
	} else {
		if p.DueDate != nil {
			if !isISODate(*p.DueDate) {
				return nil, fmt.Errorf("%w: due date %q is not YYYY-MM-DD", ErrInvalidTask, *p.DueDate)
			}
			updates["due_date"] = *p.DueDate
		}
		if p.DueTime != nil {
			updates["due_time"] = *p.DueTime
		}
	}
	return updates, nil
}

func isISODate(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}
