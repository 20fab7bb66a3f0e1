package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

// Task is a compliance task assigned by a state agency to a county.
type Task struct {
	// ID is the backend-assigned identifier. It is empty while the task only
	// exists as an optimistic placeholder.
	ID string `json:"id" db:"id"`
	// LocalID is the client-generated placeholder identifier. It is cleared
	// once the backend confirms the task.
	LocalID string `json:"-" db:"-"`

	Title       string       `json:"title" db:"title"`
	Description string       `json:"description" db:"description"`
	Status      TaskStatus   `json:"status" db:"status"`
	Priority    TaskPriority `json:"priority" db:"priority"`
	Deadline    time.Time    `json:"deadline" db:"deadline"`
	AssignedTo  StringList   `json:"assignedTo" db:"assigned_to"`
	CountyID    string       `json:"countyId" db:"county_id"`
	CreatedBy   string       `json:"createdBy" db:"created_by"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt" db:"updated_at"`

	CompletionDetails CompletionDetails `json:"completionDetails" db:"-"`

	// Reminder bookkeeping
	ReminderFrequency ReminderFrequency `json:"reminderFrequency,omitempty" db:"reminder_frequency"`
	LastReminderSent  *time.Time        `json:"lastReminderSent,omitempty" db:"last_reminder_sent"`
}

// CompletionDetails summarizes how many assignees finished a task.
type CompletionDetails struct {
	TotalAssigned int      `json:"totalAssigned"`
	Completed     int      `json:"completed"`
	CompletedBy   []string `json:"completedBy"`
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// TaskPriority represents the urgency of a task
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// ReminderFrequency controls how often assignees are reminded of an open task.
type ReminderFrequency string

const (
	ReminderDaily   ReminderFrequency = "Daily"
	ReminderWeekly  ReminderFrequency = "Weekly"
	ReminderMonthly ReminderFrequency = "Monthly"
)

// Interval returns the minimum time between two reminders.
func (f ReminderFrequency) Interval() time.Duration {
	switch f {
	case ReminderWeekly:
		return 7 * 24 * time.Hour
	case ReminderMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// CountyMainAssignee is the assignee used for tasks pushed to many counties
// at once, where the county decides who picks the task up.
const CountyMainAssignee = "main"

// TaskDraft carries the user-entered fields of a task that does not exist yet.
// It is also the payload sent to the backend on creation.
type TaskDraft struct {
	Title             string            `json:"title" validate:"required" binding:"required"`
	Description       string            `json:"description"`
	Deadline          time.Time         `json:"deadline" validate:"required" binding:"required"`
	Priority          TaskPriority      `json:"priority,omitempty" validate:"omitempty,oneof=low medium high" binding:"omitempty,oneof=low medium high"`
	AssignedTo        []string          `json:"assignedTo" validate:"omitempty,dive,required" binding:"required,min=1,dive,required"`
	CountyID          string            `json:"countyId" binding:"required"`
	CreatedBy         string            `json:"createdBy,omitempty"`
	ReminderFrequency ReminderFrequency `json:"reminderFrequency,omitempty" validate:"omitempty,oneof=Daily Weekly Monthly" binding:"omitempty,oneof=Daily Weekly Monthly"`
}

// Key returns the identifier the task is currently known by.
func (t *Task) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.LocalID
}

// IsPendingLocal reports whether the backend has not confirmed the task yet.
func (t *Task) IsPendingLocal() bool {
	return t.ID == "" && t.LocalID != ""
}

// IsOverdue reports whether the deadline passed without the task completing.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status != TaskStatusCompleted && !t.Deadline.IsZero() && now.After(t.Deadline)
}

// ReminderDue reports whether an open task should get a reminder at now.
func (t *Task) ReminderDue(now time.Time) bool {
	if t.Status == TaskStatusCompleted {
		return false
	}
	if t.LastReminderSent == nil {
		return true
	}
	return !now.Before(t.LastReminderSent.Add(t.ReminderFrequency.Interval()))
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.AssignedTo = append(StringList(nil), t.AssignedTo...)
	c.CompletionDetails.CompletedBy = append([]string(nil), t.CompletionDetails.CompletedBy...)
	if t.LastReminderSent != nil {
		sent := *t.LastReminderSent
		c.LastReminderSent = &sent
	}
	return &c
}

// StringList is a text[] column that implements sql.Scanner and driver.Valuer
type StringList []string

// Value implements driver.Valuer for StringList
func (l StringList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

// Scan implements sql.Scanner for StringList
func (l *StringList) Scan(value interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(value); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}

// Contains reports whether v is in the list.
func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}
