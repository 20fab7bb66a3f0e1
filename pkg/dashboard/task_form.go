// Package dashboard holds the per-screen state of the portal front ends. Each
// screen owns its own state object; nothing here is process-wide.
package dashboard

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/civisight/portal/pkg/coordinator"
	"github.com/civisight/portal/pkg/models"
	"github.com/go-playground/validator/v10"
)

// Deadline layouts accepted by the form, tried in order.
var deadlineLayouts = []string{"2006-01-02", time.RFC3339}

// TaskForm is the new-task form: raw field values as entered.
type TaskForm struct {
	Title             string   `json:"title" validate:"required"`
	Description       string   `json:"description"`
	Deadline          string   `json:"deadline" validate:"required"`
	Priority          string   `json:"priority" validate:"omitempty,oneof=low medium high"`
	AssignedTo        []string `json:"assignedTo"`
	ReminderFrequency string   `json:"reminderFrequency" validate:"omitempty,oneof=Daily Weekly Monthly"`

	validate *validator.Validate
}

// NewTaskForm returns an empty form with the default priority.
func NewTaskForm() *TaskForm {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	f := &TaskForm{validate: v}
	f.Reset()
	return f
}

// Reset clears every field, as after a successful submit.
func (f *TaskForm) Reset() {
	f.Title = ""
	f.Description = ""
	f.Deadline = ""
	f.Priority = string(models.TaskPriorityMedium)
	f.AssignedTo = nil
	f.ReminderFrequency = ""
}

// Validate checks the fields. Global tasks may leave assignees empty; the
// county's main contact is used instead.
func (f *TaskForm) Validate(global bool) error {
	trimmed := *f
	trimmed.Title = strings.TrimSpace(f.Title)
	trimmed.Deadline = strings.TrimSpace(f.Deadline)
	if err := f.validate.Struct(&trimmed); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			reason := "is required"
			if fe.Tag() == "oneof" {
				reason = "must be one of " + fe.Param()
			}
			return &coordinator.ValidationError{Field: fe.Field(), Reason: reason}
		}
		return &coordinator.ValidationError{Field: "task", Reason: err.Error()}
	}
	if _, err := parseDeadline(trimmed.Deadline); err != nil {
		return &coordinator.ValidationError{Field: "deadline", Reason: "use YYYY-MM-DD"}
	}
	if !global && len(assignees(f.AssignedTo)) == 0 {
		return &coordinator.ValidationError{Field: "assignedTo", Reason: "assign at least one person"}
	}
	return nil
}

// Draft validates the form and converts it into a draft for countyID. An
// empty countyID produces a draft for a global create.
func (f *TaskForm) Draft(countyID string) (models.TaskDraft, error) {
	if err := f.Validate(countyID == ""); err != nil {
		return models.TaskDraft{}, err
	}
	deadline, _ := parseDeadline(strings.TrimSpace(f.Deadline))
	return models.TaskDraft{
		Title:             strings.TrimSpace(f.Title),
		Description:       strings.TrimSpace(f.Description),
		Deadline:          deadline,
		Priority:          models.TaskPriority(f.Priority),
		AssignedTo:        assignees(f.AssignedTo),
		CountyID:          countyID,
		ReminderFrequency: models.ReminderFrequency(f.ReminderFrequency),
	}, nil
}

func parseDeadline(s string) (time.Time, error) {
	var err error
	for _, layout := range deadlineLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

func assignees(list []string) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
