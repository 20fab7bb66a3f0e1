package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/civisight/portal/pkg/models"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidRecord marks a backend record that failed normalization.
var ErrInvalidRecord = errors.New("invalid task record")

const taskSchema = `{
  "type": "object",
  "required": ["id", "title", "countyId"],
  "properties": {
    "id":          {"type": "string", "minLength": 1},
    "title":       {"type": "string", "minLength": 1},
    "countyId":    {"type": "string", "minLength": 1},
    "description": {"type": ["string", "null"]},
    "status":      {"enum": ["pending", "in_progress", "completed", null]},
    "priority":    {"enum": ["low", "medium", "high", null]},
    "deadline":    {"type": ["string", "null"]},
    "assignedTo":  {"type": ["array", "null"], "items": {"type": "string"}},
    "createdBy":   {"type": ["string", "null"]},
    "createdAt":   {"type": ["string", "null"]},
    "updatedAt":   {"type": ["string", "null"]},
    "reminderFrequency": {"enum": ["Daily", "Weekly", "Monthly", "", null]},
    "completionDetails": {
      "type": ["object", "null"],
      "properties": {
        "totalAssigned": {"type": "integer", "minimum": 0},
        "completed":     {"type": "integer", "minimum": 0},
        "completedBy":   {"type": ["array", "null"], "items": {"type": "string"}}
      }
    }
  }
}`

var taskSchemaLoader = gojsonschema.NewStringLoader(taskSchema)

// compiledSchema is built once; gojsonschema schemas are safe to share.
var compiledSchema = mustCompile(taskSchemaLoader)

func mustCompile(l gojsonschema.JSONLoader) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(l)
	if err != nil {
		panic(fmt.Sprintf("remote: task schema: %v", err))
	}
	return s
}

// NormalizeTask validates a loosely decoded backend record and converts it
// into a Task with defaults applied: status pending, priority medium, an
// empty assignee list and totalAssigned equal to the assignee count.
func NormalizeTask(raw map[string]interface{}) (*models.Task, error) {
	result, err := compiledSchema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidRecord, err.Error())
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, errors.Wrap(ErrInvalidRecord, strings.Join(msgs, "; "))
	}

	t := &models.Task{
		ID:                str(raw, "id"),
		Title:             str(raw, "title"),
		CountyID:          str(raw, "countyId"),
		Description:       str(raw, "description"),
		CreatedBy:         str(raw, "createdBy"),
		Status:            models.TaskStatus(str(raw, "status")),
		Priority:          models.TaskPriority(str(raw, "priority")),
		ReminderFrequency: models.ReminderFrequency(str(raw, "reminderFrequency")),
		AssignedTo:        models.StringList(strList(raw["assignedTo"])),
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if t.Priority == "" {
		t.Priority = models.TaskPriorityMedium
	}

	if t.Deadline, err = parseTime(str(raw, "deadline")); err != nil {
		return nil, errors.Wrapf(ErrInvalidRecord, "task %s deadline: %v", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(str(raw, "createdAt")); err != nil {
		return nil, errors.Wrapf(ErrInvalidRecord, "task %s createdAt: %v", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(str(raw, "updatedAt")); err != nil {
		return nil, errors.Wrapf(ErrInvalidRecord, "task %s updatedAt: %v", t.ID, err)
	}
	if s := str(raw, "lastReminderSent"); s != "" {
		if sent, err := parseTime(s); err == nil {
			t.LastReminderSent = &sent
		}
	}

	t.CompletionDetails = models.CompletionDetails{
		TotalAssigned: len(t.AssignedTo),
		CompletedBy:   []string{},
	}
	if cd, ok := raw["completionDetails"].(map[string]interface{}); ok {
		if n, ok := number(cd["totalAssigned"]); ok {
			t.CompletionDetails.TotalAssigned = n
		}
		t.CompletionDetails.CompletedBy = strList(cd["completedBy"])
		t.CompletionDetails.Completed = len(t.CompletionDetails.CompletedBy)
		if n, ok := number(cd["completed"]); ok {
			t.CompletionDetails.Completed = n
		}
	}
	return t, nil
}

// decodeRecord decodes one JSON object without losing integer precision.
func decodeRecord(data []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(ErrInvalidRecord, err.Error())
	}
	return raw, nil
}

func str(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func strList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func number(v interface{}) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// parseTime accepts RFC 3339 timestamps and bare dates. Empty means unset.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
