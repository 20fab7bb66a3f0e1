package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/cache"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/repository"
)

// TaskService manages compliance tasks.
type TaskService interface {
	Create(ctx context.Context, draft models.TaskDraft, createdBy *auth.Principal) (*models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	ListByCounty(ctx context.Context, countyID string) ([]*models.Task, error)
	// ListMine returns the tasks assigned to p.
	ListMine(ctx context.Context, p *auth.Principal) ([]*models.Task, error)
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus, by *auth.Principal) (*models.Task, error)
	Delete(ctx context.Context, id string) error
}

type taskService struct {
	BaseService
	tasks    repository.TaskRepository
	counties repository.CountyRepository
	cache    cache.Cache
	now      func() time.Time
}

// NewTaskService creates the task service. c may be nil; it only holds the
// county list that task writes invalidate.
func NewTaskService(config ServiceConfig, tasks repository.TaskRepository, counties repository.CountyRepository, c cache.Cache) TaskService {
	return &taskService{
		BaseService: NewBaseService(config),
		tasks:       tasks,
		counties:    counties,
		cache:       c,
		now:         time.Now,
	}
}

// Create stores a new task. New tasks start pending with daily reminders
// unless the draft says otherwise.
func (s *taskService) Create(ctx context.Context, draft models.TaskDraft, createdBy *auth.Principal) (*models.Task, error) {
	ctx, span := s.config.Tracer(ctx, "TaskService.Create")
	defer span.End()

	task, err := s.taskFromDraft(draft)
	if err != nil {
		return nil, err
	}
	if createdBy != nil {
		task.CreatedBy = createdBy.ID
	}

	if _, err := s.counties.Get(ctx, task.CountyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ValidationError{Field: "countyId", Message: "unknown county " + task.CountyID}
		}
		return nil, errors.Wrap(err, "failed to look up county")
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to create task")
	}
	s.invalidateCounties(ctx)

	s.config.Metrics.IncrementCounterWithLabels("tasks_created_total", 1, map[string]string{"priority": string(task.Priority)})
	s.config.Logger.Info("Task created", map[string]interface{}{
		"task_id":   task.ID,
		"county_id": task.CountyID,
		"assignees": len(task.AssignedTo),
	})
	return task, nil
}

func (s *taskService) taskFromDraft(d models.TaskDraft) (*models.Task, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return nil, ValidationError{Field: "title", Message: "is required"}
	}
	countyID := strings.TrimSpace(d.CountyID)
	if countyID == "" {
		return nil, ValidationError{Field: "countyId", Message: "is required"}
	}
	assignees := make(models.StringList, 0, len(d.AssignedTo))
	for _, a := range d.AssignedTo {
		if a = strings.TrimSpace(a); a != "" && !assignees.Contains(a) {
			assignees = append(assignees, a)
		}
	}
	if len(assignees) == 0 {
		return nil, ValidationError{Field: "assignedTo", Message: "assign at least one person"}
	}

	priority := d.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}
	if !priority.Valid() {
		return nil, ValidationError{Field: "priority", Message: "must be low, medium or high"}
	}
	freq := d.ReminderFrequency
	if freq == "" {
		freq = models.ReminderDaily
	}

	return &models.Task{
		Title:             title,
		Description:       strings.TrimSpace(d.Description),
		Status:            models.TaskStatusPending,
		Priority:          priority,
		Deadline:          d.Deadline.UTC(),
		AssignedTo:        assignees,
		CountyID:          countyID,
		CreatedBy:         d.CreatedBy,
		ReminderFrequency: freq,
	}, nil
}

func (s *taskService) Get(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get task %s", id)
	}
	return task, nil
}

// ListByCounty returns the county's tasks; an unknown county is not found.
func (s *taskService) ListByCounty(ctx context.Context, countyID string) ([]*models.Task, error) {
	ctx, span := s.config.Tracer(ctx, "TaskService.ListByCounty")
	defer span.End()

	if _, err := s.counties.Get(ctx, countyID); err != nil {
		return nil, errors.Wrapf(err, "failed to get county %s", countyID)
	}
	tasks, err := s.tasks.ListByCounty(ctx, countyID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tasks of county %s", countyID)
	}
	return tasks, nil
}

// ListMine matches the user's id and e-mail against assignedTo.
func (s *taskService) ListMine(ctx context.Context, p *auth.Principal) ([]*models.Task, error) {
	if p == nil {
		return nil, auth.ErrUnauthorized
	}
	seen := map[string]struct{}{}
	out := []*models.Task{}
	for _, who := range []string{p.ID, p.Email} {
		if who == "" {
			continue
		}
		tasks, err := s.tasks.ListByAssignee(ctx, who)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list assigned tasks")
		}
		for _, t := range tasks {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateStatus moves a task to status. Completing it records who completed
// it. County users may only touch their own county's tasks.
func (s *taskService) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, by *auth.Principal) (*models.Task, error) {
	if !status.Valid() {
		return nil, ValidationError{Field: "status", Message: "must be pending, in_progress or completed"}
	}
	current, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get task %s", id)
	}
	if by != nil && by.Role == models.RoleCounty && by.CountyID != "" && by.CountyID != current.CountyID {
		return nil, ErrForbidden
	}

	completedBy := ""
	if status == models.TaskStatusCompleted && by != nil {
		completedBy = by.ID
	}
	task, err := s.tasks.UpdateStatus(ctx, id, status, completedBy)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update task %s", id)
	}
	s.invalidateCounties(ctx)
	return task, nil
}

func (s *taskService) Delete(ctx context.Context, id string) error {
	if err := s.tasks.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "failed to delete task %s", id)
	}
	s.invalidateCounties(ctx)
	s.config.Logger.Info("Task deleted", map[string]interface{}{"task_id": id})
	return nil
}

func (s *taskService) invalidateCounties(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, countyListKey); err != nil {
		s.config.Logger.Warn("Failed to invalidate county list", map[string]interface{}{"error": err.Error()})
	}
}
