// Package repository defines the data access interfaces of the portal API.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/civisight/portal/pkg/models"
)

// Common repository errors
var (
	ErrNotFound   = errors.New("entity not found")
	ErrDuplicate  = errors.New("entity already exists")
	ErrValidation = errors.New("validation failed")
)

// TaskRepository stores compliance tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	ListByCounty(ctx context.Context, countyID string) ([]*models.Task, error)
	// ListByAssignee returns tasks whose assignedTo contains assignee.
	ListByAssignee(ctx context.Context, assignee string) ([]*models.Task, error)
	// UpdateStatus sets the status. A non-empty completedBy is recorded once
	// in the completion details.
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus, completedBy string) (*models.Task, error)
	Delete(ctx context.Context, id string) error
	// ListOpen returns every task that is not completed.
	ListOpen(ctx context.Context) ([]*models.Task, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
}

// CountyRepository stores counties and their profile sheet.
type CountyRepository interface {
	// List returns counties ordered by name with TaskCount filled in.
	List(ctx context.Context) ([]*models.County, error)
	Get(ctx context.Context, id string) (*models.County, error)
	Upsert(ctx context.Context, county *models.County) error
	GetProfile(ctx context.Context, countyID string) (*models.CountyProfile, error)
	UpsertProfile(ctx context.Context, profile *models.CountyProfile) error
}

// UserRepository stores portal accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// List returns users holding any of roles; no roles means all users.
	List(ctx context.Context, roles ...models.Role) ([]*models.User, error)
}

// ObligationRepository stores statutory obligations.
type ObligationRepository interface {
	Create(ctx context.Context, o *models.Obligation) error
	Get(ctx context.Context, id string) (*models.Obligation, error)
	ListByCounty(ctx context.Context, countyID string) ([]*models.Obligation, error)
	UpdateStatus(ctx context.Context, id string, status models.ObligationStatus) (*models.Obligation, error)
}

// FormRepository stores metadata of county forms; file bodies live in S3.
type FormRepository interface {
	Create(ctx context.Context, f *models.Form) error
	Get(ctx context.Context, id string) (*models.Form, error)
	ListByCounty(ctx context.Context, countyID string) ([]*models.Form, error)
}

// ReminderRepository stores the reminder log of tasks.
type ReminderRepository interface {
	Create(ctx context.Context, r *models.Reminder) error
	ListByTask(ctx context.Context, taskID string) ([]*models.Reminder, error)
	MarkSent(ctx context.Context, id, messageID string, at time.Time) error
	MarkFailed(ctx context.Context, id string) error
}
