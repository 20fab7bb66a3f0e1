package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/civisight/portal/pkg/cache"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/repository"
)

const countyListKey = "counties:list"

// CountyService serves counties and their profile sheet.
type CountyService interface {
	// List returns every county with its task count. Tasks are not loaded.
	List(ctx context.Context) ([]*models.County, error)
	// Get returns the county with its tasks.
	Get(ctx context.Context, id string) (*models.County, error)
	GetProfile(ctx context.Context, countyID string) (*models.CountyProfile, error)
	UpdateProfile(ctx context.Context, profile *models.CountyProfile) (*models.CountyProfile, error)
}

type countyService struct {
	BaseService
	counties repository.CountyRepository
	tasks    repository.TaskRepository
	cache    cache.Cache
	ttl      time.Duration
}

// NewCountyService creates the county service. A nil cache disables list
// caching.
func NewCountyService(config ServiceConfig, counties repository.CountyRepository, tasks repository.TaskRepository, c cache.Cache, ttl time.Duration) CountyService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &countyService{
		BaseService: NewBaseService(config),
		counties:    counties,
		tasks:       tasks,
		cache:       c,
		ttl:         ttl,
	}
}

func (s *countyService) List(ctx context.Context) ([]*models.County, error) {
	ctx, span := s.config.Tracer(ctx, "CountyService.List")
	defer span.End()

	var counties []*models.County
	if s.cache != nil {
		if err := s.cache.Get(ctx, countyListKey, &counties); err == nil {
			return counties, nil
		}
	}

	counties, err := s.counties.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list counties")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, countyListKey, counties, s.ttl); err != nil {
			s.config.Logger.Warn("Failed to cache county list", map[string]interface{}{"error": err.Error()})
		}
	}
	return counties, nil
}

func (s *countyService) Get(ctx context.Context, id string) (*models.County, error) {
	county, err := s.counties.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get county %s", id)
	}
	tasks, err := s.tasks.ListByCounty(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tasks of county %s", id)
	}
	county.Tasks = tasks
	county.TaskCount = len(tasks)
	return county, nil
}

// GetProfile returns the stored profile, or an empty one named after the
// county when none was saved yet.
func (s *countyService) GetProfile(ctx context.Context, countyID string) (*models.CountyProfile, error) {
	profile, err := s.counties.GetProfile(ctx, countyID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Wrapf(err, "failed to get profile of county %s", countyID)
	}
	county, err := s.counties.Get(ctx, countyID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get county %s", countyID)
	}
	return &models.CountyProfile{CountyID: county.ID, Name: county.Name}, nil
}

func (s *countyService) UpdateProfile(ctx context.Context, profile *models.CountyProfile) (*models.CountyProfile, error) {
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return nil, ValidationError{Field: "name", Message: "is required"}
	}
	if _, err := s.counties.Get(ctx, profile.CountyID); err != nil {
		return nil, errors.Wrapf(err, "failed to get county %s", profile.CountyID)
	}
	if err := s.counties.UpsertProfile(ctx, profile); err != nil {
		return nil, errors.Wrap(err, "failed to save profile")
	}
	return profile, nil
}
