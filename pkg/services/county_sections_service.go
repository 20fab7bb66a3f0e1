package services

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/repository"
	"github.com/civisight/portal/pkg/storage"
)

// ObligationService serves the obligations screen of a county.
type ObligationService interface {
	// ListByCounty returns obligations with Overdue derived from the due date.
	ListByCounty(ctx context.Context, countyID string) ([]*models.Obligation, error)
	UpdateStatus(ctx context.Context, id string, status models.ObligationStatus) (*models.Obligation, error)
}

type obligationService struct {
	BaseService
	repo repository.ObligationRepository
	now  func() time.Time
}

// NewObligationService creates the obligation service.
func NewObligationService(config ServiceConfig, repo repository.ObligationRepository) ObligationService {
	return &obligationService{BaseService: NewBaseService(config), repo: repo, now: time.Now}
}

func (s *obligationService) ListByCounty(ctx context.Context, countyID string) ([]*models.Obligation, error) {
	list, err := s.repo.ListByCounty(ctx, countyID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list obligations of county %s", countyID)
	}
	now := s.now()
	for _, o := range list {
		o.Status = o.EffectiveStatus(now)
	}
	return list, nil
}

// UpdateStatus stores status. Overdue is derived and cannot be set.
func (s *obligationService) UpdateStatus(ctx context.Context, id string, status models.ObligationStatus) (*models.Obligation, error) {
	switch status {
	case models.ObligationPending, models.ObligationInProgress, models.ObligationCompleted:
	default:
		return nil, ValidationError{Field: "status", Message: "must be Pending, In Progress or Completed"}
	}
	o, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update obligation %s", id)
	}
	o.Status = o.EffectiveStatus(s.now())
	return o, nil
}

// FormService stores county forms: metadata in Postgres, bodies in the
// object store.
type FormService interface {
	ListByCounty(ctx context.Context, countyID string) ([]*models.Form, error)
	Upload(ctx context.Context, countyID, filename string, body io.Reader, uploadedBy string) (*models.Form, error)
	Download(ctx context.Context, id string) (*models.Form, []byte, error)
}

type formService struct {
	BaseService
	forms    repository.FormRepository
	counties repository.CountyRepository
	store    storage.ObjectStore
	maxBytes int64
	now      func() time.Time
}

// NewFormService creates the form service. Uploads larger than maxBytes are
// rejected.
func NewFormService(config ServiceConfig, forms repository.FormRepository, counties repository.CountyRepository, store storage.ObjectStore, maxBytes int64) FormService {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &formService{
		BaseService: NewBaseService(config),
		forms:       forms,
		counties:    counties,
		store:       store,
		maxBytes:    maxBytes,
		now:         time.Now,
	}
}

func (s *formService) ListByCounty(ctx context.Context, countyID string) ([]*models.Form, error) {
	list, err := s.forms.ListByCounty(ctx, countyID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list forms of county %s", countyID)
	}
	return list, nil
}

func (s *formService) Upload(ctx context.Context, countyID, filename string, body io.Reader, uploadedBy string) (*models.Form, error) {
	ctx, span := s.config.Tracer(ctx, "FormService.Upload")
	defer span.End()

	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	fileType, ok := models.FileTypeFromName(name)
	if !ok {
		return nil, ValidationError{Field: "file", Message: "only PDF, DOC and XLS files are accepted"}
	}
	if _, err := s.counties.Get(ctx, countyID); err != nil {
		return nil, errors.Wrapf(err, "failed to get county %s", countyID)
	}

	data, err := io.ReadAll(io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read upload")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ValidationError{Field: "file", Message: "file is too large"}
	}
	if len(data) == 0 {
		return nil, ValidationError{Field: "file", Message: "file is empty"}
	}

	form := &models.Form{
		ID:          uuid.NewString(),
		CountyID:    countyID,
		Name:        name,
		FileType:    fileType,
		SizeBytes:   int64(len(data)),
		UploadedBy:  uploadedBy,
		LastUpdated: s.now().UTC(),
	}
	form.ObjectKey = path.Join("forms", countyID, form.ID, name)

	if err := s.store.Put(ctx, form.ObjectKey, data, fileType.ContentType()); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to store form")
	}
	if err := s.forms.Create(ctx, form); err != nil {
		if delErr := s.store.Delete(ctx, form.ObjectKey); delErr != nil {
			s.config.Logger.Warn("Failed to remove orphaned form object", map[string]interface{}{
				"key":   form.ObjectKey,
				"error": delErr.Error(),
			})
		}
		return nil, errors.Wrap(err, "failed to save form")
	}

	s.config.Metrics.IncrementCounter("forms_uploaded_total", 1)
	return form, nil
}

func (s *formService) Download(ctx context.Context, id string) (*models.Form, []byte, error) {
	form, err := s.forms.Get(ctx, id)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to get form %s", id)
	}
	data, err := s.store.Get(ctx, form.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, errors.Wrapf(repository.ErrNotFound, "form %s has no stored file", id)
		}
		return nil, nil, errors.Wrapf(err, "failed to fetch form %s", id)
	}
	return form, data, nil
}
