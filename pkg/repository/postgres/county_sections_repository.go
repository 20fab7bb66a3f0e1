package postgres

import (
	"context"
	"time"

	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type obligationRepository struct {
	*BaseRepository
	now func() time.Time
}

// NewObligationRepository creates a Postgres-backed ObligationRepository.
func NewObligationRepository(db *sqlx.DB, logger observability.Logger, tracer observability.StartSpanFunc, metrics observability.MetricsClient) repository.ObligationRepository {
	return &obligationRepository{BaseRepository: NewBaseRepository(db, nil, logger, tracer, metrics), now: time.Now}
}

const obligationColumns = `id, county_id, law_name, description, due_date, status, updated_at`

func (r *obligationRepository) Create(ctx context.Context, o *models.Obligation) (err error) {
	ctx, done := r.begin(ctx, "obligations", "create")
	defer func() { done(err) }()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.ObligationPending
	}
	o.UpdatedAt = r.now().UTC()
	query := `INSERT INTO obligations (` + obligationColumns + `)
		VALUES (:id, :county_id, :law_name, :description, :due_date, :status, :updated_at)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, o); err != nil {
		return translateError(err, "failed to create obligation")
	}
	return nil
}

func (r *obligationRepository) Get(ctx context.Context, id string) (o *models.Obligation, err error) {
	ctx, done := r.begin(ctx, "obligations", "get")
	defer func() { done(err) }()

	o = &models.Obligation{}
	if err := r.db.GetContext(ctx, o, `SELECT `+obligationColumns+` FROM obligations WHERE id = $1`, id); err != nil {
		return nil, translateError(err, "failed to get obligation %s", id)
	}
	return o, nil
}

func (r *obligationRepository) ListByCounty(ctx context.Context, countyID string) (list []*models.Obligation, err error) {
	ctx, done := r.begin(ctx, "obligations", "list_by_county")
	defer func() { done(err) }()

	query := `SELECT ` + obligationColumns + ` FROM obligations WHERE county_id = $1 ORDER BY due_date, id`
	if err := r.db.SelectContext(ctx, &list, query, countyID); err != nil {
		return nil, translateError(err, "failed to list obligations for county %s", countyID)
	}
	return list, nil
}

func (r *obligationRepository) UpdateStatus(ctx context.Context, id string, status models.ObligationStatus) (o *models.Obligation, err error) {
	ctx, done := r.begin(ctx, "obligations", "update_status")
	defer func() { done(err) }()

	o = &models.Obligation{}
	query := `UPDATE obligations SET status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + obligationColumns
	if err := r.db.GetContext(ctx, o, query, id, status, r.now().UTC()); err != nil {
		return nil, translateError(err, "failed to update obligation %s", id)
	}
	return o, nil
}

type formRepository struct {
	*BaseRepository
}

// NewFormRepository creates a Postgres-backed FormRepository.
func NewFormRepository(db *sqlx.DB, logger observability.Logger, tracer observability.StartSpanFunc, metrics observability.MetricsClient) repository.FormRepository {
	return &formRepository{BaseRepository: NewBaseRepository(db, nil, logger, tracer, metrics)}
}

const formColumns = `id, county_id, name, file_type, object_key, size_bytes, uploaded_by, last_updated`

func (r *formRepository) Create(ctx context.Context, f *models.Form) (err error) {
	ctx, done := r.begin(ctx, "forms", "create")
	defer func() { done(err) }()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.LastUpdated.IsZero() {
		f.LastUpdated = time.Now().UTC()
	}
	query := `INSERT INTO forms (` + formColumns + `)
		VALUES (:id, :county_id, :name, :file_type, :object_key, :size_bytes, :uploaded_by, :last_updated)`
	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		return translateError(err, "failed to create form %s", f.Name)
	}
	return nil
}

func (r *formRepository) Get(ctx context.Context, id string) (f *models.Form, err error) {
	ctx, done := r.begin(ctx, "forms", "get")
	defer func() { done(err) }()

	f = &models.Form{}
	if err := r.db.GetContext(ctx, f, `SELECT `+formColumns+` FROM forms WHERE id = $1`, id); err != nil {
		return nil, translateError(err, "failed to get form %s", id)
	}
	return f, nil
}

func (r *formRepository) ListByCounty(ctx context.Context, countyID string) (list []*models.Form, err error) {
	ctx, done := r.begin(ctx, "forms", "list_by_county")
	defer func() { done(err) }()

	query := `SELECT ` + formColumns + ` FROM forms WHERE county_id = $1 ORDER BY name, id`
	if err := r.db.SelectContext(ctx, &list, query, countyID); err != nil {
		return nil, translateError(err, "failed to list forms for county %s", countyID)
	}
	return list, nil
}

type reminderRepository struct {
	*BaseRepository
}

// NewReminderRepository creates a Postgres-backed ReminderRepository.
func NewReminderRepository(db *sqlx.DB, logger observability.Logger, tracer observability.StartSpanFunc, metrics observability.MetricsClient) repository.ReminderRepository {
	return &reminderRepository{BaseRepository: NewBaseRepository(db, nil, logger, tracer, metrics)}
}

const reminderColumns = `id, task_id, recipient, subject, status, message_id, created_at, sent_at`

func (r *reminderRepository) Create(ctx context.Context, rem *models.Reminder) (err error) {
	ctx, done := r.begin(ctx, "reminders", "create")
	defer func() { done(err) }()

	if rem.ID == "" {
		rem.ID = uuid.NewString()
	}
	if rem.Status == "" {
		rem.Status = models.ReminderQueued
	}
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO reminders (` + reminderColumns + `)
		VALUES (:id, :task_id, :recipient, :subject, :status, :message_id, :created_at, :sent_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rem); err != nil {
		return translateError(err, "failed to create reminder for task %s", rem.TaskID)
	}
	return nil
}

func (r *reminderRepository) ListByTask(ctx context.Context, taskID string) (list []*models.Reminder, err error) {
	ctx, done := r.begin(ctx, "reminders", "list_by_task")
	defer func() { done(err) }()

	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE task_id = $1 ORDER BY created_at DESC, id`
	if err := r.db.SelectContext(ctx, &list, query, taskID); err != nil {
		return nil, translateError(err, "failed to list reminders for task %s", taskID)
	}
	return list, nil
}

func (r *reminderRepository) MarkSent(ctx context.Context, id, messageID string, at time.Time) (err error) {
	ctx, done := r.begin(ctx, "reminders", "mark_sent")
	defer func() { done(err) }()

	res, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET status = 'sent', message_id = $2, sent_at = $3 WHERE id = $1`, id, messageID, at)
	if err != nil {
		return translateError(err, "failed to mark reminder %s sent", id)
	}
	return expectAffected(res)
}

func (r *reminderRepository) MarkFailed(ctx context.Context, id string) (err error) {
	ctx, done := r.begin(ctx, "reminders", "mark_failed")
	defer func() { done(err) }()

	res, err := r.db.ExecContext(ctx, `UPDATE reminders SET status = 'failed' WHERE id = $1`, id)
	if err != nil {
		return translateError(err, "failed to mark reminder %s failed", id)
	}
	return expectAffected(res)
}
