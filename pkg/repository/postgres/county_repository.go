package postgres

import (
	"context"
	"time"

	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/repository"
	"github.com/jmoiron/sqlx"
)

const countyColumns = `c.id, c.name, c.population, c.region, c.completion_rate,
	(SELECT COUNT(*) FROM tasks t WHERE t.county_id = c.id) AS task_count`

type countyRepository struct {
	*BaseRepository
	now func() time.Time
}

// NewCountyRepository creates a Postgres-backed CountyRepository.
func NewCountyRepository(db *sqlx.DB, logger observability.Logger, tracer observability.StartSpanFunc, metrics observability.MetricsClient) repository.CountyRepository {
	return &countyRepository{
		BaseRepository: NewBaseRepository(db, nil, logger, tracer, metrics),
		now:            time.Now,
	}
}

func (r *countyRepository) List(ctx context.Context) (counties []*models.County, err error) {
	ctx, done := r.begin(ctx, "counties", "list")
	defer func() { done(err) }()

	if err := r.db.SelectContext(ctx, &counties, `SELECT `+countyColumns+` FROM counties c ORDER BY c.name, c.id`); err != nil {
		return nil, translateError(err, "failed to list counties")
	}
	for _, c := range counties {
		c.Tasks = []*models.Task{}
	}
	return counties, nil
}

func (r *countyRepository) Get(ctx context.Context, id string) (county *models.County, err error) {
	ctx, done := r.begin(ctx, "counties", "get")
	defer func() { done(err) }()

	county = &models.County{}
	if err := r.db.GetContext(ctx, county, `SELECT `+countyColumns+` FROM counties c WHERE c.id = $1`, id); err != nil {
		return nil, translateError(err, "failed to get county %s", id)
	}
	county.Tasks = []*models.Task{}
	return county, nil
}

// Upsert inserts or replaces the county's descriptive fields.
func (r *countyRepository) Upsert(ctx context.Context, county *models.County) (err error) {
	ctx, done := r.begin(ctx, "counties", "upsert")
	defer func() { done(err) }()

	query := `INSERT INTO counties (id, name, population, region, completion_rate)
		VALUES (:id, :name, :population, :region, :completion_rate)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, population = EXCLUDED.population,
			region = EXCLUDED.region, completion_rate = EXCLUDED.completion_rate`
	if _, err := r.db.NamedExecContext(ctx, query, county); err != nil {
		return translateError(err, "failed to upsert county %s", county.ID)
	}
	return nil
}

func (r *countyRepository) GetProfile(ctx context.Context, countyID string) (profile *models.CountyProfile, err error) {
	ctx, done := r.begin(ctx, "county_profiles", "get")
	defer func() { done(err) }()

	profile = &models.CountyProfile{}
	query := `SELECT county_id, name, email, address, phone, website, updated_at FROM county_profiles WHERE county_id = $1`
	if err := r.db.GetContext(ctx, profile, query, countyID); err != nil {
		return nil, translateError(err, "failed to get profile of county %s", countyID)
	}
	return profile, nil
}

func (r *countyRepository) UpsertProfile(ctx context.Context, profile *models.CountyProfile) (err error) {
	ctx, done := r.begin(ctx, "county_profiles", "upsert")
	defer func() { done(err) }()

	profile.UpdatedAt = r.now().UTC()
	query := `INSERT INTO county_profiles (county_id, name, email, address, phone, website, updated_at)
		VALUES (:county_id, :name, :email, :address, :phone, :website, :updated_at)
		ON CONFLICT (county_id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
			address = EXCLUDED.address, phone = EXCLUDED.phone, website = EXCLUDED.website,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return translateError(err, "failed to save profile of county %s", profile.CountyID)
	}
	return nil
}
