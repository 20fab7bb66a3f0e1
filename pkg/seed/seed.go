// Package seed loads the county directory and statutory obligations from
// YAML into the database.
package seed

import (
	"context"
	_ "embed"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/repository"
)

//go:embed counties.yaml
var defaultData string

// Obligation is one statutory requirement of a county.
type Obligation struct {
	ID          string    `yaml:"id"`
	LawName     string    `yaml:"law"`
	Description string    `yaml:"description"`
	DueDate     time.Time `yaml:"due"`
}

// County is one entry of the directory.
type County struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Population  int          `yaml:"population"`
	Region      string       `yaml:"region"`
	Email       string       `yaml:"email"`
	Obligations []Obligation `yaml:"obligations"`
}

// Data is a seed file.
type Data struct {
	Counties []County `yaml:"counties"`
}

// Default returns the embedded seed data.
func Default() (*Data, error) {
	return Parse(strings.NewReader(defaultData))
}

// Parse decodes and checks a seed file. Ids must be unique.
func Parse(r io.Reader) (*Data, error) {
	var d Data
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, errors.Wrap(err, "failed to decode seed data")
	}
	seen := map[string]bool{}
	for i, c := range d.Counties {
		if c.ID == "" || c.Name == "" {
			return nil, errors.Errorf("county %d: id and name are required", i)
		}
		if seen[c.ID] {
			return nil, errors.Errorf("duplicate county id %q", c.ID)
		}
		seen[c.ID] = true
		for _, o := range c.Obligations {
			if o.ID == "" || o.LawName == "" || o.DueDate.IsZero() {
				return nil, errors.Errorf("county %s: obligations need id, law and due", c.ID)
			}
			if seen[o.ID] {
				return nil, errors.Errorf("duplicate obligation id %q", o.ID)
			}
			seen[o.ID] = true
		}
	}
	return &d, nil
}

// Seeder writes seed data through the repositories.
type Seeder struct {
	counties    repository.CountyRepository
	obligations repository.ObligationRepository
	logger      observability.Logger
}

// NewSeeder creates a seeder.
func NewSeeder(counties repository.CountyRepository, obligations repository.ObligationRepository, logger observability.Logger) *Seeder {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Seeder{counties: counties, obligations: obligations, logger: logger}
}

// Apply upserts every county and creates missing obligations. Running it
// twice is harmless.
func (s *Seeder) Apply(ctx context.Context, d *Data) error {
	added := 0
	for _, c := range d.Counties {
		county := &models.County{ID: c.ID, Name: c.Name, Population: c.Population, Region: c.Region}
		if err := s.counties.Upsert(ctx, county); err != nil {
			return errors.Wrapf(err, "failed to seed county %s", c.ID)
		}
		if c.Email != "" {
			profile := &models.CountyProfile{CountyID: c.ID, Name: c.Name, Email: c.Email}
			if err := s.counties.UpsertProfile(ctx, profile); err != nil {
				return errors.Wrapf(err, "failed to seed profile of county %s", c.ID)
			}
		}
		for _, o := range c.Obligations {
			err := s.obligations.Create(ctx, &models.Obligation{
				ID:          o.ID,
				CountyID:    c.ID,
				LawName:     o.LawName,
				Description: o.Description,
				DueDate:     o.DueDate.UTC(),
				Status:      models.ObligationPending,
			})
			switch {
			case err == nil:
				added++
			case errors.Is(err, repository.ErrDuplicate):
			default:
				return errors.Wrapf(err, "failed to seed obligation %s", o.ID)
			}
		}
	}
	s.logger.Info("Seed data applied", map[string]interface{}{
		"counties":    len(d.Counties),
		"obligations": added,
	})
	return nil
}
