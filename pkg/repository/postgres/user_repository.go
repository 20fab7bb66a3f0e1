package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/civisight/portal/pkg/cache"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const userColumns = `id, name, email, role, organization, county_id, password_hash, created_at`

type userRepository struct {
	*BaseRepository
}

// NewUserRepository creates a Postgres-backed UserRepository. Lookups by id
// are cached when c is non-nil.
func NewUserRepository(db *sqlx.DB, c cache.Cache, logger observability.Logger, tracer observability.StartSpanFunc, metrics observability.MetricsClient) repository.UserRepository {
	return &userRepository{BaseRepository: NewBaseRepository(db, c, logger, tracer, metrics)}
}

// cachedUser keeps the password hash, which models.User hides from JSON.
type cachedUser struct {
	models.User
	Hash string `json:"passwordHash"`
}

func (r *userRepository) Create(ctx context.Context, user *models.User) (err error) {
	ctx, done := r.begin(ctx, "users", "create")
	defer func() { done(err) }()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :name, :email, :role, :organization, :county_id, :password_hash, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return translateError(err, "failed to create user %s", user.Email)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (user *models.User, err error) {
	ctx, done := r.begin(ctx, "users", "get")
	defer func() { done(err) }()

	var cached cachedUser
	if r.cacheGet(ctx, userKey(id), &cached) {
		u := cached.User
		u.PasswordHash = cached.Hash
		return &u, nil
	}

	user = &models.User{}
	if err := r.db.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, translateError(err, "failed to get user %s", id)
	}
	r.cacheSet(ctx, userKey(id), cachedUser{User: *user, Hash: user.PasswordHash})
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (user *models.User, err error) {
	ctx, done := r.begin(ctx, "users", "get_by_email")
	defer func() { done(err) }()

	user = &models.User{}
	email = strings.ToLower(strings.TrimSpace(email))
	if err := r.db.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE email = $1`, email); err != nil {
		return nil, translateError(err, "failed to get user by email")
	}
	return user, nil
}

func (r *userRepository) List(ctx context.Context, roles ...models.Role) (users []*models.User, err error) {
	ctx, done := r.begin(ctx, "users", "list")
	defer func() { done(err) }()

	query := `SELECT ` + userColumns + ` FROM users`
	var args []interface{}
	if len(roles) > 0 {
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		query += ` WHERE role = ANY($1)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY name, id`

	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, translateError(err, "failed to list users")
	}
	return users, nil
}

func userKey(id string) string {
	return "user:" + id
}
