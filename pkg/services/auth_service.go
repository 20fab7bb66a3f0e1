package services

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/repository"
)

const minPasswordLength = 8

// SignupRequest is the payload of POST /auth/signup.
type SignupRequest struct {
	Name         string      `json:"name" binding:"required"`
	Email        string      `json:"email" binding:"required,email"`
	Password     string      `json:"password" binding:"required"`
	Role         models.Role `json:"role" binding:"required,oneof=county state"`
	Organization string      `json:"organization"`
	CountyID     string      `json:"countyId"`
}

// AccountService handles signup, login and user lookups.
type AccountService interface {
	Signup(ctx context.Context, req SignupRequest) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Me(ctx context.Context, userID string) (*models.User, error)
	ListUsers(ctx context.Context, roles ...models.Role) ([]*models.User, error)
}

type accountService struct {
	BaseService
	users repository.UserRepository
	auth  *auth.Service
	now   func() time.Time
}

// NewAccountService creates the account service.
func NewAccountService(config ServiceConfig, users repository.UserRepository, authService *auth.Service) AccountService {
	return &accountService{
		BaseService: NewBaseService(config),
		users:       users,
		auth:        authService,
		now:         time.Now,
	}
}

func (s *accountService) Signup(ctx context.Context, req SignupRequest) (*auth.Session, error) {
	ctx, span := s.config.Tracer(ctx, "AccountService.Signup")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ValidationError{Field: "email", Message: "is not a valid address"}
	}
	if len(req.Password) < minPasswordLength {
		return nil, ValidationError{Field: "password", Message: "must be at least 8 characters"}
	}
	if req.Role != models.RoleCounty && req.Role != models.RoleState {
		return nil, ValidationError{Field: "role", Message: "must be county or state"}
	}
	if req.Role == models.RoleCounty && strings.TrimSpace(req.CountyID) == "" {
		return nil, ValidationError{Field: "countyId", Message: "is required for county users"}
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Role:         req.Role,
		Organization: strings.TrimSpace(req.Organization),
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if id := strings.TrimSpace(req.CountyID); id != "" {
		user.CountyID = &id
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, errors.Wrap(err, "failed to create user")
	}
	s.config.Logger.Info("User signed up", map[string]interface{}{"user_id": user.ID, "role": user.Role})
	return s.issue(ctx, user)
}

// Login checks the password. Unknown e-mails and wrong passwords both yield
// auth.ErrInvalidCredentials.
func (s *accountService) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "failed to look up user")
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		s.config.Metrics.IncrementCounter("login_failures_total", 1)
		return nil, auth.ErrInvalidCredentials
	}
	return s.issue(ctx, user)
}

func (s *accountService) issue(ctx context.Context, user *models.User) (*auth.Session, error) {
	principal := auth.PrincipalFromUser(user)
	token, expires, err := s.auth.GenerateJWT(ctx, principal)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue token")
	}
	return &auth.Session{Token: token, User: principal, ExpiresAt: expires}, nil
}

func (s *accountService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get user %s", userID)
	}
	return user, nil
}

func (s *accountService) ListUsers(ctx context.Context, roles ...models.Role) ([]*models.User, error) {
	users, err := s.users.List(ctx, roles...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	return users, nil
}
