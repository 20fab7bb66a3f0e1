// Package auth issues and validates portal sessions: bcrypt password hashes,
// HS256 JWTs, the gin gate and the client-side session source.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Common errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNoSecret           = errors.New("JWT secret not configured")
)

// Config represents auth configuration
type Config struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`
	Issuer        string        `mapstructure:"issuer"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`
}

// DefaultConfig returns the defaults used when a field is left empty.
func DefaultConfig() Config {
	return Config{
		JWTExpiration: 24 * time.Hour,
		Issuer:        "county-portal",
		BcryptCost:    bcrypt.DefaultCost,
	}
}

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	UserID   string      `json:"user_id"`
	Email    string      `json:"email,omitempty"`
	Name     string      `json:"name,omitempty"`
	Role     models.Role `json:"role"`
	CountyID string      `json:"county_id,omitempty"`
}

// Principal is the identity carried by a validated token.
type Principal struct {
	ID       string      `json:"id"`
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
	CountyID string      `json:"countyId,omitempty"`
}

// PrincipalFromUser builds the token identity for a stored user.
func PrincipalFromUser(u *models.User) *Principal {
	p := &Principal{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
	if u.CountyID != nil {
		p.CountyID = *u.CountyID
	}
	return p
}

// Service signs and validates session tokens.
type Service struct {
	config Config
	logger observability.Logger
	now    func() time.Time
}

// NewService creates an auth service. Zero config fields fall back to
// DefaultConfig.
func NewService(config Config, logger observability.Logger) *Service {
	def := DefaultConfig()
	if config.JWTExpiration <= 0 {
		config.JWTExpiration = def.JWTExpiration
	}
	if config.Issuer == "" {
		config.Issuer = def.Issuer
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = def.BcryptCost
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Service{config: config, logger: logger.WithPrefix("auth"), now: time.Now}
}

// GenerateJWT signs a token for p and returns it with its expiry.
func (s *Service) GenerateJWT(ctx context.Context, p *Principal) (string, time.Time, error) {
	if s.config.JWTSecret == "" {
		return "", time.Time{}, ErrNoSecret
	}

	now := s.now()
	expires := now.Add(s.config.JWTExpiration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		UserID:   p.ID,
		Email:    p.Email,
		Name:     p.Name,
		Role:     p.Role,
		CountyID: p.CountyID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ValidateJWT validates a JWT token and returns the associated principal
func (s *Service) ValidateJWT(ctx context.Context, tokenString string) (*Principal, error) {
	if tokenString == "" || s.config.JWTSecret == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return &Principal{
		ID:       claims.UserID,
		Email:    claims.Email,
		Name:     claims.Name,
		Role:     claims.Role,
		CountyID: claims.CountyID,
	}, nil
}

// HashPassword hashes a password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.config.BcryptCost)
}

// HashPassword hashes a password using bcrypt at the given cost
func HashPassword(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

// CheckPassword checks if a password matches a hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
