package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/config"
	"github.com/makkenzo/apikey-service-api/internal/domain/user"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "apikey-service"

// Claims are carried by admin access tokens.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the token subject as a user id.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

type AuthService struct {
	users     user.Repository
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewAuthService(users user.Repository, cfg *config.SecurityConfig, logger *zap.Logger) *AuthService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		users:     users,
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  ttl,
		now:       time.Now,
		logger:    logger.Named("AuthService"),
	}
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.logger.Info("Registering user", zap.String("email", email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return nil, fmt.Errorf("%w: failed hashing password: %v", ierr.ErrInternalServer, err)
	}

	u := &user.User{Email: email, PasswordHash: string(hash)}
	id, err := s.users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, fmt.Errorf("%w: %v", ierr.ErrConflict, err)
		}
		s.logger.Error("Failed to save user", zap.Error(err))
		return nil, fmt.Errorf("repository error creating user: %w", err)
	}

	created, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve created user (id: %s): %w", id, err)
	}

	s.logger.Info("User registered", zap.String("id", id.String()))
	return created, nil
}

// Login checks the credentials and issues an HS256 access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// Unknown emails cost one bcrypt comparison, same as a wrong password.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return "", ierr.ErrInvalidCredentials
		}
		return "", fmt.Errorf("repository error finding user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("Invalid password", zap.String("user_id", u.ID.String()))
		return "", ierr.ErrInvalidCredentials
	}

	now := s.now()
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		return "", fmt.Errorf("%w: failed signing token: %v", ierr.ErrInternalServer, err)
	}

	s.logger.Info("User logged in", zap.String("user_id", u.ID.String()))
	return token, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, rawToken string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		s.logger.Debug("Token rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ierr.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ierr.ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ierr.ErrTokenInvalidClaims)
	}

	return claims, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("timing-equalizer"), bcrypt.DefaultCost)
