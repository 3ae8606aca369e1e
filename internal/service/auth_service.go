package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/pkg/crypto"
	"github.com/bazaarverse/numrent/pkg/logger"
)

// UserStore is the slice of the user repository the auth service needs.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error
}

// SessionStore records issued tokens so logout can revoke them.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	DeleteByToken(ctx context.Context, token string) error
}

// TokenIssuer mints signed access tokens for a principal.
type TokenIssuer interface {
	GenerateToken(userID, username, role string) (string, error)
}

type AuthService struct {
	users     UserStore
	sessions  SessionStore
	tokens    TokenIssuer
	expiresIn time.Duration
	log       logger.Logger
}

func NewAuthService(users UserStore, sessions SessionStore, tokens TokenIssuer, expiresIn time.Duration, log logger.Logger) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		expiresIn: expiresIn,
		log:       log,
	}
}

// Login verifies credentials and issues a token. Disabled accounts are
// rejected after the password check so the two failures are not
// distinguishable by timing.
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest, userAgent, ip string) (*models.LoginResponse, error) {
	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrInvalidCredentials
	}

	if !crypto.CheckPassword(req.Password, user.Password) {
		s.log.Warn("failed login attempt",
			logger.Field{Key: "username", Value: req.Username},
			logger.Field{Key: "ip", Value: ip},
		)
		return nil, models.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, models.ErrAccountDisabled
	}

	token, err := s.tokens.GenerateToken(user.ID.Hex(), user.Username, user.Role)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:       user.ID,
		Token:        token,
		RefreshToken: uuid.New().String(),
		UserAgent:    userAgent,
		IPAddress:    ip,
		ExpiresAt:    time.Now().Add(s.expiresIn),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.log.Warn("failed to update last login",
			logger.Field{Key: "user_id", Value: user.ID.Hex()},
		)
	}

	redirect := "/dashboard"
	if user.Role == models.RoleAdmin {
		redirect = "/admin"
	}

	s.log.Info("user logged in",
		logger.Field{Key: "username", Value: user.Username},
		logger.Field{Key: "role", Value: user.Role},
	)

	return &models.LoginResponse{
		Token:       token,
		Username:    user.Username,
		Role:        user.Role,
		Balance:     user.Balance,
		RedirectURL: redirect,
	}, nil
}

// Logout revokes the session behind the given token. Unknown tokens are not
// an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.DeleteByToken(ctx, token)
}

// EnsureDefaultAdmin creates the bootstrap admin account on first start. An
// existing account with the configured username is left untouched.
func (s *AuthService) EnsureDefaultAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		s.log.Warn("admin bootstrap skipped, credentials not configured")
		return nil
	}

	existing, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}

	admin := &models.User{
		Username: username,
		Password: hash,
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		if err == models.ErrUsernameTaken {
			return nil
		}
		return err
	}

	s.log.Info("default admin account created",
		logger.Field{Key: "username", Value: username},
	)

	return nil
}
