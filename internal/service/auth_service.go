package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/security/auth"
)

// ErrInvalidCredentials is returned for any failed login, whatever the cause
var ErrInvalidCredentials = errors.New("invalid credentials")

// ClientRegistrar applies registration data to the new identity's client
type ClientRegistrar interface {
	Register(ctx context.Context, tx domain.Repositories, identity *domain.User, overrides ClientOverrides) (*domain.Client, error)
}

// AuthService handles authentication operations
type AuthService struct {
	store      domain.Store
	sessions   domain.SessionStore
	tokens     *auth.TokenManager
	sessionTTL time.Duration
	registrar  ClientRegistrar
	onCreated  []domain.IdentityHook
	onUpdated  []domain.IdentityHook
	logger     *slog.Logger
}

// NewAuthService creates a new authentication service. registrar may be nil.
func NewAuthService(
	store domain.Store,
	sessions domain.SessionStore,
	tokens *auth.TokenManager,
	sessionTTL time.Duration,
	registrar ClientRegistrar,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}

	return &AuthService{
		store:      store,
		sessions:   sessions,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		registrar:  registrar,
		logger:     logger,
	}
}

// OnIdentityCreated subscribes h to identity creation. Hooks run inside the registration
// transaction in subscription order.
func (s *AuthService) OnIdentityCreated(h domain.IdentityHook) {
	s.onCreated = append(s.onCreated, h)
}

// OnIdentityUpdated subscribes h to identity updates
func (s *AuthService) OnIdentityUpdated(h domain.IdentityHook) {
	s.onUpdated = append(s.onUpdated, h)
}

// RegisterInput carries registration form data
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Client    ClientOverrides
}

// RegisterResult represents registration response
type RegisterResult struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	ClientID  int64  `json:"client_id,omitempty"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// LoginResult represents login response
type LoginResult struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	IsStaff   bool   `json:"is_staff"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"` // seconds
	TokenType string `json:"token_type"`
}

// IdentityUpdate carries optional identity changes; nil fields are left alone
type IdentityUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
}

// Register creates the identity and its client in one transaction, then opens a session
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", domain.ErrInvalidInput)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
		}
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, errors.New("failed to register user")
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		IsActive:     true,
	}

	var client *domain.Client
	err = s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		if err := ensureEmailFree(ctx, tx, in.Email, 0); err != nil {
			return err
		}
		if _, err := tx.Users().GetByUsername(ctx, in.Username); err == nil {
			return &domain.ConflictError{Entity: "user", Field: "username"}
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		for _, hook := range s.onCreated {
			if err := hook(ctx, tx, user); err != nil {
				return err
			}
		}
		if s.registrar != nil {
			c, err := s.registrar.Register(ctx, tx, user, in.Client)
			if err != nil {
				return err
			}
			client = c
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("registration failed",
			slog.String("username", in.Username),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	token, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Token:     token,
		ExpiresIn: int(s.sessionTTL.Seconds()),
	}
	if client != nil {
		result.ClientID = client.ID
	}

	s.logger.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return result, nil
}

// Login authenticates by username or email and returns a token bound to a new session
func (s *AuthService) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, fmt.Errorf("%w: login and password are required", domain.ErrInvalidInput)
	}

	user, err := s.store.Users().GetByUsername(ctx, login)
	if errors.Is(err, domain.ErrNotFound) && strings.Contains(login, "@") {
		user, err = s.store.Users().GetByEmail(ctx, login)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("login attempt with unknown account", slog.String("login", login))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive || !auth.CheckPassword(user.PasswordHash, password) {
		s.logger.Info("login failed", slog.Int64("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	token, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	if client, err := s.store.Clients().GetByUserID(ctx, user.ID); err == nil {
		if err := s.store.Clients().TouchLastLogin(ctx, client.ID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to record last login",
				slog.Int64("client_id", client.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return &LoginResult{
		UserID:    user.ID,
		Username:  user.Username,
		IsStaff:   user.IsStaff,
		Token:     token,
		ExpiresIn: int(s.sessionTTL.Seconds()),
		TokenType: "Bearer",
	}, nil
}

// Logout revokes the session the token was bound to
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session revoked", slog.String("session_id", sessionID))
	return nil
}

// ChangePassword changes a user's password
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !auth.CheckPassword(user.PasswordHash, oldPassword) {
		return fmt.Errorf("%w: current password is incorrect", domain.ErrInvalidInput)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
		}
		s.logger.Error("failed to hash new password", slog.String("error", err.Error()))
		return errors.New("failed to change password")
	}

	user.PasswordHash = hash
	if err := s.store.Users().Update(ctx, user); err != nil {
		s.logger.Error("failed to update user password", slog.String("error", err.Error()))
		return err
	}

	s.logger.Info("user changed password", slog.Int64("user_id", userID))
	return nil
}

// UpdateIdentity changes names or email and notifies update subscribers in the same transaction
func (s *AuthService) UpdateIdentity(ctx context.Context, userID int64, in IdentityUpdate) (*domain.User, error) {
	var user *domain.User
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		var err error
		user, err = tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}

		if in.FirstName != nil {
			user.FirstName = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			user.LastName = strings.TrimSpace(*in.LastName)
		}
		if in.Email != nil {
			email := strings.TrimSpace(*in.Email)
			if email == "" {
				return fmt.Errorf("%w: email must not be empty", domain.ErrInvalidInput)
			}
			if err := ensureEmailFree(ctx, tx, email, user.ID); err != nil {
				return err
			}
			user.Email = email
		}

		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}
		for _, hook := range s.onUpdated {
			if err := hook(ctx, tx, user); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) openSession(ctx context.Context, user *domain.User) (string, error) {
	sessionID, err := s.sessions.Create(ctx, user.ID, s.sessionTTL)
	if err != nil {
		return "", err
	}
	token, err := s.tokens.GenerateToken(user.ID, sessionID, user.Username, user.IsStaff, s.sessionTTL)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		_ = s.sessions.Revoke(ctx, sessionID)
		return "", errors.New("failed to generate token")
	}
	return token, nil
}

// ensureEmailFree fails with a ConflictError when another identity uses email, ignoring case
func ensureEmailFree(ctx context.Context, tx domain.Repositories, email string, selfID int64) error {
	existing, err := tx.Users().GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return &domain.ConflictError{Entity: "user", Field: "email"}
}
