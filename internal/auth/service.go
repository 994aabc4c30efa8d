package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/config"
	"github.com/hallshelf/hallshelf/internal/database/users"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// Validation patterns
var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already exists")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrAuthRequired     = errors.New("authentication required")
	ErrInvalidRole      = errors.New("invalid role")
	ErrUsernameRequired = errors.New("username is required")
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrAccountLocked    = errors.New("account is locked due to too many failed login attempts")
	ErrUsernameInvalid  = errors.New("username must be 3-64 characters, alphanumeric and underscore/hyphen only")
	ErrEmailInvalid     = errors.New("invalid email format")
)

// UserInput describes a new account.
type UserInput struct {
	Username     string
	Email        string
	Password     string
	Role         entities.UserRole
	DepartmentID *uint
	HallID       *uint
}

// Service handles authentication and user management.
type Service struct {
	users  *users.Repository
	tokens *TokenIssuer
	config config.Auth
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(repo *users.Repository, tokens *TokenIssuer, cfg config.Auth) *Service {
	return &Service{
		users:  repo,
		tokens: tokens,
		config: cfg,
		now:    time.Now,
	}
}

// Register creates a reader account.
func (s *Service) Register(ctx context.Context, username, email, password string) (*entities.User, error) {
	return s.CreateUser(ctx, UserInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     entities.UserRoleReader,
	})
}

// CreateUser creates a new user with password authentication.
func (s *Service) CreateUser(ctx context.Context, in UserInput) (*entities.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" {
		return nil, ErrUsernameRequired
	}
	if in.Email == "" {
		return nil, ErrEmailRequired
	}
	if in.Password == "" {
		return nil, ErrPasswordRequired
	}

	// Validate username format: 3-64 chars, alphanumeric + underscore/hyphen
	if !usernamePattern.MatchString(in.Username) {
		return nil, ErrUsernameInvalid
	}

	// Validate email format and length (RFC 5321 limit is 254)
	if len(in.Email) > 254 || !emailPattern.MatchString(in.Email) {
		return nil, ErrEmailInvalid
	}

	if !in.Role.Valid() {
		return nil, ErrInvalidRole
	}

	passwordHash, err := HashPassword(in.Password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &entities.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: passwordHash,
		Role:         in.Role,
		DepartmentID: in.DepartmentID,
		HallID:       in.HallID,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Authenticate validates credentials and returns the user.
// Implements account lockout after too many failed attempts.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*entities.User, error) {
	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// Check if account is locked
	if user.LockedUntil != nil && s.now().Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		s.recordFailedLogin(ctx, user)
		return nil, err
	}

	now := s.now()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLoginAt = &now
	user.FailedLoginCount = 0
	user.LockedUntil = nil

	return user, nil
}

// recordFailedLogin increments the failed login counter and locks the account if threshold reached.
func (s *Service) recordFailedLogin(ctx context.Context, user *entities.User) {
	user.FailedLoginCount++

	maxAttempts := s.config.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	var lockedUntil *time.Time
	if user.FailedLoginCount >= maxAttempts {
		lockoutDuration := s.config.LockoutDuration
		if lockoutDuration == 0 {
			lockoutDuration = 30 * time.Minute
		}
		until := s.now().Add(lockoutDuration)
		lockedUntil = &until
	}

	_ = s.users.RecordFailedLogin(ctx, user.ID, user.FailedLoginCount, lockedUntil)
}

// GetUserByID retrieves a user by their ID.
func (s *Service) GetUserByID(ctx context.Context, id uint) (*entities.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// IssueToken signs a bearer token for the user.
func (s *Service) IssueToken(user *entities.User) (string, time.Time, error) {
	return s.tokens.Issue(user)
}

// ValidateToken checks a bearer token and returns the current state of the
// user it was issued to. Role changes since issue take effect immediately.
func (s *Service) ValidateToken(ctx context.Context, token string) (*entities.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// ChangePassword updates a user's password.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	// Verify old password
	if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
		return err
	}

	newHash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}

	return s.users.UpdatePasswordHash(ctx, userID, newHash)
}

// HasUsers returns true if any users exist in the database.
func (s *Service) HasUsers(ctx context.Context) (bool, error) {
	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsAuthEnabled returns true if authentication is required.
func (s *Service) IsAuthEnabled() bool {
	return s.config.Mode == config.AuthModeLocal
}

// GetAuthMode returns the current authentication mode.
func (s *Service) GetAuthMode() config.AuthMode {
	return s.config.Mode
}
