package auth

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hallshelf/hallshelf/internal/config"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// setupMutex serializes registrations so that only one request can claim the
// first (administrator) account.
var setupMutex sync.Mutex

// Auditor records login attempts.
type Auditor interface {
	LogAuth(userID uint, action, ipAddr string, success bool)
}

type noopAuditor struct{}

func (noopAuditor) LogAuth(uint, string, string, bool) {}

// AuthController handles authentication-related HTTP endpoints.
type AuthController struct {
	service        *Service
	sessionManager *SessionManager
	rateLimiter    *RateLimiter
	auditor        Auditor
	config         config.Auth
}

// NewAuthController creates a new authentication controller.
func NewAuthController(service *Service, sessionManager *SessionManager, cfg config.Auth) *AuthController {
	return &AuthController{
		service:        service,
		sessionManager: sessionManager,
		auditor:        noopAuditor{},
		config:         cfg,
		rateLimiter: NewRateLimiter(RateLimitConfig{
			MaxAttempts:     cfg.MaxLoginAttempts,
			WindowDuration:  cfg.RateLimitWindow,
			LockoutDuration: cfg.LockoutDuration,
		}),
	}
}

// SetAuditor records login attempts and registrations in auditor.
func (ac *AuthController) SetAuditor(auditor Auditor) {
	if auditor != nil {
		ac.auditor = auditor
	}
}

// RegisterRoutes registers authentication routes on the /api/auth group.
func (ac *AuthController) RegisterRoutes(group *gin.RouterGroup) {
	limited := ac.rateLimiter.RateLimitMiddleware()

	group.POST("/register", ac.Register)
	group.POST("/login", limited, ac.Login)
	group.POST("/token", limited, ac.Token)
	group.POST("/logout", ac.Logout)
	group.GET("/me", ac.Me)
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"` // username or email
	Password string `json:"password" binding:"required"`
}

// TokenResponse is returned by the token endpoint.
type TokenResponse struct {
	Token     string         `json:"token"`
	TokenType string         `json:"token_type"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *entities.User `json:"user"`
}

// Register creates a reader account. The very first account created on an
// empty database becomes an administrator.
func (ac *AuthController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "username, email and password are required", "code": "validation"})
		return
	}

	setupMutex.Lock()
	defer setupMutex.Unlock()

	hasUsers, err := ac.service.HasUsers(c.Request.Context())
	if err != nil {
		log.Printf("Failed to count users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
		return
	}

	role := entities.UserRoleReader
	if !hasUsers {
		role = entities.UserRoleAdmin
	}

	user, err := ac.service.CreateUser(c.Request.Context(), UserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		respondUserError(c, err)
		return
	}

	if role == entities.UserRoleAdmin {
		log.Printf("Created initial administrator %q", user.Username)
	}
	ac.auditor.LogAuth(user.ID, "register", c.ClientIP(), true)
	c.JSON(http.StatusCreated, user)
}

// Login authenticates with a password and starts a cookie session.
func (ac *AuthController) Login(c *gin.Context) {
	user, ok := ac.authenticate(c)
	if !ok {
		return
	}

	if ac.sessionManager == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessions are disabled, use /api/auth/token", "code": "sessions_disabled"})
		return
	}
	if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
		log.Printf("Failed to create session for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session", "code": "internal"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// Token authenticates with a password and returns a bearer token.
func (ac *AuthController) Token(c *gin.Context) {
	user, ok := ac.authenticate(c)
	if !ok {
		return
	}

	token, expiresAt, err := ac.service.IssueToken(user)
	if err != nil {
		log.Printf("Failed to issue token for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token", "code": "internal"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// authenticate checks the posted credentials and feeds the rate limiter.
// It writes the error response itself and reports whether to continue.
func (ac *AuthController) authenticate(c *gin.Context) (*entities.User, bool) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "username and password are required", "code": "validation"})
		return nil, false
	}

	clientIP := c.ClientIP()
	user, err := ac.service.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		ac.rateLimiter.RecordFailure(clientIP, req.Username)
		ac.auditor.LogAuth(0, "login_failed", clientIP, false)

		switch {
		case errors.Is(err, ErrAccountLocked):
			c.JSON(http.StatusLocked, gin.H{"error": "account is locked, try again later", "code": "locked"})
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrInvalidPassword):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password", "code": "unauthorized"})
		default:
			log.Printf("Login failed for %q: %v", req.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
		}
		return nil, false
	}

	ac.rateLimiter.RecordSuccess(clientIP, req.Username)
	ac.auditor.LogAuth(user.ID, "login", clientIP, true)
	return user, true
}

// Logout destroys the session. Bearer tokens expire on their own.
func (ac *AuthController) Logout(c *gin.Context) {
	if ac.sessionManager != nil {
		_ = ac.sessionManager.DestroySession(c.Request)
	}
	c.Status(http.StatusNoContent)
}

// Me returns the authenticated user.
func (ac *AuthController) Me(c *gin.Context) {
	userID := GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrAuthRequired.Error(), "code": "unauthorized"})
		return
	}

	user, err := ac.service.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrAuthRequired.Error(), "code": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":      user,
		"auth_type": GetAuthType(c),
	})
}

// respondUserError maps account creation failures to responses.
func respondUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "conflict"})
	case IsUserInputError(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "validation"})
	default:
		log.Printf("Failed to create user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user", "code": "internal"})
	}
}

// IsUserInputError reports whether err was caused by invalid account data.
func IsUserInputError(err error) bool {
	for _, target := range []error{
		ErrUsernameRequired, ErrUsernameInvalid,
		ErrEmailRequired, ErrEmailInvalid,
		ErrPasswordRequired, ErrPasswordTooShort, ErrPasswordTooLong,
		ErrInvalidRole,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
