package http

import (
	"time"

	"github.com/hallshelf/hallshelf/internal/audit"
	"github.com/hallshelf/hallshelf/internal/auth"
	"github.com/hallshelf/hallshelf/internal/circulation"
	"github.com/hallshelf/hallshelf/internal/config"
	"github.com/hallshelf/hallshelf/internal/database"
	"github.com/hallshelf/hallshelf/internal/database/catalog"
	"github.com/hallshelf/hallshelf/internal/database/users"
	"github.com/hallshelf/hallshelf/internal/tasks"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database
	Manager  *circulation.Manager
	Catalog  *catalog.Repository
	Users    *users.Repository
	Audit    *audit.Service

	// Authentication
	AuthService    *auth.Service
	AuthMiddleware *auth.Middleware
	SessionManager *auth.SessionManager
	AuthConfig     config.Auth
	CSRFSecret     []byte
	SecureCookies  bool

	// Task queue client (optional)
	TaskClient *tasks.Client

	// ISBN lookup for catalog entry (optional)
	BookLookup BookLookup

	// Application info
	Version        string
	RequestTimeout time.Duration
}
