package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hallshelf/hallshelf/internal/auth"
	"github.com/hallshelf/hallshelf/internal/config"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware())
	}
	router.Use(TimeoutMiddleware(cfg.RequestTimeout))

	localAuth := cfg.AuthConfig.Mode == config.AuthModeLocal

	// CSRF must run before session so that session context is preserved
	if localAuth && len(cfg.CSRFSecret) > 0 {
		// Token and registration requests carry no cookie authority
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, cfg.AuthService,
			"/api/auth/token", "/api/auth/register"))
	}

	// Session runs after CSRF so session context isn't overwritten by CSRF's request replacement
	if localAuth && cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.SessionLoadSave())
	}

	authMiddleware := cfg.AuthMiddleware
	if authMiddleware == nil {
		authMiddleware = auth.NewMiddleware(cfg.AuthService, cfg.SessionManager, cfg.AuthConfig)
	}
	router.Use(authMiddleware.Handler())

	staff := authMiddleware.RequireRole(entities.UserRoleVolunteer, entities.UserRoleAdmin)
	admin := authMiddleware.RequireRole(entities.UserRoleAdmin)

	// Health endpoints
	health := NewHealthController(cfg.Database, cfg.TaskClient, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	api := router.Group("/api")

	// Auth endpoints
	if cfg.AuthService != nil && cfg.AuthService.IsAuthEnabled() {
		authController := auth.NewAuthController(cfg.AuthService, cfg.SessionManager, cfg.AuthConfig)
		if cfg.Audit != nil {
			authController.SetAuditor(cfg.Audit)
		}
		authController.RegisterRoutes(api.Group("/auth"))
	}

	// Circulation endpoints
	if cfg.Manager != nil {
		circ := NewCirculationController(cfg.Manager)
		api.POST("/requests", circ.CreateRequest)
		api.GET("/requests", circ.ListRequests)
		api.GET("/requests/:id", circ.GetRequest)
		api.POST("/requests/:id/cancel", circ.CancelRequest)
		api.POST("/requests/:id/fulfill", staff, circ.FulfillRequest)
		api.GET("/lendings", circ.ListLendings)
		api.GET("/lendings/:id", circ.GetLending)
		api.POST("/lendings/:id/return", staff, circ.ReturnLending)
		api.POST("/lendings/:id/mark-lost", staff, circ.MarkLendingLost)

		// Inventory endpoints
		collections := NewCollectionsController(cfg.Manager)
		api.POST("/book-collections", admin, collections.Upsert)
		api.GET("/book-collections", collections.List)
		api.GET("/book-collections/reconciliation", admin, collections.Reconciliation)
		api.GET("/book-collections/:id", collections.Get)
		api.PUT("/book-collections/:id", admin, collections.Set)
		api.DELETE("/book-collections/:id", admin, collections.Delete)
		api.GET("/books/:id/availability", collections.Availability)
	}

	// Catalog endpoints
	if cfg.Catalog != nil {
		var auditor CatalogAuditor
		if cfg.Audit != nil {
			auditor = cfg.Audit
		}
		NewCatalogController(cfg.Catalog.Authors, auditor).RegisterRoutes(api.Group("/authors"), admin)
		NewCatalogController(cfg.Catalog.Publishers, auditor).RegisterRoutes(api.Group("/publishers"), admin)
		NewCatalogController(cfg.Catalog.Categories, auditor).RegisterRoutes(api.Group("/categories"), admin)
		NewCatalogController(cfg.Catalog.Departments, auditor).RegisterRoutes(api.Group("/departments"), admin)
		NewCatalogController(cfg.Catalog.Halls, auditor).RegisterRoutes(api.Group("/halls"), admin)
		NewCatalogController(cfg.Catalog.Books, auditor).RegisterRoutes(api.Group("/books"), admin)
	}

	if cfg.BookLookup != nil {
		api.GET("/books/lookup", admin, NewLookupController(cfg.BookLookup).LookupISBN)
	}

	// User administration
	if cfg.Users != nil && cfg.AuthService != nil {
		usersController := NewUsersController(cfg.AuthService, cfg.Users)
		api.GET("/users", admin, usersController.ListUsers)
		api.POST("/users", admin, usersController.CreateUser)
		api.PUT("/users/:id/role", admin, usersController.UpdateRole)
	}

	// Audit log
	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit)
		api.GET("/audit", admin, auditController.GetAuditEvents)
		api.GET("/audit/types", admin, auditController.GetEventTypes)
	}

	// Task management endpoints
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient)
		api.GET("/tasks/types", admin, tasksController.ListTaskTypes)
		api.GET("/tasks/:id", admin, tasksController.GetTaskStatus)
		api.POST("/tasks/:type/run", admin, tasksController.RunTask)
	}

	return router
}
