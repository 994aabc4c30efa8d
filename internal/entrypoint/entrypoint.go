package entrypoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hallshelf/hallshelf/internal/audit"
	"github.com/hallshelf/hallshelf/internal/auth"
	"github.com/hallshelf/hallshelf/internal/circulation"
	"github.com/hallshelf/hallshelf/internal/config"
	"github.com/hallshelf/hallshelf/internal/database"
	auditdb "github.com/hallshelf/hallshelf/internal/database/audit"
	"github.com/hallshelf/hallshelf/internal/database/catalog"
	"github.com/hallshelf/hallshelf/internal/database/users"
	http_controllers "github.com/hallshelf/hallshelf/internal/http"
	"github.com/hallshelf/hallshelf/internal/metadata"
	"github.com/hallshelf/hallshelf/internal/scheduler"
	"github.com/hallshelf/hallshelf/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Services holds everything built on top of the database connection.
type Services struct {
	DB      *database.Database
	Audit   *audit.Service
	Manager *circulation.Manager
	Catalog *catalog.Repository
	Users   *users.Repository
	Auth    *auth.Service
}

// Open connects to the database and builds the services over it. Close
// releases them.
func Open(cfg *config.Config) (*Services, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	jwtSecret, err := secretBytes(cfg.Auth.JWTSecret, "AUTH_JWT_SECRET", cfg.Auth.Mode == config.AuthModeLocal)
	if err != nil {
		db.Close()
		return nil, err
	}

	auditService := audit.NewService(auditdb.NewRepository(db.DB))
	usersRepo := users.NewRepository(db.DB)

	return &Services{
		DB:      db,
		Audit:   auditService,
		Manager: circulation.NewManager(db.DB, circulation.WithAudit(auditService)),
		Catalog: catalog.NewRepository(db.DB),
		Users:   usersRepo,
		Auth:    auth.NewService(usersRepo, auth.NewTokenIssuer(jwtSecret, cfg.Auth.TokenExpiry), cfg.Auth),
	}, nil
}

// Close waits for pending audit writes and closes the database.
func (s *Services) Close() {
	s.Audit.Wait()
	if err := s.DB.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// secretBytes decodes a configured secret, or generates one when it is empty.
// Generated secrets do not survive a restart, so warn is set where that
// invalidates something users hold.
func secretBytes(configured, envName string, warn bool) ([]byte, error) {
	if configured != "" {
		if b, err := hex.DecodeString(configured); err == nil {
			return b, nil
		}
		// Not hex, use as raw bytes
		return []byte(configured), nil
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", envName, err)
	}
	if warn {
		log.Printf("Generated a random secret (set %s to persist it across restarts)", envName)
	}
	return hex.DecodeString(secret)
}

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		// service connections
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill (no param) default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	// Returning lets the caller's deferred cleanup close the database
	if err := shutdown(srv, timeout, onShutdown); err != nil {
		log.Printf("Server Shutdown: %v", err)
		return
	}

	log.Println("Server exiting")
}

func shutdown(srv *http.Server, timeout time.Duration, onShutdown ShutdownFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background work first so no new writes start during shutdown
	if onShutdown != nil {
		onShutdown(ctx)
	}

	return srv.Shutdown(ctx)
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting HallShelf v%s", version)

	services, err := Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer services.Close()

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.ConfigFrom(cfg.Tasks, cfg.Audit))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		tasks.RegisterQueues(taskClient, services.Audit, services.Manager, services.Audit)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		taskClient.Start(taskCtx)
	}

	// The scheduler only enqueues, so it needs the task queue
	var maintenance *scheduler.MaintenanceScheduler
	if cfg.Schedule.Enabled && taskClient != nil {
		maintenance = scheduler.NewMaintenanceScheduler(taskClient,
			scheduler.DefaultJobs(cfg.Schedule.AuditCleanup, cfg.Schedule.InventoryReconcile, cfg.Audit.RetentionDays)...)
		if err := maintenance.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start maintenance scheduler: %v", err)
		}
	} else if cfg.Schedule.Enabled {
		log.Printf("Maintenance schedule disabled because the task queue is disabled")
	}

	routerCfg := http_controllers.RouterConfig{
		Database:       services.DB,
		Manager:        services.Manager,
		Catalog:        services.Catalog,
		Users:          services.Users,
		Audit:          services.Audit,
		AuthService:    services.Auth,
		AuthConfig:     cfg.Auth,
		SecureCookies:  cfg.Auth.SecureCookies,
		TaskClient:     taskClient,
		Version:        version,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}

	if cfg.Lookup.Enabled {
		routerCfg.BookLookup = metadata.NewOpenLibraryClient(cfg.Lookup.BaseURL, cfg.Lookup.CacheTTL)
	}

	if cfg.Auth.Mode == config.AuthModeLocal {
		log.Printf("Authentication mode: local")

		sqlDB, err := services.DB.DB.DB()
		if err != nil {
			log.Fatalf("Failed to get SQL DB for sessions: %v", err)
		}
		routerCfg.SessionManager, err = auth.NewSessionManager(sqlDB, cfg.Database.Driver, cfg.Auth)
		if err != nil {
			log.Fatalf("Failed to initialize session manager: %v", err)
		}
		routerCfg.AuthMiddleware = auth.NewMiddleware(services.Auth, routerCfg.SessionManager, cfg.Auth)

		routerCfg.CSRFSecret, err = secretBytes(cfg.Auth.SessionSecret, "AUTH_SESSION_SECRET", true)
		if err != nil {
			log.Fatalf("Failed to generate CSRF secret: %v", err)
		}

		if hasUsers, err := services.Auth.HasUsers(context.Background()); err == nil && !hasUsers {
			log.Printf("No users found. POST /api/auth/register or run 'create-user' to create an administrator account.")
		}
	} else {
		log.Printf("Authentication mode: none (no authentication required)")
	}

	router := http_controllers.NewRouter(routerCfg)

	// Shutdown callback for graceful cleanup
	onShutdown := func(ctx context.Context) {
		if maintenance != nil {
			maintenance.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
