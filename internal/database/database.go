package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hallshelf/hallshelf/internal/config"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// sqliteParams enables WAL, waits on locks instead of failing, and starts
// every transaction with BEGIN IMMEDIATE so concurrent writers serialize
// on the database lock rather than deadlocking on lock upgrades.
const sqliteParams = "_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"

type Database struct {
	DB *gorm.DB
}

// NewDatabase opens a SQLite database at dbPath and migrates the schema.
func NewDatabase(dbPath string) (*Database, error) {
	return Open(config.Database{
		Driver:   config.DriverSQLite,
		Path:     dbPath,
		LogLevel: "warn",
	})
}

// Open connects to the configured driver and migrates the schema.
func Open(cfg config.Database) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN is required for the postgres driver")
		}
		dialector = postgres.Open(cfg.DSN)
	case config.DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(cfg.Path))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newLogger(log.New(os.Stdout, "\r\n", log.LstdFlags), cfg.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = db.AutoMigrate(
		&entities.Department{},
		&entities.Hall{},
		&entities.User{},
		&entities.Author{},
		&entities.Publisher{},
		&entities.Category{},
		&entities.Book{},
		&entities.BookCollection{},
		&entities.Request{},
		&entities.Lending{},
		&entities.AuditEvent{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if cfg.Driver == config.DriverPostgres {
		log.Printf("Database initialized successfully (postgres)")
	} else {
		log.Printf("Database initialized successfully at %s", cfg.Path)
	}

	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the underlying connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + sqliteParams
	}
	return path + "?" + sqliteParams
}

// newLogger mirrors logger.Default but stays quiet about lookups that
// find nothing; those are reported to callers as ErrNotFound.
func newLogger(w logger.Writer, level string) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  parseLogLevel(level),
		IgnoreRecordNotFoundError: true,
		Colorful:                  true,
	})
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
