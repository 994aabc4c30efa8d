package audit

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	auditRepo "github.com/hallshelf/hallshelf/internal/database/audit"
	"github.com/hallshelf/hallshelf/internal/entities"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	dbPath := "./test_audit_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	})

	repo := auditRepo.NewRepository(db)
	return NewService(repo), db
}

func TestService_Log(t *testing.T) {
	svc, db := setupTestService(t)

	event := &entities.AuditEvent{
		UserID:    1,
		EventType: entities.AuditEventCirculation,
		Action:    "request_create",
		Status:    entities.AuditStatusSuccess,
	}

	require.NoError(t, svc.Log(context.Background(), event))

	var saved entities.AuditEvent
	require.NoError(t, db.First(&saved, event.ID).Error)
	assert.Equal(t, "request_create", saved.Action)
}

func TestService_LogCirculation(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogCirculation(7, "request_fulfill", "request", 12, "Fulfilled request 12", map[string]any{"lending_id": 3})
	svc.Wait()

	var event entities.AuditEvent
	require.NoError(t, db.Where("action = ?", "request_fulfill").First(&event).Error)
	assert.Equal(t, entities.AuditEventCirculation, event.EventType)
	assert.Equal(t, uint(7), event.UserID)
	require.NotNil(t, event.EntityID)
	assert.Equal(t, uint(12), *event.EntityID)
	assert.Contains(t, event.Metadata, "lending_id")
}

func TestService_LogInventory(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogInventory(1, "stock_upsert", 4, "Added 2 copies", nil)
	svc.Wait()

	var event entities.AuditEvent
	require.NoError(t, db.Where("action = ?", "stock_upsert").First(&event).Error)
	assert.Equal(t, "book_collection", event.EntityType)
	assert.Empty(t, event.Metadata)
}

func TestService_LogCatalog(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogCatalog(1, "delete", "author", 42, "Deleted author 42")
	svc.Wait()

	var event entities.AuditEvent
	require.NoError(t, db.Where("action = ?", "author_delete").First(&event).Error)
	assert.Equal(t, entities.AuditEventCatalog, event.EventType)
}

func TestService_LogAuth(t *testing.T) {
	svc, db := setupTestService(t)

	t.Run("successful login", func(t *testing.T) {
		svc.LogAuth(1, "login", "192.168.1.1", true)
		svc.Wait()

		var event entities.AuditEvent
		require.NoError(t, db.Where("action = ?", "login").First(&event).Error)
		assert.Equal(t, entities.AuditStatusSuccess, event.Status)
		assert.Equal(t, "192.168.1.1", event.IPAddress)
	})

	t.Run("failed login", func(t *testing.T) {
		svc.LogAuth(0, "login_failed", "10.0.0.1", false)
		svc.Wait()

		var event entities.AuditEvent
		require.NoError(t, db.Where("action = ?", "login_failed").First(&event).Error)
		assert.Equal(t, entities.AuditStatusFailed, event.Status)
	})
}

func TestService_LogMaintenance(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogMaintenance("inventory_reconcile", "Reconcile failed", nil, errors.New("database is locked"))
	svc.Wait()

	var event entities.AuditEvent
	require.NoError(t, db.Where("action = ?", "inventory_reconcile").First(&event).Error)
	assert.Equal(t, entities.AuditStatusFailed, event.Status)
	assert.Contains(t, event.ErrorMsg, "database is locked")
}

func TestService_ListEvents(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := svc.Log(ctx, &entities.AuditEvent{
			UserID:    1,
			EventType: entities.AuditEventInventory,
			Action:    "stock_upsert",
			Status:    entities.AuditStatusSuccess,
		})
		require.NoError(t, err)
	}

	events, total, err := svc.ListEvents(ctx, auditRepo.Filter{UserID: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, events, 5)
}

func TestService_DeleteOldEvents(t *testing.T) {
	svc, db := setupTestService(t)

	oldEvent := &entities.AuditEvent{
		EventType: entities.AuditEventCirculation,
		Action:    "old",
		Status:    entities.AuditStatusSuccess,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, db.Create(oldEvent).Error)

	newEvent := &entities.AuditEvent{
		EventType: entities.AuditEventCirculation,
		Action:    "new",
		Status:    entities.AuditStatusSuccess,
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(newEvent).Error)

	deleted, err := svc.DeleteOldEvents(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []entities.AuditEvent
	db.Find(&remaining)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].Action)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10c", 10, "exactly10c"},
		{"this is a very long string", 10, "this is..."},
		{"", 5, ""},
	}

	for _, tc := range tests {
		result := truncate(tc.input, tc.maxLen)
		assert.Equal(t, tc.expected, result)
	}
}
