// Package audit records who changed circulation and inventory state.
//
// Writes happen after the business transaction commits and never fail the
// caller: LogAsync persists in the background and Wait blocks until every
// pending write has finished.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/hallshelf/hallshelf/internal/database/audit"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(ctx context.Context, event *entities.AuditEvent) error {
	return s.repo.LogEvent(ctx, event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.repo.LogEvent(ctx, event); err != nil {
			log.Printf("Failed to log audit event %s: %v", event.Action, err)
		}
	}()
}

// Wait blocks until all background writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogCirculation records a request or lending transition.
func (s *Service) LogCirculation(userID uint, action, entityType string, entityID uint, description string, metadata map[string]any) {
	s.LogAsync(&entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventCirculation,
		Action:      action,
		Description: truncate(description, 500),
		EntityType:  entityType,
		EntityID:    &entityID,
		Metadata:    encode(metadata),
		Status:      entities.AuditStatusSuccess,
	})
}

// LogInventory records a change to the copy counts of a collection.
func (s *Service) LogInventory(userID uint, action string, collectionID uint, description string, metadata map[string]any) {
	s.LogAsync(&entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventInventory,
		Action:      action,
		Description: truncate(description, 500),
		EntityType:  "book_collection",
		EntityID:    &collectionID,
		Metadata:    encode(metadata),
		Status:      entities.AuditStatusSuccess,
	})
}

// LogCatalog records a create, update or delete of a reference row.
func (s *Service) LogCatalog(userID uint, action, entityType string, entityID uint, description string) {
	s.LogAsync(&entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventCatalog,
		Action:      entityType + "_" + action,
		Description: truncate(description, 500),
		EntityType:  entityType,
		EntityID:    &entityID,
		Status:      entities.AuditStatusSuccess,
	})
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(userID uint, action, ipAddr string, success bool) {
	event := &entities.AuditEvent{
		UserID:    userID,
		EventType: entities.AuditEventAuth,
		Action:    action,
		IPAddress: ipAddr,
		Status:    entities.AuditStatusSuccess,
	}

	if !success {
		event.Status = entities.AuditStatusFailed
	}

	s.LogAsync(event)
}

// LogMaintenance records the outcome of a background maintenance job.
func (s *Service) LogMaintenance(action, description string, metadata map[string]any, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventMaintenance,
		Action:      action,
		Description: truncate(description, 500),
		Metadata:    encode(metadata),
		Status:      entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	s.LogAsync(event)
}

// ListEvents retrieves paginated audit events.
func (s *Service) ListEvents(ctx context.Context, f audit.Filter) ([]entities.AuditEvent, int64, error) {
	return s.repo.ListEvents(ctx, f)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(ctx, cutoff)
}

func encode(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(b)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
