package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/hallshelf/hallshelf/internal/audit"
	"github.com/hallshelf/hallshelf/internal/auth"
	"github.com/hallshelf/hallshelf/internal/circulation"
	"github.com/hallshelf/hallshelf/internal/entities"
	"github.com/hallshelf/hallshelf/internal/http"
	"github.com/hallshelf/hallshelf/internal/metadata"
	"github.com/hallshelf/hallshelf/internal/scheduler"
	"github.com/hallshelf/hallshelf/internal/tasks"
)

// =============================================================================
// Audit Sinks
// =============================================================================

var _ circulation.AuditSink = (*audit.Service)(nil)
var _ http.CatalogAuditor = (*audit.Service)(nil)
var _ auth.Auditor = (*audit.Service)(nil)

// =============================================================================
// Maintenance Tasks
// =============================================================================

var _ tasks.AuditEventCleaner = (*audit.Service)(nil)
var _ tasks.MaintenanceAuditor = (*audit.Service)(nil)
var _ tasks.InventoryReconciler = (*circulation.Manager)(nil)

// Enqueuer implementations
var _ scheduler.Enqueuer = (*tasks.Client)(nil)
var _ http.TaskQueue = (*tasks.Client)(nil)

// =============================================================================
// External Lookups
// =============================================================================

var _ http.BookLookup = (*metadata.OpenLibraryClient)(nil)

// =============================================================================
// Catalog Records
// =============================================================================

var _ entities.Record = (*entities.Author)(nil)
var _ entities.Record = (*entities.Publisher)(nil)
var _ entities.Record = (*entities.Category)(nil)
var _ entities.Record = (*entities.Department)(nil)
var _ entities.Record = (*entities.Hall)(nil)
var _ entities.Record = (*entities.Book)(nil)
