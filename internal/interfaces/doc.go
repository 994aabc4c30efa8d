// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Audit Sinks
//
//   - circulation.AuditSink: request, lending and stock changes (internal/circulation/manager.go)
//   - http.CatalogAuditor: catalog writes (internal/http/catalog.go)
//   - auth.Auditor: logins and registrations (internal/auth/handlers.go)
//
// All three are implemented by *audit.Service, which writes after the
// business transaction commits.
//
// ## Maintenance
//
//   - tasks.AuditEventCleaner, tasks.InventoryReconciler, tasks.MaintenanceAuditor:
//     dependencies of the background queues (internal/tasks)
//   - scheduler.Enqueuer: where cron jobs put their tasks (internal/scheduler)
//
// # Adding a Catalog Table
//
//  1. Define the model in internal/entities/catalog.go and implement Record:
//
//     func (s *Shelf) GetID() uint   { return s.ID }
//     func (s *Shelf) SetID(id uint) { s.ID = id }
//     func (s *Shelf) Validate() error
//
//  2. Add a store to catalog.Repository, listing the tables that refer to it
//     so Delete can refuse while they do:
//
//     Shelves: NewStore[entities.Shelf](db, "shelf", "name", Dependent{"books", "shelf_id"}),
//
//  3. Mount it in router.go:
//
//     NewCatalogController(cfg.Catalog.Shelves, auditor).RegisterRoutes(api.Group("/shelves"), admin)
//
// # Adding a Maintenance Task
//
//  1. Define the task and its processor in internal/tasks/ and add the type
//     to Types and NewTask in registry.go.
//
//  2. Register the queue in RegisterQueues.
//
//  3. Optionally schedule it from scheduler.DefaultJobs.
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the current list.
package interfaces
