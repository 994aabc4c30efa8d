// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup (sqlite or postgres), migrations
//	├── tx.go            # Row locks and caller-supplied transactions
//	├── catalog/         # Authors, publishers, categories, departments, halls, books
//	├── inventory/       # Per-hall stock counts and reconciliation
//	├── circulation/     # Requests and lendings
//	├── users/           # User management
//	└── audit/           # Audit event log
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.Open(cfg.Database)
//
//	stock := inventory.NewRepository(db.DB)
//	collection, err := stock.Get(ctx, bookID, hallID)
//
// # Transactions
//
// Inventory methods that take a tx argument join the caller's transaction when
// it is non-nil, so a fulfilment can reserve a copy and create its lending in
// one commit. Counts change only through guarded single-statement updates.
//
// # Adding a New Domain
//
//  1. Create a new sub-package under internal/database/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Register its models in Open's AutoMigrate call
package database
