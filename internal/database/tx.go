package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate adds a row-level write lock to the query on drivers that support
// it. SQLite already serializes writers through BEGIN IMMEDIATE.
func ForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// WithTx runs fn inside tx when the caller already holds a transaction,
// otherwise inside a new transaction on db.
func WithTx(ctx context.Context, db, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx.WithContext(ctx))
	}
	return db.WithContext(ctx).Transaction(fn)
}
