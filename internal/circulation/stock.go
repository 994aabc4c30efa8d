package circulation

import (
	"context"
	"fmt"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/database/inventory"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// UpsertStockInput adds copies of a book to a hall. Both counts are
// increments and must not be negative.
type UpsertStockInput struct {
	BookID          uint
	HallID          uint
	TotalCopies     int
	AvailableCopies int
	ActorID         uint
}

// UpsertStock adds stock to the collection of a book at a hall, creating the
// collection on first addition.
func (m *Manager) UpsertStock(ctx context.Context, in UpsertStockInput) (*entities.BookCollection, error) {
	if in.BookID == 0 {
		return nil, apperr.Validation("book_id", "is required")
	}
	if in.HallID == 0 {
		return nil, apperr.Validation("hall_id", "is required")
	}
	if in.TotalCopies < 0 {
		return nil, apperr.Validation("total_copies", "must not be negative")
	}
	if in.AvailableCopies < 0 {
		return nil, apperr.Validation("available_copies", "must not be negative")
	}
	if err := m.requireBookAndHall(ctx, in.BookID, in.HallID); err != nil {
		return nil, err
	}

	collection, err := m.inventory.UpsertStock(ctx, nil, in.BookID, in.HallID, in.TotalCopies, in.AvailableCopies)
	if err != nil {
		return nil, err
	}

	m.audit.LogInventory(in.ActorID, "stock_upsert", collection.ID,
		fmt.Sprintf("Added %d copies (%d available) of book %d to hall %d",
			in.TotalCopies, in.AvailableCopies, in.BookID, in.HallID),
		map[string]any{
			"total_copies":     collection.TotalCopies,
			"available_copies": collection.AvailableCopies,
		})
	return collection, nil
}

// SetStock overwrites the counts of a collection. Administrators use it to
// write off lost copies.
func (m *Manager) SetStock(ctx context.Context, collectionID uint, total, available int, actorID uint) (*entities.BookCollection, error) {
	collection, err := m.inventory.SetCounts(ctx, collectionID, total, available)
	if err != nil {
		return nil, err
	}

	m.audit.LogInventory(actorID, "stock_correct", collection.ID,
		fmt.Sprintf("Set collection %d to %d copies (%d available)", collection.ID, total, available),
		map[string]any{"total_copies": total, "available_copies": available})
	return collection, nil
}

// DeleteStock removes a collection nobody is waiting for or borrowing from.
func (m *Manager) DeleteStock(ctx context.Context, collectionID uint, actorID uint) error {
	if err := m.inventory.Delete(ctx, collectionID); err != nil {
		return err
	}
	m.audit.LogInventory(actorID, "stock_delete", collectionID,
		fmt.Sprintf("Deleted collection %d", collectionID), nil)
	return nil
}

// GetCollection retrieves a collection with its book and hall.
func (m *Manager) GetCollection(ctx context.Context, id uint) (*entities.BookCollection, error) {
	return m.inventory.GetByID(ctx, id)
}

// ListCollections returns collections matching the filter.
func (m *Manager) ListCollections(ctx context.Context, f inventory.Filter) ([]entities.BookCollection, int64, error) {
	return m.inventory.List(ctx, f)
}

// Availability summarizes the copies of one book across halls.
type Availability struct {
	BookID          uint                      `json:"book_id"`
	TotalCopies     int                       `json:"total_copies"`
	AvailableCopies int                       `json:"available_copies"`
	Halls           []entities.BookCollection `json:"halls"`
}

// BookAvailability reports where a book can be borrowed.
func (m *Manager) BookAvailability(ctx context.Context, bookID uint) (*Availability, error) {
	ok, err := m.catalog.ExistsBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("book", bookID)
	}

	rows, _, err := m.inventory.List(ctx, inventory.Filter{BookID: bookID, Limit: 200})
	if err != nil {
		return nil, err
	}

	out := &Availability{BookID: bookID, Halls: rows}
	if out.Halls == nil {
		out.Halls = []entities.BookCollection{}
	}
	for _, row := range rows {
		out.TotalCopies += row.TotalCopies
		out.AvailableCopies += row.AvailableCopies
	}
	return out, nil
}

// Reconcile compares collection counts with outstanding and lost lendings.
// With all unset, only collections whose counts do not add up are returned.
func (m *Manager) Reconcile(ctx context.Context, all bool) ([]inventory.ReconcileRow, error) {
	return m.inventory.Reconcile(ctx, all)
}
