// Package inventory provides the per-hall book inventory store.
//
// Each BookCollection row holds the total and available copy counts of one
// book at one hall. Every mutation keeps 0 <= available_copies <= total_copies.
//
// Methods that mutate counts take an optional transaction so the circulation
// manager can reserve or release a copy in the same unit of work that changes
// a request or lending:
//
//	err := db.Transaction(func(tx *gorm.DB) error {
//		if _, err := repo.ReserveCopy(ctx, tx, bookID, hallID); err != nil {
//			return err
//		}
//		return tx.Create(lending).Error
//	})
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/database"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// Repository handles all book collection database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new inventory repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	BookID uint
	HallID uint
	Limit  int
	Offset int
}

// UpsertStock adds deltaTotal and deltaAvailable to the collection of bookID
// at hallID, creating the row on first stock addition. Available copies are
// clamped to the total less the copies on loan; a negative result is rejected.
func (r *Repository) UpsertStock(ctx context.Context, tx *gorm.DB, bookID, hallID uint, deltaTotal, deltaAvailable int) (*entities.BookCollection, error) {
	var result *entities.BookCollection
	err := database.WithTx(ctx, r.db, tx, func(tx *gorm.DB) error {
		var err error
		result, err = r.upsert(tx, bookID, hallID, deltaTotal, deltaAvailable, false)
		return err
	})
	return result, err
}

func (r *Repository) upsert(tx *gorm.DB, bookID, hallID uint, deltaTotal, deltaAvailable int, retried bool) (*entities.BookCollection, error) {
	existing, err := r.lockPair(tx, bookID, hallID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	total, available := deltaTotal, deltaAvailable
	onLoan := 0
	if existing != nil {
		total += existing.TotalCopies
		available += existing.AvailableCopies
		n, err := r.countOnLoan(tx, bookID, hallID)
		if err != nil {
			return nil, err
		}
		onLoan = int(n)
	}
	if total < 0 {
		return nil, apperr.Validation("total_copies", "would become negative")
	}
	if total < onLoan {
		return nil, apperr.Validation("total_copies", fmt.Sprintf("must cover the %d copies on loan", onLoan))
	}
	// Copies on loan come back through ReleaseCopy, so they cannot be available too
	if available > total-onLoan {
		available = total - onLoan
	}
	if available < 0 {
		return nil, apperr.Validation("available_copies", "would become negative")
	}

	if existing == nil {
		row := &entities.BookCollection{
			BookID:          bookID,
			HallID:          hallID,
			TotalCopies:     total,
			AvailableCopies: available,
		}
		res := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return nil, fmt.Errorf("create book collection: %w", res.Error)
		}
		if res.RowsAffected == 0 && !retried {
			// Another writer created the pair first; apply the delta on top of it.
			return r.upsert(tx, bookID, hallID, deltaTotal, deltaAvailable, true)
		}
		return row, nil
	}

	err = tx.Model(existing).Updates(map[string]any{
		"total_copies":     total,
		"available_copies": available,
		"updated_at":       time.Now(),
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update book collection: %w", err)
	}
	existing.TotalCopies = total
	existing.AvailableCopies = available
	return existing, nil
}

// ReserveCopy takes one available copy out of circulation. It fails with a
// conflict when no copy is available.
func (r *Repository) ReserveCopy(ctx context.Context, tx *gorm.DB, bookID, hallID uint) (*entities.BookCollection, error) {
	return r.shift(ctx, tx, bookID, hallID, -1)
}

// ReleaseCopy puts one copy back into circulation. It fails with a conflict
// when every copy is already available.
func (r *Repository) ReleaseCopy(ctx context.Context, tx *gorm.DB, bookID, hallID uint) (*entities.BookCollection, error) {
	return r.shift(ctx, tx, bookID, hallID, +1)
}

func (r *Repository) shift(ctx context.Context, tx *gorm.DB, bookID, hallID uint, delta int) (*entities.BookCollection, error) {
	var row *entities.BookCollection
	err := database.WithTx(ctx, r.db, tx, func(tx *gorm.DB) error {
		var err error
		row, err = r.lockPair(tx, bookID, hallID)
		if err != nil {
			return err
		}

		// The guard re-checks the bound inside the UPDATE itself, so two
		// writers that both read available_copies = 1 cannot both succeed.
		guard := "available_copies > 0"
		if delta > 0 {
			guard = "available_copies < total_copies"
		}
		res := tx.Model(&entities.BookCollection{}).
			Where("id = ?", row.ID).
			Where(guard).
			Updates(map[string]any{
				"available_copies": gorm.Expr("available_copies + ?", delta),
				"updated_at":       time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("adjust available copies: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			if delta < 0 {
				return apperr.Conflict("no copy of book %d is available in hall %d", bookID, hallID)
			}
			return apperr.Conflict("all copies of book %d in hall %d are already available", bookID, hallID)
		}
		row.AvailableCopies += delta
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Get retrieves the collection of a book at a hall.
func (r *Repository) Get(ctx context.Context, bookID, hallID uint) (*entities.BookCollection, error) {
	var row entities.BookCollection
	err := r.db.WithContext(ctx).Where("book_id = ? AND hall_id = ?", bookID, hallID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("no inventory for book %d in hall %d", bookID, hallID)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID retrieves a collection with its book and hall.
func (r *Repository) GetByID(ctx context.Context, id uint) (*entities.BookCollection, error) {
	var row entities.BookCollection
	err := r.db.WithContext(ctx).Preload("Book").Preload("Hall").First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("book collection", id)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// List returns collections matching the filter and the total match count.
func (r *Repository) List(ctx context.Context, f Filter) ([]entities.BookCollection, int64, error) {
	query := r.db.WithContext(ctx).Model(&entities.BookCollection{})
	if f.BookID > 0 {
		query = query.Where("book_id = ?", f.BookID)
	}
	if f.HallID > 0 {
		query = query.Where("hall_id = ?", f.HallID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var rows []entities.BookCollection
	err := query.Preload("Hall").Order("id ASC").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error
	return rows, total, err
}

// SetCounts overwrites the counts of a collection. It is the manual
// correction path, e.g. writing off lost copies.
func (r *Repository) SetCounts(ctx context.Context, id uint, total, available int) (*entities.BookCollection, error) {
	if total < 0 {
		return nil, apperr.Validation("total_copies", "must not be negative")
	}
	if available < 0 {
		return nil, apperr.Validation("available_copies", "must not be negative")
	}
	if available > total {
		return nil, apperr.Validation("available_copies", "must not exceed total_copies")
	}

	var row entities.BookCollection
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&row, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("book collection", id)
			}
			return err
		}

		onLoan, err := r.countOnLoan(tx, row.BookID, row.HallID)
		if err != nil {
			return err
		}
		if int64(available)+onLoan > int64(total) {
			return apperr.Validation("available_copies",
				fmt.Sprintf("plus the %d copies on loan must not exceed total_copies", onLoan))
		}

		row.TotalCopies = total
		row.AvailableCopies = available
		return tx.Model(&row).Updates(map[string]any{
			"total_copies":     total,
			"available_copies": available,
			"updated_at":       time.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Delete removes a collection. It is refused while a pending request or an
// outstanding lending still refers to the book at that hall.
func (r *Repository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row entities.BookCollection
		if err := database.ForUpdate(tx).First(&row, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("book collection", id)
			}
			return err
		}

		var pending int64
		err := tx.Model(&entities.Request{}).
			Where("book_id = ? AND hall_id = ? AND status = ?", row.BookID, row.HallID, entities.RequestStatusPending).
			Count(&pending).Error
		if err != nil {
			return err
		}
		if pending > 0 {
			return apperr.Conflict("book collection %d has %d pending requests", id, pending)
		}

		outstanding, err := r.countOnLoan(tx, row.BookID, row.HallID)
		if err != nil {
			return err
		}
		if outstanding > 0 {
			return apperr.Conflict("book collection %d has %d copies on loan", id, outstanding)
		}

		return tx.Delete(&row).Error
	})
}

// Lock loads the collection of a book at a hall inside tx and holds its row
// lock until tx ends.
func (r *Repository) Lock(ctx context.Context, tx *gorm.DB, bookID, hallID uint) (*entities.BookCollection, error) {
	return r.lockPair(tx.WithContext(ctx), bookID, hallID)
}

// lockPair loads the collection row for a book and hall, locking it for the
// rest of the transaction where the driver supports row locks.
func (r *Repository) lockPair(tx *gorm.DB, bookID, hallID uint) (*entities.BookCollection, error) {
	// A missing pair is expected on first stock addition, so Find rather than First
	var row entities.BookCollection
	res := database.ForUpdate(tx).Where("book_id = ? AND hall_id = ?", bookID, hallID).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("load book collection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFoundf("no inventory for book %d in hall %d", bookID, hallID)
	}
	return &row, nil
}

// countOnLoan returns the number of pending lendings of a book at a hall.
func (r *Repository) countOnLoan(tx *gorm.DB, bookID, hallID uint) (int64, error) {
	var n int64
	err := tx.Model(&entities.Lending{}).
		Joins("JOIN requests ON requests.id = lendings.req_id").
		Where("requests.book_id = ? AND requests.hall_id = ? AND lendings.status = ?",
			bookID, hallID, entities.LendingStatusPending).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count copies on loan: %w", err)
	}
	return n, nil
}

// ReconcileRow compares the counts of one collection with its circulation
// history. Outstanding is the number of pending lendings for the pair and
// Lost the number of lendings marked lost. Discrepancy is
// total - (available + outstanding); it is non-zero when copies were lost
// and never written off, or when counts were edited by hand.
type ReconcileRow struct {
	CollectionID    uint   `json:"collection_id"`
	BookID          uint   `json:"book_id"`
	HallID          uint   `json:"hall_id"`
	BookTitle       string `json:"book_title"`
	HallName        string `json:"hall_name"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
	Outstanding     int    `json:"outstanding"`
	Lost            int    `json:"lost"`
	Discrepancy     int    `json:"discrepancy"`
}

// Reconcile returns one row per collection whose counts do not add up.
// With all set, every collection is returned.
func (r *Repository) Reconcile(ctx context.Context, all bool) ([]ReconcileRow, error) {
	var rows []ReconcileRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT c.id AS collection_id, c.book_id, c.hall_id,
		       COALESCE(b.title, '') AS book_title, COALESCE(h.name, '') AS hall_name,
		       c.total_copies, c.available_copies,
		       COALESCE(SUM(CASE WHEN l.status = ? THEN 1 ELSE 0 END), 0) AS outstanding,
		       COALESCE(SUM(CASE WHEN l.status = ? THEN 1 ELSE 0 END), 0) AS lost
		FROM book_collections c
		LEFT JOIN books b ON b.id = c.book_id
		LEFT JOIN halls h ON h.id = c.hall_id
		LEFT JOIN requests q ON q.book_id = c.book_id AND q.hall_id = c.hall_id
		LEFT JOIN lendings l ON l.req_id = q.id
		GROUP BY c.id, c.book_id, c.hall_id, b.title, h.name, c.total_copies, c.available_copies
		ORDER BY c.id`,
		entities.LendingStatusPending, entities.LendingStatusLost,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("reconcile inventory: %w", err)
	}

	out := rows[:0]
	for _, row := range rows {
		row.Discrepancy = row.TotalCopies - (row.AvailableCopies + row.Outstanding)
		if all || row.Discrepancy != 0 {
			out = append(out, row)
		}
	}
	return out, nil
}
