// Package circulation persists book requests and lendings.
//
// Status changes are guarded updates that only match rows still pending, so
// a transition that lost a race reports a conflict instead of overwriting a
// terminal state.
package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/database"
	"github.com/hallshelf/hallshelf/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	ReaderID uint
	BookID   uint
	HallID   uint
	Status   entities.RequestStatus
	Limit    int
	Offset   int
}

// LendingFilter narrows ListLendings. HallID and ReaderID are matched through
// the originating request.
type LendingFilter struct {
	VolunteerID uint
	ReaderID    uint
	HallID      uint
	Status      entities.LendingStatus
	Limit       int
	Offset      int
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// CreateRequest stores a new request.
func (r *Repository) CreateRequest(ctx context.Context, tx *gorm.DB, req *entities.Request) error {
	if err := r.conn(ctx, tx).Create(req).Error; err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetRequest retrieves a request by id.
func (r *Repository) GetRequest(ctx context.Context, tx *gorm.DB, id uint) (*entities.Request, error) {
	var req entities.Request
	err := r.conn(ctx, tx).First(&req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("request", id)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// LockRequest loads a request and holds its row lock until the transaction
// ends.
func (r *Repository) LockRequest(ctx context.Context, tx *gorm.DB, id uint) (*entities.Request, error) {
	var req entities.Request
	err := database.ForUpdate(tx.WithContext(ctx)).First(&req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("request", id)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// HasPendingRequest reports whether the reader already waits for the book at
// the hall.
func (r *Repository) HasPendingRequest(ctx context.Context, tx *gorm.DB, readerID, bookID, hallID uint) (bool, error) {
	var count int64
	err := r.conn(ctx, tx).Model(&entities.Request{}).
		Where("reader_id = ? AND book_id = ? AND hall_id = ? AND status = ?",
			readerID, bookID, hallID, entities.RequestStatusPending).
		Count(&count).Error
	return count > 0, err
}

// ListRequests returns requests matching the filter, newest first, and the
// total match count.
func (r *Repository) ListRequests(ctx context.Context, f RequestFilter) ([]entities.Request, int64, error) {
	query := r.db.WithContext(ctx).Model(&entities.Request{})
	if f.ReaderID > 0 {
		query = query.Where("reader_id = ?", f.ReaderID)
	}
	if f.BookID > 0 {
		query = query.Where("book_id = ?", f.BookID)
	}
	if f.HallID > 0 {
		query = query.Where("hall_id = ?", f.HallID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []entities.Request
	err := query.Order("id DESC").Limit(limit(f.Limit)).Offset(max(f.Offset, 0)).Find(&requests).Error
	return requests, total, err
}

// CancelRequest moves a pending request to cancelled.
func (r *Repository) CancelRequest(ctx context.Context, tx *gorm.DB, id uint) error {
	res := r.conn(ctx, tx).Model(&entities.Request{}).
		Where("id = ? AND status = ?", id, entities.RequestStatusPending).
		Updates(map[string]any{
			"status":     entities.RequestStatusCancelled,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("cancel request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("request %d is not pending", id)
	}
	return nil
}

// MarkFulfilled moves a pending request to fulfilled and links its lending.
func (r *Repository) MarkFulfilled(ctx context.Context, tx *gorm.DB, id, lendingID uint) error {
	res := r.conn(ctx, tx).Model(&entities.Request{}).
		Where("id = ? AND status = ?", id, entities.RequestStatusPending).
		Updates(map[string]any{
			"status":     entities.RequestStatusFulfilled,
			"lending_id": lendingID,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("fulfill request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("request %d is not pending", id)
	}
	return nil
}

// CreateLending stores a new lending.
func (r *Repository) CreateLending(ctx context.Context, tx *gorm.DB, lending *entities.Lending) error {
	if err := r.conn(ctx, tx).Omit("Request").Create(lending).Error; err != nil {
		return fmt.Errorf("create lending: %w", err)
	}
	return nil
}

// GetLending retrieves a lending with its request.
func (r *Repository) GetLending(ctx context.Context, tx *gorm.DB, id uint) (*entities.Lending, error) {
	var lending entities.Lending
	err := r.conn(ctx, tx).Preload("Request").First(&lending, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("lending", id)
	}
	if err != nil {
		return nil, err
	}
	return &lending, nil
}

// LockLending loads a lending with its request and holds the lending row
// lock until the transaction ends.
func (r *Repository) LockLending(ctx context.Context, tx *gorm.DB, id uint) (*entities.Lending, error) {
	var lending entities.Lending
	err := database.ForUpdate(tx.WithContext(ctx)).First(&lending, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("lending", id)
	}
	if err != nil {
		return nil, err
	}

	var req entities.Request
	if err := tx.WithContext(ctx).First(&req, lending.ReqID).Error; err != nil {
		return nil, fmt.Errorf("load request of lending %d: %w", id, err)
	}
	lending.Request = &req
	return &lending, nil
}

// ListLendings returns lendings matching the filter, newest first, and the
// total match count.
func (r *Repository) ListLendings(ctx context.Context, f LendingFilter) ([]entities.Lending, int64, error) {
	query := r.db.WithContext(ctx).Model(&entities.Lending{})
	if f.ReaderID > 0 || f.HallID > 0 {
		query = query.Joins("JOIN requests ON requests.id = lendings.req_id")
		if f.ReaderID > 0 {
			query = query.Where("requests.reader_id = ?", f.ReaderID)
		}
		if f.HallID > 0 {
			query = query.Where("requests.hall_id = ?", f.HallID)
		}
	}
	if f.VolunteerID > 0 {
		query = query.Where("lendings.volunteer_id = ?", f.VolunteerID)
	}
	if f.Status != "" {
		query = query.Where("lendings.status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var lendings []entities.Lending
	err := query.Preload("Request").
		Order("lendings.id DESC").
		Limit(limit(f.Limit)).
		Offset(max(f.Offset, 0)).
		Find(&lendings).Error
	return lendings, total, err
}

// ResolveLending moves a pending lending to a terminal status. returnDate is
// stored only when set.
func (r *Repository) ResolveLending(ctx context.Context, tx *gorm.DB, id uint, status entities.LendingStatus, returnDate *time.Time) error {
	if !status.Terminal() {
		return apperr.Validation("status", fmt.Sprintf("%q is not a terminal lending status", status))
	}

	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now(),
	}
	if returnDate != nil {
		updates["return_date"] = *returnDate
	}

	res := r.conn(ctx, tx).Model(&entities.Lending{}).
		Where("id = ? AND status = ?", id, entities.LendingStatusPending).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("resolve lending: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("lending %d is not pending", id)
	}
	return nil
}

func limit(n int) int {
	switch {
	case n <= 0:
		return 50
	case n > 200:
		return 200
	}
	return n
}
