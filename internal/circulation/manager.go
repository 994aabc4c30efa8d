// Package circulation runs the book request and lending workflow.
//
// A request records a reader's intent and reserves nothing. Fulfilling it
// reserves one copy from the hall's collection, creates the lending and marks
// the request fulfilled in a single transaction. Returning the lending puts
// the copy back; marking it lost leaves the counts untouched.
//
//	pending --fulfill--> fulfilled        lending: pending --return--> returned
//	pending --cancel---> cancelled                 pending --lost----> lost
package circulation

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/database/catalog"
	circdb "github.com/hallshelf/hallshelf/internal/database/circulation"
	"github.com/hallshelf/hallshelf/internal/database/inventory"
	"github.com/hallshelf/hallshelf/internal/database/users"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// AuditSink receives a record of every committed change.
type AuditSink interface {
	LogCirculation(userID uint, action, entityType string, entityID uint, description string, metadata map[string]any)
	LogInventory(userID uint, action string, collectionID uint, description string, metadata map[string]any)
}

type noopAudit struct{}

func (noopAudit) LogCirculation(uint, string, string, uint, string, map[string]any) {}
func (noopAudit) LogInventory(uint, string, uint, string, map[string]any)           {}

// Actor identifies who performs an operation. An empty Role means the caller
// was not authenticated and ownership checks are skipped.
type Actor struct {
	UserID uint
	Role   entities.UserRole
}

// Manager coordinates inventory, requests and lendings.
type Manager struct {
	db          *gorm.DB
	inventory   *inventory.Repository
	circulation *circdb.Repository
	catalog     *catalog.Repository
	users       *users.Repository
	audit       AuditSink
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithAudit sets the sink that records committed changes.
func WithAudit(sink AuditSink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.audit = sink
		}
	}
}

// WithClock replaces time.Now for issue and return dates.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager over db.
func NewManager(db *gorm.DB, opts ...Option) *Manager {
	m := &Manager{
		db:          db,
		inventory:   inventory.NewRepository(db),
		circulation: circdb.NewRepository(db),
		catalog:     catalog.NewRepository(db),
		users:       users.NewRepository(db),
		audit:       noopAudit{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRequestInput is the payload of a new request.
type CreateRequestInput struct {
	ReaderID uint
	BookID   uint
	HallID   uint
}

// CreateRequest records a reader's request for a book at a hall. The hall
// must stock the book. Inventory is not touched.
func (m *Manager) CreateRequest(ctx context.Context, in CreateRequestInput) (*entities.Request, error) {
	if in.ReaderID == 0 {
		return nil, apperr.Validation("reader_id", "is required")
	}
	if in.BookID == 0 {
		return nil, apperr.Validation("book_id", "is required")
	}
	if in.HallID == 0 {
		return nil, apperr.Validation("hall_id", "is required")
	}
	if _, err := m.users.GetUserByID(ctx, in.ReaderID); err != nil {
		return nil, err
	}
	if err := m.requireBookAndHall(ctx, in.BookID, in.HallID); err != nil {
		return nil, err
	}

	req := &entities.Request{
		ReaderID:    in.ReaderID,
		BookID:      in.BookID,
		HallID:      in.HallID,
		RequestDate: m.now(),
		Status:      entities.RequestStatusPending,
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Locking the collection serializes duplicate checks for the pair.
		if _, err := m.inventory.Lock(ctx, tx, in.BookID, in.HallID); err != nil {
			return err
		}
		dup, err := m.circulation.HasPendingRequest(ctx, tx, in.ReaderID, in.BookID, in.HallID)
		if err != nil {
			return err
		}
		if dup {
			return apperr.Conflict("reader %d already has a pending request for book %d in hall %d",
				in.ReaderID, in.BookID, in.HallID)
		}
		return m.circulation.CreateRequest(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}

	m.audit.LogCirculation(in.ReaderID, "request_create", "request", req.ID,
		fmt.Sprintf("Reader %d requested book %d at hall %d", in.ReaderID, in.BookID, in.HallID), nil)
	return req, nil
}

// CancelRequest moves a pending request to cancelled. Readers may cancel
// only their own requests.
func (m *Manager) CancelRequest(ctx context.Context, requestID uint, actor Actor) (*entities.Request, error) {
	req, err := m.circulation.GetRequest(ctx, nil, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == entities.UserRoleReader && req.ReaderID != actor.UserID {
		return nil, apperr.Forbidden("request %d belongs to another reader", requestID)
	}
	if req.Status != entities.RequestStatusPending {
		return nil, apperr.Conflict("request %d is %s", requestID, req.Status)
	}

	if err := m.circulation.CancelRequest(ctx, nil, requestID); err != nil {
		return nil, err
	}
	req.Status = entities.RequestStatusCancelled

	m.audit.LogCirculation(actorID(actor, req.ReaderID), "request_cancel", "request", req.ID,
		fmt.Sprintf("Cancelled request %d", req.ID), nil)
	return req, nil
}

// Fulfill hands a copy to the reader of a pending request. It reserves one
// available copy, creates the lending and links it to the request, all or
// nothing.
func (m *Manager) Fulfill(ctx context.Context, requestID, volunteerID uint) (*entities.Lending, error) {
	if volunteerID == 0 {
		return nil, apperr.Validation("volunteer_id", "is required")
	}
	if _, err := m.users.GetUserByID(ctx, volunteerID); err != nil {
		return nil, err
	}

	var (
		lending    *entities.Lending
		collection *entities.BookCollection
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := m.circulation.LockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.Status != entities.RequestStatusPending {
			return apperr.Conflict("request %d is %s", requestID, req.Status)
		}

		collection, err = m.inventory.ReserveCopy(ctx, tx, req.BookID, req.HallID)
		if err != nil {
			return err
		}

		lending = &entities.Lending{
			VolunteerID: volunteerID,
			ReqID:       req.ID,
			IssueDate:   m.now(),
			Status:      entities.LendingStatusPending,
		}
		if err := m.circulation.CreateLending(ctx, tx, lending); err != nil {
			return err
		}
		if err := m.circulation.MarkFulfilled(ctx, tx, req.ID, lending.ID); err != nil {
			return err
		}
		req.Status = entities.RequestStatusFulfilled
		req.LendingID = &lending.ID
		lending.Request = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.audit.LogCirculation(volunteerID, "request_fulfill", "request", requestID,
		fmt.Sprintf("Fulfilled request %d with lending %d", requestID, lending.ID),
		map[string]any{"lending_id": lending.ID, "available_copies": collection.AvailableCopies})
	return lending, nil
}

// ReturnBook closes a pending lending as returned and puts the copy back
// into the hall's available stock.
func (m *Manager) ReturnBook(ctx context.Context, lendingID uint, actor Actor) (*entities.Lending, error) {
	var collection *entities.BookCollection
	lending, err := m.resolve(ctx, lendingID, entities.LendingStatusReturned, func(tx *gorm.DB, l *entities.Lending) error {
		var err error
		collection, err = m.inventory.ReleaseCopy(ctx, tx, l.Request.BookID, l.Request.HallID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.audit.LogCirculation(actorID(actor, lending.VolunteerID), "lending_return", "lending", lending.ID,
		fmt.Sprintf("Lending %d returned", lending.ID),
		map[string]any{"available_copies": collection.AvailableCopies})
	return lending, nil
}

// MarkLost closes a pending lending as lost. The copy stays out of the
// available stock and total_copies is left as is; the reconciliation report
// lists the difference until an administrator corrects the counts.
func (m *Manager) MarkLost(ctx context.Context, lendingID uint, actor Actor) (*entities.Lending, error) {
	lending, err := m.resolve(ctx, lendingID, entities.LendingStatusLost, nil)
	if err != nil {
		return nil, err
	}

	m.audit.LogCirculation(actorID(actor, lending.VolunteerID), "lending_lost", "lending", lending.ID,
		fmt.Sprintf("Lending %d marked lost", lending.ID), nil)
	return lending, nil
}

func (m *Manager) resolve(ctx context.Context, lendingID uint, status entities.LendingStatus, adjust func(tx *gorm.DB, l *entities.Lending) error) (*entities.Lending, error) {
	var lending *entities.Lending
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		lending, err = m.circulation.LockLending(ctx, tx, lendingID)
		if err != nil {
			return err
		}
		if lending.Status != entities.LendingStatusPending {
			return apperr.Conflict("lending %d is already %s", lendingID, lending.Status)
		}

		var returnDate *time.Time
		if status == entities.LendingStatusReturned {
			now := m.now()
			returnDate = &now
		}
		if err := m.circulation.ResolveLending(ctx, tx, lendingID, status, returnDate); err != nil {
			return err
		}
		lending.Status = status
		lending.ReturnDate = returnDate

		if adjust != nil {
			return adjust(tx, lending)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lending, nil
}

// GetRequest retrieves a request. Readers see only their own requests.
func (m *Manager) GetRequest(ctx context.Context, id uint, actor Actor) (*entities.Request, error) {
	req, err := m.circulation.GetRequest(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == entities.UserRoleReader && req.ReaderID != actor.UserID {
		return nil, apperr.NotFound("request", id)
	}
	return req, nil
}

// ListRequests returns requests matching the filter. Readers see only their
// own requests.
func (m *Manager) ListRequests(ctx context.Context, f circdb.RequestFilter, actor Actor) ([]entities.Request, int64, error) {
	if actor.Role == entities.UserRoleReader {
		f.ReaderID = actor.UserID
	}
	return m.circulation.ListRequests(ctx, f)
}

// GetLending retrieves a lending with its request. Readers see only their
// own lendings.
func (m *Manager) GetLending(ctx context.Context, id uint, actor Actor) (*entities.Lending, error) {
	lending, err := m.circulation.GetLending(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == entities.UserRoleReader && (lending.Request == nil || lending.Request.ReaderID != actor.UserID) {
		return nil, apperr.NotFound("lending", id)
	}
	return lending, nil
}

// ListLendings returns lendings matching the filter. Readers see only their
// own lendings.
func (m *Manager) ListLendings(ctx context.Context, f circdb.LendingFilter, actor Actor) ([]entities.Lending, int64, error) {
	if actor.Role == entities.UserRoleReader {
		f.ReaderID = actor.UserID
	}
	return m.circulation.ListLendings(ctx, f)
}

func (m *Manager) requireBookAndHall(ctx context.Context, bookID, hallID uint) error {
	ok, err := m.catalog.ExistsBook(ctx, bookID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("book", bookID)
	}
	ok, err = m.catalog.ExistsHall(ctx, hallID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("hall", hallID)
	}
	return nil
}

func actorID(actor Actor, fallback uint) uint {
	if actor.UserID != 0 {
		return actor.UserID
	}
	return fallback
}
