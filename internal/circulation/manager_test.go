package circulation

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/database"
	circdb "github.com/hallshelf/hallshelf/internal/database/circulation"
	"github.com/hallshelf/hallshelf/internal/entities"
)

var fixedNow = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) LogCirculation(_ uint, action, _ string, _ uint, _ string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

func (r *recordingAudit) LogInventory(_ uint, action string, _ uint, _ string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

func (r *recordingAudit) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

type fixture struct {
	mgr       *Manager
	db        *gorm.DB
	audit     *recordingAudit
	reader    *entities.User
	other     *entities.User
	volunteer *entities.User
	book      *entities.Book
	hall      *entities.Hall
}

func setupManager(t *testing.T) *fixture {
	t.Helper()
	dbPath := "./test_manager_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"

	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	})

	f := &fixture{db: db.DB, audit: &recordingAudit{}}
	f.mgr = NewManager(db.DB, WithAudit(f.audit), WithClock(func() time.Time { return fixedNow }))

	f.reader = &entities.User{Username: "reader", Email: "reader@example.com", Role: entities.UserRoleReader}
	f.other = &entities.User{Username: "other", Email: "other@example.com", Role: entities.UserRoleReader}
	f.volunteer = &entities.User{Username: "volunteer", Email: "volunteer@example.com", Role: entities.UserRoleVolunteer}
	for _, u := range []*entities.User{f.reader, f.other, f.volunteer} {
		require.NoError(t, f.db.Create(u).Error)
	}

	author := &entities.Author{Name: "Italo Calvino"}
	require.NoError(t, f.db.Create(author).Error)
	f.book = &entities.Book{Title: "Invisible Cities", AuthorID: author.ID}
	require.NoError(t, f.db.Create(f.book).Error)
	f.hall = &entities.Hall{Name: "North Hall"}
	require.NoError(t, f.db.Create(f.hall).Error)
	return f
}

func (f *fixture) stock(t *testing.T, total, available int) *entities.BookCollection {
	t.Helper()
	c, err := f.mgr.UpsertStock(context.Background(), UpsertStockInput{
		BookID: f.book.ID, HallID: f.hall.ID, TotalCopies: total, AvailableCopies: available,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) request(t *testing.T, reader *entities.User) *entities.Request {
	t.Helper()
	req, err := f.mgr.CreateRequest(context.Background(), CreateRequestInput{
		ReaderID: reader.ID, BookID: f.book.ID, HallID: f.hall.ID,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) counts(t *testing.T) (int, int) {
	t.Helper()
	var c entities.BookCollection
	require.NoError(t, f.db.Where("book_id = ? AND hall_id = ?", f.book.ID, f.hall.ID).First(&c).Error)
	assert.GreaterOrEqual(t, c.AvailableCopies, 0)
	assert.LessOrEqual(t, c.AvailableCopies, c.TotalCopies)
	return c.TotalCopies, c.AvailableCopies
}

func TestManager_CreateRequest(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	f.stock(t, 2, 2)

	t.Run("records intent without reserving", func(t *testing.T) {
		req := f.request(t, f.reader)
		assert.Equal(t, entities.RequestStatusPending, req.Status)
		assert.Equal(t, fixedNow, req.RequestDate.UTC())
		assert.Nil(t, req.LendingID)

		_, available := f.counts(t)
		assert.Equal(t, 2, available)
	})

	t.Run("rejects duplicate pending request", func(t *testing.T) {
		_, err := f.mgr.CreateRequest(ctx, CreateRequestInput{ReaderID: f.reader.ID, BookID: f.book.ID, HallID: f.hall.ID})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("validates input", func(t *testing.T) {
		_, err := f.mgr.CreateRequest(ctx, CreateRequestInput{BookID: f.book.ID, HallID: f.hall.ID})
		assert.Equal(t, "reader_id", apperr.FieldOf(err))

		_, err = f.mgr.CreateRequest(ctx, CreateRequestInput{ReaderID: f.reader.ID, HallID: f.hall.ID})
		assert.Equal(t, "book_id", apperr.FieldOf(err))
	})

	t.Run("unknown references", func(t *testing.T) {
		_, err := f.mgr.CreateRequest(ctx, CreateRequestInput{ReaderID: 999, BookID: f.book.ID, HallID: f.hall.ID})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = f.mgr.CreateRequest(ctx, CreateRequestInput{ReaderID: f.other.ID, BookID: 999, HallID: f.hall.ID})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("hall must stock the book", func(t *testing.T) {
		south := &entities.Hall{Name: "South Hall"}
		require.NoError(t, f.db.Create(south).Error)

		_, err := f.mgr.CreateRequest(ctx, CreateRequestInput{ReaderID: f.other.ID, BookID: f.book.ID, HallID: south.ID})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestManager_CancelRequest(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	f.stock(t, 1, 1)

	t.Run("other readers cannot cancel", func(t *testing.T) {
		req := f.request(t, f.reader)
		_, err := f.mgr.CancelRequest(ctx, req.ID, Actor{UserID: f.other.ID, Role: entities.UserRoleReader})
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		cancelled, err := f.mgr.CancelRequest(ctx, req.ID, Actor{UserID: f.reader.ID, Role: entities.UserRoleReader})
		require.NoError(t, err)
		assert.Equal(t, entities.RequestStatusCancelled, cancelled.Status)

		_, available := f.counts(t)
		assert.Equal(t, 1, available)
	})

	t.Run("cancelled request cannot be cancelled again", func(t *testing.T) {
		req := f.request(t, f.reader)
		_, err := f.mgr.CancelRequest(ctx, req.ID, Actor{})
		require.NoError(t, err)

		_, err = f.mgr.CancelRequest(ctx, req.ID, Actor{})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("fulfilled request cannot be cancelled", func(t *testing.T) {
		req := f.request(t, f.reader)
		_, err := f.mgr.Fulfill(ctx, req.ID, f.volunteer.ID)
		require.NoError(t, err)

		_, err = f.mgr.CancelRequest(ctx, req.ID, Actor{UserID: f.volunteer.ID, Role: entities.UserRoleVolunteer})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := f.mgr.CancelRequest(ctx, 999, Actor{})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestManager_Fulfill(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	f.stock(t, 2, 1)

	req := f.request(t, f.reader)
	lending, err := f.mgr.Fulfill(ctx, req.ID, f.volunteer.ID)
	require.NoError(t, err)

	assert.NotZero(t, lending.ID)
	assert.Equal(t, entities.LendingStatusPending, lending.Status)
	assert.Equal(t, f.volunteer.ID, lending.VolunteerID)
	assert.Equal(t, fixedNow, lending.IssueDate.UTC())

	stored, err := f.mgr.GetRequest(ctx, req.ID, Actor{})
	require.NoError(t, err)
	assert.Equal(t, entities.RequestStatusFulfilled, stored.Status)
	require.NotNil(t, stored.LendingID)
	assert.Equal(t, lending.ID, *stored.LendingID)

	total, available := f.counts(t)
	assert.Equal(t, 2, total)
	assert.Equal(t, 0, available)

	t.Run("request must be pending", func(t *testing.T) {
		_, err := f.mgr.Fulfill(ctx, req.ID, f.volunteer.ID)
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("volunteer is required", func(t *testing.T) {
		_, err := f.mgr.Fulfill(ctx, req.ID, 0)
		assert.Equal(t, "volunteer_id", apperr.FieldOf(err))
	})

	assert.Contains(t, f.audit.Actions(), "request_fulfill")
}

func TestManager_Fulfill_NoCopyLeavesStateUnchanged(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	f.stock(t, 1, 0)

	req := f.request(t, f.reader)
	_, err := f.mgr.Fulfill(ctx, req.ID, f.volunteer.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	stored, err := f.mgr.GetRequest(ctx, req.ID, Actor{})
	require.NoError(t, err)
	assert.Equal(t, entities.RequestStatusPending, stored.Status)
	assert.Nil(t, stored.LendingID)

	var lendings int64
	f.db.Model(&entities.Lending{}).Count(&lendings)
	assert.Zero(t, lendings)

	total, available := f.counts(t)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, available)
	assert.NotContains(t, f.audit.Actions(), "request_fulfill")
}

func TestManager_FulfillReturnRestoresAvailability(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	f.stock(t, 3, 2)

	_, before := f.counts(t)
	req := f.request(t, f.reader)
	lending, err := f.mgr.Fulfill(ctx, req.ID, f.volunteer.ID)
	require.NoError(t, err)

	returned, err := f.mgr.ReturnBook(ctx, lending.ID, Actor{UserID: f.volunteer.ID, Role: entities.UserRoleVolunteer})
	require.NoError(t, err)
	assert.Equal(t, entities.LendingStatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, fixedNow, returned.ReturnDate.UTC())

	_, after := f.counts(t)
	assert.Equal(t, before, after)

	_, err = f.mgr.ReturnBook(ctx, lending.ID, Actor{})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.mgr.MarkLost(ctx, lending.ID, Actor{})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestManager_FulfillMarkLostKeepsAvailability(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	f.stock(t, 2, 2)

	req := f.request(t, f.reader)
	lending, err := f.mgr.Fulfill(ctx, req.ID, f.volunteer.ID)
	require.NoError(t, err)
	_, afterFulfill := f.counts(t)

	lost, err := f.mgr.MarkLost(ctx, lending.ID, Actor{})
	require.NoError(t, err)
	assert.Equal(t, entities.LendingStatusLost, lost.Status)
	assert.Nil(t, lost.ReturnDate)

	total, available := f.counts(t)
	assert.Equal(t, afterFulfill, available)
	assert.Equal(t, 2, total)

	rows, err := f.mgr.Reconcile(ctx, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Lost)
	assert.Equal(t, 1, rows[0].Discrepancy)

	_, err = f.mgr.ReturnBook(ctx, lending.ID, Actor{})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestManager_ReturnRollsBackWhenStockWasReduced(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	collection := f.stock(t, 1, 1)

	req := f.request(t, f.reader)
	lending, err := f.mgr.Fulfill(ctx, req.ID, f.volunteer.ID)
	require.NoError(t, err)

	// Counts edited behind the manager's back while the copy was on loan.
	require.NoError(t, f.db.Model(collection).Updates(map[string]any{"total_copies": 0, "available_copies": 0}).Error)

	_, err = f.mgr.ReturnBook(ctx, lending.ID, Actor{})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	stored, err := f.mgr.GetLending(ctx, lending.ID, Actor{})
	require.NoError(t, err)
	assert.Equal(t, entities.LendingStatusPending, stored.Status)
	assert.Nil(t, stored.ReturnDate)
}

func TestManager_SetStockKeepsRoomForCopiesOnLoan(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	collection := f.stock(t, 2, 2)

	req := f.request(t, f.reader)
	lending, err := f.mgr.Fulfill(ctx, req.ID, f.volunteer.ID)
	require.NoError(t, err)

	_, err = f.mgr.SetStock(ctx, collection.ID, 2, 2, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "available_copies", apperr.FieldOf(err))

	_, err = f.mgr.SetStock(ctx, collection.ID, 0, 0, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	total, available := f.counts(t)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, available)

	returned, err := f.mgr.ReturnBook(ctx, lending.ID, Actor{})
	require.NoError(t, err)
	assert.Equal(t, entities.LendingStatusReturned, returned.Status)

	total, available = f.counts(t)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, available)
}

func TestManager_ConcurrentFulfillSingleCopy(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	f.stock(t, 1, 1)

	const readers = 6
	requests := make([]*entities.Request, 0, readers)
	for i := 0; i < readers; i++ {
		u := &entities.User{
			Username: "concurrent" + string(rune('a'+i)),
			Email:    "concurrent" + string(rune('a'+i)) + "@example.com",
			Role:     entities.UserRoleReader,
		}
		require.NoError(t, f.db.Create(u).Error)
		requests = append(requests, f.request(t, u))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, req := range requests {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := f.mgr.Fulfill(ctx, id, f.volunteer.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.KindOf(err) == apperr.ErrConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(req.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, readers-1, conflicts)

	total, available := f.counts(t)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, available)

	var lendings int64
	f.db.Model(&entities.Lending{}).Count(&lendings)
	assert.Equal(t, int64(1), lendings)
}

func TestManager_UpsertStock(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	t.Run("rejects negative increments", func(t *testing.T) {
		_, err := f.mgr.UpsertStock(ctx, UpsertStockInput{BookID: f.book.ID, HallID: f.hall.ID, TotalCopies: -1})
		assert.Equal(t, "total_copies", apperr.FieldOf(err))

		_, err = f.mgr.UpsertStock(ctx, UpsertStockInput{BookID: f.book.ID, HallID: f.hall.ID, AvailableCopies: -1})
		assert.Equal(t, "available_copies", apperr.FieldOf(err))
	})

	t.Run("unknown hall", func(t *testing.T) {
		_, err := f.mgr.UpsertStock(ctx, UpsertStockInput{BookID: f.book.ID, HallID: 999, TotalCopies: 1})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("clamps available to total", func(t *testing.T) {
		c, err := f.mgr.UpsertStock(ctx, UpsertStockInput{BookID: f.book.ID, HallID: f.hall.ID, TotalCopies: 2, AvailableCopies: 5})
		require.NoError(t, err)
		assert.Equal(t, 2, c.TotalCopies)
		assert.Equal(t, 2, c.AvailableCopies)
	})

	assert.Contains(t, f.audit.Actions(), "stock_upsert")
}

func TestManager_DeleteStock(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	collection := f.stock(t, 1, 1)

	req := f.request(t, f.reader)
	lending, err := f.mgr.Fulfill(ctx, req.ID, f.volunteer.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.mgr.DeleteStock(ctx, collection.ID, 0), apperr.ErrConflict)

	_, err = f.mgr.ReturnBook(ctx, lending.ID, Actor{})
	require.NoError(t, err)
	require.NoError(t, f.mgr.DeleteStock(ctx, collection.ID, 0))

	_, err = f.mgr.GetCollection(ctx, collection.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestManager_BookAvailability(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	f.stock(t, 3, 2)

	south := &entities.Hall{Name: "South Hall"}
	require.NoError(t, f.db.Create(south).Error)
	_, err := f.mgr.UpsertStock(ctx, UpsertStockInput{BookID: f.book.ID, HallID: south.ID, TotalCopies: 1, AvailableCopies: 1})
	require.NoError(t, err)

	availability, err := f.mgr.BookAvailability(ctx, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, availability.TotalCopies)
	assert.Equal(t, 3, availability.AvailableCopies)
	assert.Len(t, availability.Halls, 2)

	_, err = f.mgr.BookAvailability(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestManager_ReadersSeeOwnRecords(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()
	f.stock(t, 2, 2)

	mine := f.request(t, f.reader)
	theirs := f.request(t, f.other)
	lending, err := f.mgr.Fulfill(ctx, theirs.ID, f.volunteer.ID)
	require.NoError(t, err)

	readerActor := Actor{UserID: f.reader.ID, Role: entities.UserRoleReader}

	requests, total, err := f.mgr.ListRequests(ctx, circdb.RequestFilter{}, readerActor)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, requests, 1)
	assert.Equal(t, mine.ID, requests[0].ID)

	_, err = f.mgr.GetRequest(ctx, theirs.ID, readerActor)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.mgr.GetLending(ctx, lending.ID, readerActor)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	lendings, total, err := f.mgr.ListLendings(ctx, circdb.LendingFilter{}, Actor{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, lendings, 1)
}
