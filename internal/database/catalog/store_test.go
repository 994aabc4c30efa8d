package catalog

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/database"
	"github.com/hallshelf/hallshelf/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, *gorm.DB, func()) {
	t.Helper()
	dbPath := "./test_catalog_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"

	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}
	return NewRepository(db.DB), db.DB, cleanup
}

func TestStore_CRUD(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	author := &entities.Author{Name: "  Octavia Butler "}
	require.NoError(t, repo.Authors.Create(ctx, author))
	assert.NotZero(t, author.ID)
	assert.Equal(t, "Octavia Butler", author.Name)

	t.Run("get", func(t *testing.T) {
		got, err := repo.Authors.Get(ctx, author.ID)
		require.NoError(t, err)
		assert.Equal(t, "Octavia Butler", got.Name)

		_, err = repo.Authors.Get(ctx, 999)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		updated, err := repo.Authors.Update(ctx, author.ID, &entities.Author{Name: "Octavia E. Butler", Bio: "Kindred"})
		require.NoError(t, err)
		assert.Equal(t, "Octavia E. Butler", updated.Name)
		assert.Equal(t, "Kindred", updated.Bio)

		_, err = repo.Authors.Update(ctx, 999, &entities.Author{Name: "Nobody"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = repo.Authors.Update(ctx, author.ID, &entities.Author{Name: ""})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Authors.Delete(ctx, author.ID))
		assert.ErrorIs(t, repo.Authors.Delete(ctx, author.ID), apperr.ErrNotFound)
	})
}

func TestStore_Create_Validation(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.Categories.Create(context.Background(), &entities.Category{Name: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "name", apperr.FieldOf(err))
}

func TestStore_Create_Duplicate(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Categories.Create(ctx, &entities.Category{Name: "Poetry"}))
	err := repo.Categories.Create(ctx, &entities.Category{Name: "Poetry"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestStore_List(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for _, name := range []string{"North Hall", "South Hall", "Library Annex"} {
		require.NoError(t, repo.Halls.Create(ctx, &entities.Hall{Name: name}))
	}

	halls, total, err := repo.Halls.List(ctx, ListParams{Search: "hall"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, halls, 2)

	halls, total, err = repo.Halls.List(ctx, ListParams{Limit: 1, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, halls, 1)
	assert.Equal(t, "Library Annex", halls[0].Name)
}

func TestRepository_BookReferences(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := repo.Books.Create(ctx, &entities.Book{Title: "Kindred", AuthorID: 42})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "author_id", apperr.FieldOf(err))

	author := &entities.Author{Name: "Octavia Butler"}
	require.NoError(t, repo.Authors.Create(ctx, author))

	missing := uint(7)
	err = repo.Books.Create(ctx, &entities.Book{Title: "Kindred", AuthorID: author.ID, CategoryID: &missing})
	assert.Equal(t, "category_id", apperr.FieldOf(err))

	book := &entities.Book{Title: "Kindred", AuthorID: author.ID}
	require.NoError(t, repo.Books.Create(ctx, book))

	ok, err := repo.ExistsBook(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	err = repo.Authors.Delete(ctx, author.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRepository_HallInUse(t *testing.T) {
	repo, db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	dept := &entities.Department{Name: "Residential Life"}
	require.NoError(t, repo.Departments.Create(ctx, dept))

	hall := &entities.Hall{Name: "North Hall", DepartmentID: &dept.ID}
	require.NoError(t, repo.Halls.Create(ctx, hall))

	assert.ErrorIs(t, repo.Departments.Delete(ctx, dept.ID), apperr.ErrConflict)

	require.NoError(t, db.Create(&entities.Request{ReaderID: 1, BookID: 1, HallID: hall.ID, Status: entities.RequestStatusPending}).Error)
	assert.ErrorIs(t, repo.Halls.Delete(ctx, hall.ID), apperr.ErrConflict)

	ok, err := repo.ExistsHall(ctx, hall.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
