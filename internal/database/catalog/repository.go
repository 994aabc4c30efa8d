package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// Repository groups the catalog stores.
type Repository struct {
	Authors     *Store[entities.Author, *entities.Author]
	Publishers  *Store[entities.Publisher, *entities.Publisher]
	Categories  *Store[entities.Category, *entities.Category]
	Departments *Store[entities.Department, *entities.Department]
	Halls       *Store[entities.Hall, *entities.Hall]
	Books       *Store[entities.Book, *entities.Book]
}

// NewRepository creates the catalog stores over db.
func NewRepository(db *gorm.DB) *Repository {
	r := &Repository{
		Authors: NewStore[entities.Author](db, "author", "name",
			Dependent{"books", "author_id"}),
		Publishers: NewStore[entities.Publisher](db, "publisher", "name",
			Dependent{"books", "publisher_id"}),
		Categories: NewStore[entities.Category](db, "category", "name",
			Dependent{"books", "category_id"}),
		Departments: NewStore[entities.Department](db, "department", "name",
			Dependent{"halls", "department_id"},
			Dependent{"users", "department_id"}),
		Halls: NewStore[entities.Hall](db, "hall", "name",
			Dependent{"book_collections", "hall_id"},
			Dependent{"requests", "hall_id"},
			Dependent{"users", "hall_id"}),
		Books: NewStore[entities.Book](db, "book", "title",
			Dependent{"book_collections", "book_id"},
			Dependent{"requests", "book_id"}),
	}

	r.Halls.checkRefs = func(tx *gorm.DB, hall *entities.Hall) error {
		return requireRef(tx, r.Departments, "department_id", hall.DepartmentID)
	}
	r.Books.checkRefs = func(tx *gorm.DB, book *entities.Book) error {
		if err := requireRef(tx, r.Authors, "author_id", &book.AuthorID); err != nil {
			return err
		}
		if err := requireRef(tx, r.Publishers, "publisher_id", book.PublisherID); err != nil {
			return err
		}
		return requireRef(tx, r.Categories, "category_id", book.CategoryID)
	}
	return r
}

// ExistsBook reports whether the book exists.
func (r *Repository) ExistsBook(ctx context.Context, id uint) (bool, error) {
	return r.Books.Exists(ctx, id)
}

// ExistsHall reports whether the hall exists.
func (r *Repository) ExistsHall(ctx context.Context, id uint) (bool, error) {
	return r.Halls.Exists(ctx, id)
}

type existser interface {
	exists(tx *gorm.DB, id uint) (bool, error)
	Resource() string
}

// requireRef checks that an optional foreign id points at an existing row.
func requireRef(tx *gorm.DB, store existser, field string, id *uint) error {
	if id == nil || *id == 0 {
		return nil
	}
	ok, err := store.exists(tx, *id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation(field, fmt.Sprintf("%s %d does not exist", store.Resource(), *id))
	}
	return nil
}
