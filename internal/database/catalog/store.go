// Package catalog stores the reference tables consumed by circulation:
// authors, publishers, categories, departments, halls and books.
//
// All of them share one generic Store. A row that other tables still refer
// to cannot be deleted.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// Dependent names a column in another table that refers to rows of a store.
type Dependent struct {
	Table  string
	Column string
}

// ListParams narrows List. Search matches the store's search column
// case-insensitively.
type ListParams struct {
	Search string
	Limit  int
	Offset int
}

// Store provides CRUD for one catalog table.
type Store[T any, PT interface {
	*T
	entities.Record
}] struct {
	db           *gorm.DB
	resource     string
	searchColumn string
	dependents   []Dependent

	// checkRefs validates foreign ids of a record before it is written.
	checkRefs func(tx *gorm.DB, record PT) error
}

// NewStore creates a store for the table backing T.
func NewStore[T any, PT interface {
	*T
	entities.Record
}](db *gorm.DB, resource, searchColumn string, dependents ...Dependent) *Store[T, PT] {
	return &Store[T, PT]{
		db:           db,
		resource:     resource,
		searchColumn: searchColumn,
		dependents:   dependents,
	}
}

// Resource returns the singular resource name used in error messages.
func (s *Store[T, PT]) Resource() string {
	return s.resource
}

// Create validates and stores a new record.
func (s *Store[T, PT]) Create(ctx context.Context, record PT) error {
	if err := record.Validate(); err != nil {
		return err
	}
	record.SetID(0)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.refs(tx, record); err != nil {
			return err
		}
		return s.translate(tx.Create(record).Error)
	})
}

// Get retrieves a record by id.
func (s *Store[T, PT]) Get(ctx context.Context, id uint) (PT, error) {
	var record T
	err := s.db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(s.resource, id)
	}
	if err != nil {
		return nil, err
	}
	return PT(&record), nil
}

// Exists reports whether a record with id exists.
func (s *Store[T, PT]) Exists(ctx context.Context, id uint) (bool, error) {
	return s.exists(s.db.WithContext(ctx), id)
}

func (s *Store[T, PT]) exists(tx *gorm.DB, id uint) (bool, error) {
	var count int64
	err := tx.Model(new(T)).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// List returns records ordered by id and the total match count.
func (s *Store[T, PT]) List(ctx context.Context, p ListParams) ([]T, int64, error) {
	query := s.db.WithContext(ctx).Model(new(T))
	if search := strings.TrimSpace(p.Search); search != "" && s.searchColumn != "" {
		query = query.Where("LOWER("+s.searchColumn+") LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	var records []T
	err := query.Order("id ASC").Limit(p.Limit).Offset(p.Offset).Find(&records).Error
	return records, total, err
}

// Update replaces every writable field of the record with id.
func (s *Store[T, PT]) Update(ctx context.Context, id uint, record PT) (PT, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	record.SetID(id)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.exists(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound(s.resource, id)
		}
		if err := s.refs(tx, record); err != nil {
			return err
		}
		return s.translate(tx.Model(record).Select("*").Omit("id", "created_at").Updates(record).Error)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes the record with id unless a dependent row refers to it.
func (s *Store[T, PT]) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.exists(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound(s.resource, id)
		}

		for _, dep := range s.dependents {
			var count int64
			if err := tx.Table(dep.Table).Where(dep.Column+" = ?", id).Count(&count).Error; err != nil {
				return fmt.Errorf("count %s referencing %s: %w", dep.Table, s.resource, err)
			}
			if count > 0 {
				return apperr.Conflict("%s %d is referenced by %d %s", s.resource, id, count, dep.Table)
			}
		}

		return tx.Delete(new(T), id).Error
	})
}

func (s *Store[T, PT]) refs(tx *gorm.DB, record PT) error {
	if s.checkRefs == nil {
		return nil
	}
	return s.checkRefs(tx, record)
}

func (s *Store[T, PT]) translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("%s already exists", s.resource)
	}
	return err
}
