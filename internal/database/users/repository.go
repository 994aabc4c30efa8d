// Package users provides database operations for user management.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.GetUserByLogin(ctx, "alice")
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Filter narrows ListUsers. Zero values match everything.
type Filter struct {
	Role   entities.UserRole
	HallID uint
	Limit  int
	Offset int
}

// CreateUser stores a user. Username and email must be unique.
func (r *Repository) CreateUser(ctx context.Context, user *entities.User) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.User{}).
		Where("username = ? OR email = ?", user.Username, user.Email).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check existing user: %w", err)
	}
	if count > 0 {
		return apperr.Conflict("user %q or email %q already exists", user.Username, user.Email)
	}

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id uint) (*entities.User, error) {
	var user entities.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user", id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByLogin retrieves a user by username or email.
func (r *Repository) GetUserByLogin(ctx context.Context, login string) (*entities.User, error) {
	var user entities.User
	err := r.db.WithContext(ctx).Where("username = ? OR email = ?", login, login).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("user %q not found", login)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns users matching the filter and the total match count.
func (r *Repository) ListUsers(ctx context.Context, f Filter) ([]entities.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&entities.User{})
	if f.Role != "" {
		query = query.Where("role = ?", f.Role)
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

	var users []entities.User
	err := query.Order("id ASC").Limit(f.Limit).Offset(f.Offset).Find(&users).Error
	return users, total, err
}

// UpdateRole changes the role of a user.
func (r *Repository) UpdateRole(ctx context.Context, id uint, role entities.UserRole) error {
	if !role.Valid() {
		return apperr.Validation("role", fmt.Sprintf("unknown role %q", role))
	}
	res := r.db.WithContext(ctx).Model(&entities.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user", id)
	}
	return nil
}

// RecordLogin resets the failure counter after a successful login.
func (r *Repository) RecordLogin(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entities.User{}).Where("id = ?", id).Updates(map[string]any{
		"last_login_at":      at,
		"failed_login_count": 0,
		"locked_until":       nil,
	}).Error
}

// RecordFailedLogin stores the failure counter and an optional lock expiry.
func (r *Repository) RecordFailedLogin(ctx context.Context, id uint, count int, lockedUntil *time.Time) error {
	updates := map[string]any{"failed_login_count": count}
	if lockedUntil != nil {
		updates["locked_until"] = *lockedUntil
	}
	return r.db.WithContext(ctx).Model(&entities.User{}).Where("id = ?", id).Updates(updates).Error
}

// UpdatePasswordHash replaces the stored password hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uint, hash string) error {
	return r.db.WithContext(ctx).Model(&entities.User{}).Where("id = ?", id).Update("password_hash", hash).Error
}

// CountUsers returns the number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.User{}).Count(&count).Error
	return count, err
}
