// Package store persists user records
package store

import (
	"bitwise74/account-api/internal/model"
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

const (
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength = 16
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Create assigns a new ID to u and inserts it. The unique index on email is
// what ultimately decides between two concurrent registrations.
func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	id, err := gonanoid.Generate(charset, idLength)
	if err != nil {
		return fmt.Errorf("failed to generate user ID, %w", err)
	}
	u.ID = id

	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}

		return fmt.Errorf("failed to create user, %w", err)
	}

	return nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) first(ctx context.Context, query string, arg string) (*model.User, error) {
	var u model.User

	err := s.db.WithContext(ctx).
		Where(query, arg).
		First(&u).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to fetch user, %w", err)
	}

	return &u, nil
}

// List returns users ordered by creation time
func (s *UserStore) List(ctx context.Context, offset, limit int) ([]model.User, error) {
	users := []model.User{}

	err := s.db.WithContext(ctx).
		Order("created_at asc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&users).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users, %w", err)
	}

	return users, nil
}

// Update writes every mutable column of u. ID and creation time never change.
func (s *UserStore) Update(ctx context.Context, u *model.User) error {
	r := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", u.ID).
		Select("email", "full_name", "password_hash", "is_active", "is_superuser", "is_verified").
		Updates(u)
	if r.Error != nil {
		if errors.Is(r.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}

		return fmt.Errorf("failed to update user, %w", r.Error)
	}

	if r.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// SetVerified flips is_verified on for the user with the given email
func (s *UserStore) SetVerified(ctx context.Context, email string) error {
	r := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("email = ?", email).
		Update("is_verified", true)
	if r.Error != nil {
		return fmt.Errorf("failed to verify user, %w", r.Error)
	}

	if r.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes the user for good, there is no soft delete
func (s *UserStore) Delete(ctx context.Context, id string) error {
	r := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.User{})
	if r.Error != nil {
		return fmt.Errorf("failed to delete user, %w", r.Error)
	}

	if r.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
