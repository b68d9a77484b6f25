package service

import (
	"bitwise74/account-api/internal/model"
	"bitwise74/account-api/internal/store"
	"context"
	"errors"
	"fmt"
)

const (
	DefaultListLimit = 100
)

type CreateUserInput struct {
	Email       string
	Password    string
	FullName    *string
	IsActive    *bool
	IsSuperuser bool
}

// UpdateUserInput holds the fields to change, nil means leave as is.
// IsActive, IsSuperuser and IsVerified can only be changed by superusers.
type UpdateUserInput struct {
	Email       *string
	Password    *string
	FullName    *string
	IsActive    *bool
	IsSuperuser *bool
	IsVerified  *bool
}

func (in UpdateUserInput) privileged() bool {
	return in.IsActive != nil || in.IsSuperuser != nil || in.IsVerified != nil
}

// UserService implements user record management on behalf of an already
// authenticated caller
type UserService struct {
	users               Users
	hasher              Hasher
	verificationEnabled bool
}

func NewUserService(users Users, hasher Hasher, verificationEnabled bool) *UserService {
	return &UserService{
		users:               users,
		hasher:              hasher,
		verificationEnabled: verificationEnabled,
	}
}

// Create adds an account without going through registration. Superusers only.
func (s *UserService) Create(ctx context.Context, caller *model.User, in CreateUserInput) (*model.User, error) {
	if err := RequireSuperuser(caller); err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	return createAccount(ctx, s.users, s.hasher, accountInput{
		Email:       in.Email,
		Password:    in.Password,
		FullName:    in.FullName,
		IsActive:    active,
		IsSuperuser: in.IsSuperuser,
		IsVerified:  !s.verificationEnabled,
	})
}

// List returns a page of users. Superusers only.
func (s *UserService) List(ctx context.Context, caller *model.User, offset, limit int) ([]model.User, error) {
	if err := RequireSuperuser(caller); err != nil {
		return nil, err
	}

	if offset < 0 || limit < 0 {
		return nil, errors.New("offset and limit can't be negative")
	}

	return s.users.List(ctx, offset, limit)
}

func (s *UserService) Get(ctx context.Context, caller *model.User, id string) (*model.User, error) {
	if err := Authorize(caller, id); err != nil {
		return nil, err
	}

	return s.get(ctx, id)
}

func (s *UserService) Update(ctx context.Context, caller *model.User, id string, in UpdateUserInput) (*model.User, error) {
	if err := Authorize(caller, id); err != nil {
		return nil, err
	}

	if in.privileged() {
		if err := RequireSuperuser(caller); err != nil {
			return nil, err
		}
	}

	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil && *in.Email != user.Email {
		_, err := s.users.GetByEmail(ctx, *in.Email)
		if err == nil {
			return nil, ErrEmailTaken
		}

		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		user.Email = *in.Email
	}

	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password, %w", err)
		}

		user.PasswordHash = &hash
	}

	if in.FullName != nil {
		user.FullName = in.FullName
	}

	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}

	if in.IsSuperuser != nil {
		user.IsSuperuser = *in.IsSuperuser
	}

	if in.IsVerified != nil {
		user.IsVerified = *in.IsVerified
	}

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return nil, ErrEmailTaken
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrUserNotFound
		}

		return nil, err
	}

	return user, nil
}

// Delete removes the account for good. Tokens issued to it stop working
// right away since the guard looks the user up on every request.
func (s *UserService) Delete(ctx context.Context, caller *model.User, id string) error {
	if err := Authorize(caller, id); err != nil {
		return err
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}

		return err
	}

	return nil
}

func (s *UserService) get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, err
	}

	return user, nil
}
