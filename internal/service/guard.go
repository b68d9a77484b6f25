package service

import (
	"bitwise74/account-api/internal/model"
	"bitwise74/account-api/internal/store"
	"bitwise74/account-api/pkg/security"
	"context"
	"errors"
)

// Guard resolves who is making a request from their access token
type Guard struct {
	users  Users
	tokens Tokens
}

func NewGuard(users Users, tokens Tokens) *Guard {
	return &Guard{users: users, tokens: tokens}
}

// CurrentUser returns the owner of an access token. A token that can't be
// used for any reason gives ErrUnauthenticated; a valid token whose user was
// deleted since gives ErrUserNotFound.
func (g *Guard) CurrentUser(ctx context.Context, accessToken string) (*model.User, error) {
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}

	userID, err := g.tokens.Verify(accessToken, security.PurposeAccess)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, err
	}

	return user, nil
}

func RequireActive(u *model.User) error {
	if !u.IsActive {
		return ErrInactiveUser
	}

	return nil
}

func RequireSuperuser(u *model.User) error {
	if !u.IsSuperuser {
		return ErrForbidden
	}

	return nil
}

// Authorize decides whether caller may act on the user with targetID:
// only on themselves, unless they're a superuser
func Authorize(caller *model.User, targetID string) error {
	if caller.ID == targetID || caller.IsSuperuser {
		return nil
	}

	return ErrForbidden
}
