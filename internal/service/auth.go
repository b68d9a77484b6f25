// Package service contains the account business logic that sits between
// the HTTP handlers and the user store
package service

import (
	"bitwise74/account-api/internal/model"
	"bitwise74/account-api/internal/store"
	"bitwise74/account-api/pkg/security"
	"bitwise74/account-api/pkg/validators"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GrantTypeRefresh is the only grant type accepted by Refresh
const GrantTypeRefresh = "refresh_token"

type Users interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context, offset, limit int) ([]model.User, error)
	Update(ctx context.Context, u *model.User) error
	SetVerified(ctx context.Context, email string) error
	Delete(ctx context.Context, id string) error
}

type Hasher interface {
	Hash(p string) (string, error)
	Verify(p, encoded string) bool
}

type Tokens interface {
	Issue(subject string, purpose security.Purpose, ttl time.Duration) (string, error)
	Verify(token string, expected security.Purpose) (string, error)
}

// IdentityProvider is an external service (Google for example) that has
// already confirmed the user owns an email address.
type IdentityProvider interface {
	VerifiedEmail(ctx context.Context, code string) (string, error)
}

type AuthOptions struct {
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	// When disabled new accounts start out verified and no mail is sent
	VerificationEnabled bool
	// Scheme and host the verification link points at, e.g. https://example.com
	LinkBase string
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

type RegisterInput struct {
	Email    string
	Password string
	FullName *string
}

type AuthService struct {
	users  Users
	hasher Hasher
	tokens Tokens
	mail   Dispatcher
	opts   AuthOptions

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users Users, hasher Hasher, tokens Tokens, mail Dispatcher, opts AuthOptions) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		mail:   mail,
		opts:   opts,
	}
}

// Login exchanges an email and password for an access and refresh token
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		// Spend the same time hashing as for a registered email
		s.hasher.Verify(password, s.dummy())
		return nil, ErrInvalidCredentials
	}

	if user.PasswordHash == nil {
		s.hasher.Verify(password, s.dummy())
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, *user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := RequireActive(user); err != nil {
		return nil, err
	}

	return s.issuePair(user.ID)
}

// Refresh hands out a new access token for a valid refresh token. The refresh
// token itself is neither rotated nor invalidated and keeps working until it
// expires.
func (s *AuthService) Refresh(ctx context.Context, grantType, token string) (*TokenPair, error) {
	if grantType != GrantTypeRefresh {
		return nil, ErrInvalidGrant
	}

	userID, err := s.tokens.Verify(token, security.PurposeRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, err
	}

	access, err := s.tokens.Issue(user.ID, security.PurposeAccess, s.opts.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, TokenType: "bearer"}, nil
}

// Register creates a regular, active account. With verification enabled the
// account starts unverified and a verification mail is dispatched in the
// background; failing to deliver it doesn't fail the registration.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	user, err := createAccount(ctx, s.users, s.hasher, accountInput{
		Email:      in.Email,
		Password:   in.Password,
		FullName:   in.FullName,
		IsActive:   true,
		IsVerified: !s.opts.VerificationEnabled,
	})
	if err != nil {
		return nil, err
	}

	if !s.opts.VerificationEnabled {
		return user, nil
	}

	token, err := s.tokens.Issue(user.Email, security.PurposeVerifyAccount, s.opts.VerificationTokenTTL)
	if err != nil {
		// The account exists at this point, the user can still get verified later
		zap.L().Error("Failed to generate verification token", zap.String("userID", user.ID), zap.Error(err))
		return user, nil
	}

	s.mail.Dispatch(VerificationMail(s.opts.LinkBase, user.Email, token))

	return user, nil
}

// VerifyAccount marks the owner of a verification token as verified.
// Verifying an already verified account is not an error.
func (s *AuthService) VerifyAccount(ctx context.Context, token string) error {
	email, err := s.tokens.Verify(token, security.PurposeVerifyAccount)
	if err != nil {
		return ErrInvalidToken
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}

		return err
	}

	if user.IsVerified {
		return nil
	}

	if err := s.users.SetVerified(ctx, user.Email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}

		return err
	}

	return nil
}

// LoginWithProvider logs in the owner of the email the provider vouches for.
// No password is checked here: the provider already proved the identity, which
// is why this is only reachable with an IdentityProvider and its code.
func (s *AuthService) LoginWithProvider(ctx context.Context, p IdentityProvider, code string) (*TokenPair, error) {
	email, err := p.VerifiedEmail(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}

		zap.L().Debug("Identity provider rejected code", zap.Error(err))
		return nil, ErrUnauthenticated
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, err
	}

	if err := RequireActive(user); err != nil {
		return nil, err
	}

	return s.issuePair(user.ID)
}

// EnsureSuperuser creates the initial superuser unless an account with that
// email already exists
func (s *AuthService) EnsureSuperuser(ctx context.Context, email, password string) error {
	if err := validators.EmailValidator(email); err != nil {
		return fmt.Errorf("invalid superuser email, %w", err)
	}

	if err := validators.PasswordValidator(password); err != nil {
		return fmt.Errorf("invalid superuser password, %w", err)
	}

	_, err := createAccount(ctx, s.users, s.hasher, accountInput{
		Email:       email,
		Password:    password,
		IsActive:    true,
		IsSuperuser: true,
		IsVerified:  true,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil
		}

		return fmt.Errorf("failed to create superuser, %w", err)
	}

	zap.L().Info("Created initial superuser", zap.String("email", email))
	return nil
}

func (s *AuthService) issuePair(userID string) (*TokenPair, error) {
	access, err := s.tokens.Issue(userID, security.PurposeAccess, s.opts.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := s.tokens.Issue(userID, security.PurposeRefresh, s.opts.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("not a real password")
		if err != nil {
			zap.L().Warn("Failed to prepare dummy password hash", zap.Error(err))
			return
		}

		s.dummyHash = hash
	})

	return s.dummyHash
}

type accountInput struct {
	Email       string
	Password    string
	FullName    *string
	IsActive    bool
	IsSuperuser bool
	IsVerified  bool
}

// createAccount is shared by registration and administrative creation. The
// lookup only gives a nicer early answer, the store's unique index is what
// catches two concurrent requests for the same email.
func createAccount(ctx context.Context, users Users, hasher Hasher, in accountInput) (*model.User, error) {
	_, err := users.GetByEmail(ctx, in.Email)
	if err == nil {
		return nil, ErrEmailTaken
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password, %w", err)
	}

	user := &model.User{
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: &hash,
		IsActive:     in.IsActive,
		IsSuperuser:  in.IsSuperuser,
		IsVerified:   in.IsVerified,
	}

	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}

		return nil, err
	}

	return user, nil
}
