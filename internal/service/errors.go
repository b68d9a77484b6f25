package service

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password
	// so that login can't be used to find out which emails are registered
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInactiveUser       = errors.New("inactive user")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidGrant       = errors.New("invalid grant type")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnauthenticated    = errors.New("could not validate credentials")
	ErrForbidden          = errors.New("forbidden")
)
