// Package validators contains validators found throughout the application
// that have been abstracted away from the main code
package validators

import (
	"errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const maxPasswordLength = 255

var (
	ErrEmailEmpty      = errors.New("no email address provided")
	ErrEmailInvalid    = errors.New("invalid email address provided")
	ErrPasswordEmpty   = errors.New("no password provided")
	ErrPasswordTooLong = errors.New("password is too long")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func EmailValidator(e string) error {
	if e == "" {
		return ErrEmailEmpty
	}

	if err := validate.Var(e, "email"); err != nil {
		return ErrEmailInvalid
	}

	return nil
}

func PasswordValidator(p string) error {
	if p == "" {
		return ErrPasswordEmpty
	}

	if len(p) > maxPasswordLength {
		return ErrPasswordTooLong
	}

	return nil
}

// Register adds the "password" tag to gin's validator so request bodies can
// use binding:"password"
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected gin validator engine")
	}

	return v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return PasswordValidator(fl.Field().String()) == nil
	})
}
