package internal

import (
	"bitwise74/account-api/config"
	"bitwise74/account-api/internal/oauth"
	"bitwise74/account-api/internal/service"
	"bitwise74/account-api/pkg/security"

	"gorm.io/gorm"
)

type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	Argon  *security.ArgonHash
	Tokens *security.TokenCodec
	Auth   *service.AuthService
	Users  *service.UserService
	Guard  *service.Guard
	// Nil when Google login isn't configured
	Google *oauth.Google
}
