package app

import (
	"bitwise74/account-api/config"
	"bitwise74/account-api/db"
	"bitwise74/account-api/internal"
	"bitwise74/account-api/internal/oauth"
	"bitwise74/account-api/internal/service"
	"bitwise74/account-api/internal/store"
	"bitwise74/account-api/pkg/security"
	"bitwise74/account-api/pkg/validators"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup opens the database and builds everything the handlers need. The
// returned function flushes pending mail and should be called on shutdown.
func Setup(cfg *config.Config) (*internal.Deps, func(), error) {
	conn, err := db.New(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	var (
		dispatcher service.Dispatcher
		cleanup    func()
	)

	if cfg.Mail.QueueEnabled {
		q := service.NewQueueDispatcher(asynq.RedisClientOpt{Addr: cfg.Mail.RedisAddr})
		dispatcher = q
		cleanup = func() {
			if err := q.Close(); err != nil {
				zap.L().Warn("Failed to close mail queue client", zap.Error(err))
			}
		}
	} else {
		a := service.NewAsyncDispatcher(NewMailer(cfg.Mail))
		dispatcher = a
		cleanup = a.Wait
	}

	d, err := NewDeps(cfg, conn, dispatcher, oauth.NewGoogleFromConfig(cfg.Google))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return d, cleanup, nil
}

// NewMailer picks SMTP delivery when it's configured and logging otherwise
func NewMailer(cfg config.MailConfig) service.Mailer {
	if !cfg.Configured() {
		zap.L().Warn("SMTP not configured, mails will only be logged")
		return service.LogMailer{}
	}

	return service.NewSMTPMailer(cfg)
}

func NewDeps(cfg *config.Config, conn *gorm.DB, mail service.Dispatcher, google *oauth.Google) (*internal.Deps, error) {
	if err := validators.Register(); err != nil {
		return nil, fmt.Errorf("failed to register validators, %w", err)
	}

	d := &internal.Deps{
		Config: cfg,
		DB:     conn,
		Argon:  security.New(),
		Tokens: security.NewTokenCodec(cfg.Security.JWTSecret),
		Google: google,
	}

	users := store.NewUserStore(conn)

	d.Guard = service.NewGuard(users, d.Tokens)
	d.Users = service.NewUserService(users, d.Argon, cfg.Mail.VerificationEnabled)
	d.Auth = service.NewAuthService(users, d.Argon, d.Tokens, mail, service.AuthOptions{
		AccessTokenTTL:       cfg.Security.AccessTokenTTL,
		RefreshTokenTTL:      cfg.Security.RefreshTokenTTL,
		VerificationTokenTTL: cfg.Security.VerificationTokenTTL,
		VerificationEnabled:  cfg.Mail.VerificationEnabled,
		LinkBase:             fmt.Sprintf("%s://%s", cfg.Host.Scheme(), cfg.Host.Domain),
	})

	return d, nil
}
