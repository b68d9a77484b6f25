package service

import (
	"bitwise74/account-api/config"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

const sendTimeout = 30 * time.Second

type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer delivers a single message
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// Dispatcher hands a message off for delivery without waiting for it.
// Delivery failures are only logged.
type Dispatcher interface {
	Dispatch(m Mail)
}

// VerificationMail builds the message that carries an account verification token
func VerificationMail(linkBase, email, token string) Mail {
	link := fmt.Sprintf("%s/verify_account?token=%s", linkBase, url.QueryEscape(token))

	return Mail{
		To:      email,
		Subject: fmt.Sprintf("Account Verification for user %s", email),
		Body:    fmt.Sprintf("Click <a href='%s'>here</a> to verify your account.", link),
	}
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.SenderAddress,
	}
}

func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	if m.To == s.from {
		return errors.New("invalid email address")
	}

	// gomail can't be cancelled once it's dialing
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.Body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail, %w", err)
	}

	return nil
}

// LogMailer is used when no SMTP server is configured. It only logs what
// would have been sent.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, m Mail) error {
	zap.L().Info("Mail delivery not configured, dropping mail",
		zap.String("to", m.To),
		zap.String("subject", m.Subject))
	return nil
}

// AsyncDispatcher sends every message from its own goroutine
type AsyncDispatcher struct {
	mailer Mailer
	wg     sync.WaitGroup
}

func NewAsyncDispatcher(m Mailer) *AsyncDispatcher {
	return &AsyncDispatcher{mailer: m}
}

func (d *AsyncDispatcher) Dispatch(m Mail) {
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := d.mailer.Send(ctx, m); err != nil {
			zap.L().Error("Failed to send mail", zap.String("to", m.To), zap.Error(err))
			return
		}

		zap.L().Debug("Mail sent", zap.String("to", m.To))
	}()
}

// Wait blocks until every dispatched message was handled
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}
