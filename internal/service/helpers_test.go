package service

import (
	"bitwise74/account-api/config"
	"bitwise74/account-api/db"
	"bitwise74/account-api/internal/model"
	"bitwise74/account-api/internal/store"
	"bitwise74/account-api/pkg/security"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	mails []Mail
}

func (r *recordingDispatcher) Dispatch(m Mail) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mails = append(r.mails, m)
}

func (r *recordingDispatcher) sent() []Mail {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Mail(nil), r.mails...)
}

type fakeProvider struct {
	email string
	err   error
}

func (f fakeProvider) VerifiedEmail(context.Context, string) (string, error) {
	return f.email, f.err
}

// staleUsers never finds anyone by email, as if another request inserted the
// row right after the lookup
type staleUsers struct {
	Users
}

func (staleUsers) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, store.ErrNotFound
}

type testEnv struct {
	auth   *AuthService
	users  *UserService
	guard  *Guard
	store  *store.UserStore
	tokens *security.TokenCodec
	mail   *recordingDispatcher
}

func newEnv(t *testing.T, verification bool) *testEnv {
	t.Helper()

	conn, err := db.New(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)

	argon := security.New()
	argon.Memory = 1024
	argon.Iterations = 1

	s := store.NewUserStore(conn)
	tokens := security.NewTokenCodec("test-secret")
	mail := &recordingDispatcher{}

	return &testEnv{
		auth: NewAuthService(s, argon, tokens, mail, AuthOptions{
			AccessTokenTTL:       30 * time.Minute,
			RefreshTokenTTL:      time.Hour,
			VerificationTokenTTL: time.Hour,
			VerificationEnabled:  verification,
			LinkBase:             "http://localhost:8080",
		}),
		users:  NewUserService(s, argon, verification),
		guard:  NewGuard(s, tokens),
		store:  s,
		tokens: tokens,
		mail:   mail,
	}
}

func (e *testEnv) register(t *testing.T, email, password string) *model.User {
	t.Helper()

	u, err := e.auth.Register(context.Background(), RegisterInput{Email: email, Password: password})
	require.NoError(t, err)

	return u
}

func (e *testEnv) superuser(t *testing.T) *model.User {
	t.Helper()

	require.NoError(t, e.auth.EnsureSuperuser(context.Background(), "admin@example.com", "adminpass"))

	u, err := e.store.GetByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)

	return u
}

func ptr[T any](v T) *T {
	return &v
}
