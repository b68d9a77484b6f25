package app

import (
	"bitwise74/account-api/config"
	"bitwise74/account-api/db"
	"bitwise74/account-api/internal"
	"bitwise74/account-api/internal/oauth"
	"bitwise74/account-api/internal/service"
	"bitwise74/account-api/pkg/security"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	mails []service.Mail
}

func (r *recordingDispatcher) Dispatch(m service.Mail) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mails = append(r.mails, m)
}

func (r *recordingDispatcher) sent() []service.Mail {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]service.Mail(nil), r.mails...)
}

type testApp struct {
	t      *testing.T
	d      *internal.Deps
	router *gin.Engine
	mail   *recordingDispatcher
}

func testConfig(verification bool) *config.Config {
	return &config.Config{
		LogLevel: "debug",
		Host: config.HostConfig{
			Port:   8080,
			Domain: "localhost:8080",
			CORS:   []string{"http://localhost:5173"},
		},
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
		Security: config.SecurityConfig{
			JWTSecret:            "test-secret",
			AccessTokenTTL:       30 * time.Minute,
			RefreshTokenTTL:      time.Hour,
			VerificationTokenTTL: time.Hour,
		},
		Mail: config.MailConfig{VerificationEnabled: verification},
	}
}

func newTestApp(t *testing.T, verification bool, google *oauth.Google) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig(verification)

	conn, err := db.New(cfg.Database)
	require.NoError(t, err)

	mail := &recordingDispatcher{}

	d, err := NewDeps(cfg, conn, mail, google)
	require.NoError(t, err)

	d.Argon.Memory = 1024
	d.Argon.Iterations = 1

	return &testApp{t: t, d: d, router: NewRouter(d), mail: mail}
}

func (a *testApp) do(method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case url.Values:
		reader = bytes.NewReader([]byte(b.Encode()))
	default:
		data, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)

	switch body.(type) {
	case nil:
	case url.Values:
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range header {
		req.Header[k] = v
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	return w
}

func (a *testApp) login(email, password string) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, "/api/token", url.Values{"username": {email}, "password": {password}}, nil)
}

func (a *testApp) bearer(email, password string) http.Header {
	a.t.Helper()

	w := a.login(email, password)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())

	return bearerHeader(decode(a.t, w)["access_token"].(string))
}

func (a *testApp) superuserHeaders() http.Header {
	a.t.Helper()

	require.NoError(a.t, a.d.Auth.EnsureSuperuser(context.Background(), "admin@example.com", "adminpass"))
	return a.bearer("admin@example.com", "adminpass")
}

func (a *testApp) createUser(headers http.Header, email, password string) map[string]any {
	a.t.Helper()

	w := a.do(http.MethodPost, "/api/users", gin.H{"email": email, "password": password}, headers)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())

	return decode(a.t, w)
}

func bearerHeader(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	v, _ := decode(t, w)["detail"].(string)
	return v
}

func TestHeartbeat(t *testing.T) {
	a := newTestApp(t, false, nil)

	w := a.do(http.MethodHead, "/api/heartbeat", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDIsKept(t *testing.T) {
	a := newTestApp(t, false, nil)

	id := "7d444840-9dc0-11d1-b245-5ffdce74fad2"
	w := a.do(http.MethodHead, "/api/heartbeat", nil, http.Header{"X-Request-Id": {id}})
	assert.Equal(t, id, w.Header().Get("X-Request-ID"))

	w = a.do(http.MethodHead, "/api/heartbeat", nil, http.Header{"X-Request-Id": {"not a uuid"}})
	assert.NotEqual(t, "not a uuid", w.Header().Get("X-Request-ID"))
}

func TestLogin(t *testing.T) {
	a := newTestApp(t, false, nil)
	a.createUser(a.superuserHeaders(), "test@test.com", "123456")

	w := a.login("test@test.com", "123456")
	require.Equal(t, http.StatusCreated, w.Code)

	token := decode(t, w)
	assert.Contains(t, token, "access_token")
	assert.Contains(t, token, "refresh_token")
	assert.Equal(t, "bearer", token["token_type"])
}

func TestLogin_Invalid(t *testing.T) {
	t.Run("incorrect", func(t *testing.T) {
		a := newTestApp(t, false, nil)
		a.createUser(a.superuserHeaders(), "test@test.com", "123456")

		w := a.login("test@test.com", "wrong_password")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"detail":"Incorrect email or password"}`, w.Body.String())

		w = a.login("unknown@test.com", "123456")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"detail":"Incorrect email or password"}`, w.Body.String())
	})

	t.Run("inactive", func(t *testing.T) {
		a := newTestApp(t, false, nil)
		admin := a.superuserHeaders()
		created := a.createUser(admin, "test@test.com", "123456")

		w := a.do(http.MethodPut, "/api/users/"+created["id"].(string), gin.H{"is_active": false}, admin)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = a.login("test@test.com", "123456")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"detail":"Inactive user"}`, w.Body.String())
	})

	t.Run("missing fields", func(t *testing.T) {
		a := newTestApp(t, false, nil)

		w := a.do(http.MethodPost, "/api/token", url.Values{"username": {"test@test.com"}}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestRefreshToken(t *testing.T) {
	a := newTestApp(t, false, nil)
	a.createUser(a.superuserHeaders(), "test@test.com", "123456")

	w := a.login("test@test.com", "123456")
	require.Equal(t, http.StatusCreated, w.Code)
	refresh := decode(t, w)["refresh_token"].(string)

	w = a.do(http.MethodPost, "/api/refresh_token", gin.H{"grant_type": "refresh_token", "token": refresh}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	token := decode(t, w)
	assert.Contains(t, token, "access_token")
	assert.NotContains(t, token, "refresh_token")
	assert.Equal(t, "bearer", token["token_type"])

	w = a.do(http.MethodGet, "/api/users/me", nil, bearerHeader(token["access_token"].(string)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefreshToken_Invalid(t *testing.T) {
	t.Run("invalid_refresh_token", func(t *testing.T) {
		a := newTestApp(t, false, nil)
		a.createUser(a.superuserHeaders(), "test@test.com", "123456")

		refresh := decode(t, a.login("test@test.com", "123456"))["refresh_token"].(string)

		w := a.do(http.MethodPost, "/api/refresh_token", gin.H{"grant_type": "not_refresh_token", "token": refresh}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"detail":"Invalid refresh token"}`, w.Body.String())

		access := decode(t, a.login("test@test.com", "123456"))["access_token"].(string)

		w = a.do(http.MethodPost, "/api/refresh_token", gin.H{"grant_type": "refresh_token", "token": access}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"detail":"Invalid refresh token"}`, w.Body.String())
	})

	t.Run("missing_grant_type", func(t *testing.T) {
		a := newTestApp(t, false, nil)
		a.createUser(a.superuserHeaders(), "test@test.com", "123456")

		refresh := decode(t, a.login("test@test.com", "123456"))["refresh_token"].(string)

		for _, body := range []gin.H{
			{"grant_type": "", "token": refresh},
			{"token": refresh},
		} {
			w := a.do(http.MethodPost, "/api/refresh_token", body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"detail":"Invalid refresh token"}`, w.Body.String())
		}
	})

	t.Run("user_not_found", func(t *testing.T) {
		a := newTestApp(t, false, nil)
		admin := a.superuserHeaders()
		created := a.createUser(admin, "test@test.com", "123456")

		refresh := decode(t, a.login("test@test.com", "123456"))["refresh_token"].(string)

		w := a.do(http.MethodDelete, "/api/users/"+created["id"].(string), nil, admin)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = a.do(http.MethodPost, "/api/refresh_token", gin.H{"grant_type": "refresh_token", "token": refresh}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"detail":"User not found"}`, w.Body.String())
	})
}

func TestRegister(t *testing.T) {
	a := newTestApp(t, true, nil)

	w := a.do(http.MethodPost, "/api/register", gin.H{
		"email":     "user@example.com",
		"password":  "123456",
		"full_name": "Random Name",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode(t, w)
	assert.Equal(t, "user@example.com", created["email"])
	assert.Equal(t, "Random Name", created["full_name"])
	assert.Equal(t, true, created["is_active"])
	assert.Equal(t, false, created["is_verified"])
	assert.Contains(t, created, "time_created")
	assert.NotContains(t, created, "password")
	assert.NotContains(t, created, "password_hash")

	mails := a.mail.sent()
	require.Len(t, mails, 1)
	assert.Equal(t, "user@example.com", mails[0].To)
	assert.Equal(t, "Account Verification for user user@example.com", mails[0].Subject)
}

func TestRegister_VerificationDisabled(t *testing.T) {
	a := newTestApp(t, false, nil)

	w := a.do(http.MethodPost, "/api/register", gin.H{
		"email":     "user@example.com",
		"password":  "123456",
		"full_name": "Random Name",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, true, decode(t, w)["is_verified"])
	assert.Empty(t, a.mail.sent())
}

func TestRegister_ExistingEmail(t *testing.T) {
	a := newTestApp(t, false, nil)

	body := gin.H{"email": "user@example.com", "password": "123456"}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/register", body, nil).Code)

	w := a.do(http.MethodPost, "/api/register", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":"Email already registered"}`, w.Body.String())
}

func TestRegister_BadBody(t *testing.T) {
	a := newTestApp(t, false, nil)

	for _, body := range []any{
		gin.H{"email": "not-an-email", "password": "123456"},
		gin.H{"email": "user@example.com"},
		gin.H{"email": "user@example.com", "password": ""},
	} {
		w := a.do(http.MethodPost, "/api/register", body, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
		assert.NotEmpty(t, detail(t, w))
	}
}

func TestBodyTooLarge(t *testing.T) {
	a := newTestApp(t, false, nil)

	w := a.do(http.MethodPost, "/api/register", gin.H{
		"email":    "user@example.com",
		"password": strings.Repeat("a", maxBodySize),
	}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestCurrentUser(t *testing.T) {
	t.Run("invalid", func(t *testing.T) {
		a := newTestApp(t, false, nil)

		w := a.do(http.MethodGet, "/api/users/me", nil, bearerHeader("invalid_token_string"))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"detail":"Could not validate credentials"}`, w.Body.String())

		w = a.do(http.MethodGet, "/api/users/me", nil, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("non existent", func(t *testing.T) {
		a := newTestApp(t, false, nil)
		admin := a.superuserHeaders()
		created := a.createUser(admin, "test@test.com", "123456")
		headers := a.bearer("test@test.com", "123456")

		require.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/users/"+created["id"].(string), nil, admin).Code)

		w := a.do(http.MethodGet, "/api/users/me", nil, headers)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"detail":"User not found"}`, w.Body.String())
	})

	t.Run("inactive", func(t *testing.T) {
		a := newTestApp(t, false, nil)
		admin := a.superuserHeaders()
		created := a.createUser(admin, "test@test.com", "123456")
		headers := a.bearer("test@test.com", "123456")

		w := a.do(http.MethodPut, "/api/users/"+created["id"].(string), gin.H{"is_active": false}, admin)
		require.Equal(t, http.StatusOK, w.Code)

		w = a.do(http.MethodGet, "/api/users/me", nil, headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"detail":"Inactive user"}`, w.Body.String())
	})

	t.Run("valid", func(t *testing.T) {
		a := newTestApp(t, false, nil)
		a.createUser(a.superuserHeaders(), "test@test.com", "123456")

		w := a.do(http.MethodGet, "/api/users/me", nil, a.bearer("test@test.com", "123456"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "test@test.com", decode(t, w)["email"])
	})
}

func TestVerifyAccount(t *testing.T) {
	a := newTestApp(t, true, nil)

	w := a.do(http.MethodPost, "/api/register", gin.H{"email": "user@example.com", "password": "123456"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	token, err := a.d.Tokens.Issue("user@example.com", security.PurposeVerifyAccount, time.Hour)
	require.NoError(t, err)

	w = a.do(http.MethodPost, "/api/verify_account", gin.H{"token": token}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"User verified"}`, w.Body.String())

	w = a.do(http.MethodGet, "/api/users/me", nil, a.bearer("user@example.com", "123456"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["is_verified"])

	w = a.do(http.MethodPost, "/api/verify_account", gin.H{"token": "garbage"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":"Invalid verification token"}`, w.Body.String())
}

func TestVerifyAccount_NotFound(t *testing.T) {
	a := newTestApp(t, true, nil)

	token, err := a.d.Tokens.Issue("ghost@example.com", security.PurposeVerifyAccount, time.Hour)
	require.NoError(t, err)

	w := a.do(http.MethodPost, "/api/verify_account", gin.H{"token": token}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"No user registered with that email"}`, w.Body.String())
}

func TestUsersCRUD(t *testing.T) {
	a := newTestApp(t, false, nil)
	admin := a.superuserHeaders()

	alice := a.createUser(admin, "alice@example.com", "123456")
	bob := a.createUser(admin, "bob@example.com", "123456")
	aliceID, bobID := alice["id"].(string), bob["id"].(string)

	aliceHeaders := a.bearer("alice@example.com", "123456")

	// Listing and creating is for superusers
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/users", nil, aliceHeaders).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/users", gin.H{"email": "x@example.com", "password": "1"}, aliceHeaders).Code)

	w := a.do(http.MethodGet, "/api/users?offset=0&limit=2", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = a.do(http.MethodGet, "/api/users", nil, admin)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 3)

	assert.Equal(t, http.StatusUnprocessableEntity, a.do(http.MethodGet, "/api/users?offset=-1", nil, admin).Code)

	w = a.do(http.MethodPost, "/api/users", gin.H{"email": "alice@example.com", "password": "123456"}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":"Email already registered"}`, w.Body.String())

	// Own record only
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/users/"+aliceID, nil, aliceHeaders).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/users/"+bobID, nil, aliceHeaders).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPut, "/api/users/"+bobID, gin.H{"full_name": "x"}, aliceHeaders).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodDelete, "/api/users/"+bobID, nil, aliceHeaders).Code)

	w = a.do(http.MethodGet, "/api/users/does-not-exist", nil, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"User not found"}`, w.Body.String())

	// Regular users can't promote themselves
	w = a.do(http.MethodPut, "/api/users/me", gin.H{"is_superuser": true}, aliceHeaders)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodPut, "/api/users/me", gin.H{"full_name": "Alice"}, aliceHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice", decode(t, w)["full_name"])

	w = a.do(http.MethodPut, "/api/users/"+aliceID, gin.H{"email": "bob@example.com"}, aliceHeaders)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":"Email already registered"}`, w.Body.String())

	w = a.do(http.MethodGet, "/api/users/"+bobID, nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob@example.com", decode(t, w)["email"])

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/users/me", nil, aliceHeaders).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/users/me", nil, aliceHeaders).Code)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/users/"+bobID, nil, admin).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/api/users/"+bobID, nil, admin).Code)
}

func TestGoogle_Disabled(t *testing.T) {
	a := newTestApp(t, false, nil)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/login_google", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/token_google?code=x&state=y", nil, nil).Code)
}

func TestGoogle_Login(t *testing.T) {
	a := newTestApp(t, false, fakeGoogle(t))
	a.createUser(a.superuserHeaders(), "user@example.com", "123456")

	w := a.do(http.MethodGet, "/api/login_google", nil, nil)
	require.Equal(t, http.StatusFound, w.Code)

	var state *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "oauth_state" {
			state = c
		}
	}
	require.NotNil(t, state)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, location.Query().Get("state"))

	cookie := http.Header{"Cookie": {state.Name + "=" + state.Value}}

	// State has to match the cookie
	w = a.do(http.MethodGet, "/api/token_google?code=good-code&state=forged", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"detail":"Could not validate credentials"}`, w.Body.String())

	w = a.do(http.MethodGet, "/api/token_google?code=bad-code&state="+state.Value, nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodGet, "/api/token_google?code=good-code&state="+state.Value, nil, cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	token := decode(t, w)
	assert.Contains(t, token, "refresh_token")

	w = a.do(http.MethodGet, "/api/users/me", nil, bearerHeader(token["access_token"].(string)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user@example.com", decode(t, w)["email"])
}

func fakeGoogle(t *testing.T) *oauth.Google {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"provider-access","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"email":"user@example.com","email_verified":true}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return oauth.NewGoogle(oauth.GoogleOptions{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/api/token_google",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/auth",
			TokenURL: srv.URL + "/token",
		},
		UserInfoURL: srv.URL + "/userinfo",
		HTTPClient:  srv.Client(),
	})
}
