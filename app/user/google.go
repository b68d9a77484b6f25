package user

import (
	"bitwise74/account-api/internal"
	"bitwise74/account-api/internal/service"
	"bitwise74/account-api/pkg/httperr"
	"bitwise74/account-api/pkg/util"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	stateCookie    = "oauth_state"
	stateCookieAge = 10 * 60
)

var unauthenticated = httperr.Mapping{
	Err:    service.ErrUnauthenticated,
	Status: http.StatusUnauthorized,
	Detail: "Could not validate credentials",
}

// GoogleLogin sends the user off to Google's consent screen
func GoogleLogin(c *gin.Context, d *internal.Deps) {
	if d.Google == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"detail": "Google login is not enabled",
		})
		return
	}

	state, err := util.GenerateToken(16)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, stateCookieAge, "/", "", d.Config.Host.SSLEnabled, true)
	c.Redirect(http.StatusFound, d.Google.AuthCodeURL(state))
}

// GoogleToken is the redirect target registered with Google. It exchanges
// the code for the verified email and logs that user in.
func GoogleToken(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	if d.Google == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"detail": "Google login is not enabled",
		})
		return
	}

	expected, err := c.Cookie(stateCookie)
	state := c.Query("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		zap.L().Debug("OAuth state mismatch", zap.String("requestID", requestID))
		httperr.Abort(c, service.ErrUnauthenticated, unauthenticated)
		return
	}

	c.SetCookie(stateCookie, "", -1, "/", "", d.Config.Host.SSLEnabled, true)

	pair, err := d.Auth.LoginWithProvider(c.Request.Context(), d.Google, c.Query("code"))
	if err != nil {
		httperr.Abort(c, err, unauthenticated)
		return
	}

	c.JSON(http.StatusCreated, pair)
}
