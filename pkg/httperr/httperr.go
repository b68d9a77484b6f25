// Package httperr turns service errors into HTTP responses
package httperr

import (
	"bitwise74/account-api/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Mapping ties an error to the status and detail it's reported with
type Mapping struct {
	Err    error
	Status int
	Detail string
}

var defaults = []Mapping{
	{service.ErrInvalidCredentials, http.StatusBadRequest, "Incorrect email or password"},
	{service.ErrInactiveUser, http.StatusBadRequest, "Inactive user"},
	{service.ErrInvalidToken, http.StatusBadRequest, "Invalid token"},
	{service.ErrInvalidGrant, http.StatusBadRequest, "Invalid refresh token"},
	{service.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{service.ErrEmailTaken, http.StatusBadRequest, "Email already registered"},
	{service.ErrUnauthenticated, http.StatusForbidden, "Could not validate credentials"},
	{service.ErrForbidden, http.StatusForbidden, "Forbidden"},
}

// Lookup returns how err should be reported. Overrides are checked before the
// defaults so an endpoint can word a shared error its own way. Anything that
// isn't a known service error is a 500.
func Lookup(err error, overrides ...Mapping) (int, string) {
	for _, m := range overrides {
		if errors.Is(err, m.Err) {
			return m.Status, m.Detail
		}
	}

	for _, m := range defaults {
		if errors.Is(err, m.Err) {
			return m.Status, m.Detail
		}
	}

	return http.StatusInternalServerError, "Internal server error"
}

// Abort writes the error response for err and stops the handler chain.
// Unexpected errors get logged together with the request ID.
func Abort(c *gin.Context, err error, overrides ...Mapping) {
	status, detail := Lookup(err, overrides...)

	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed", zap.Error(err), zap.String("requestID", c.GetString("requestID")))
	}

	if errors.Is(err, service.ErrUnauthenticated) {
		c.Header("WWW-Authenticate", "Bearer")
	}

	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// BadRequest is used when the request body or query can't be bound
func BadRequest(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "Request body size exceeds limit"})
		return
	}

	zap.L().Debug("Can't bind request", zap.Error(err), zap.String("requestID", c.GetString("requestID")))

	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
}
