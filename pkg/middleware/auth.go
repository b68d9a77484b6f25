package middleware

import (
	"bitwise74/account-api/internal/model"
	"bitwise74/account-api/internal/service"
	"bitwise74/account-api/pkg/httperr"
	"strings"

	"github.com/gin-gonic/gin"
)

// NewAuthMiddleware resolves the bearer token into the calling user. Inactive
// users are rejected. On success the user is set as "user" and its ID as
// "userID".
func NewAuthMiddleware(g *service.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := g.CurrentUser(c.Request.Context(), bearerToken(c))
		if err != nil {
			httperr.Abort(c, err)
			return
		}

		if err := service.RequireActive(user); err != nil {
			httperr.Abort(c, err)
			return
		}

		c.Set("user", user)
		c.Set("userID", user.ID)
		c.Next()
	}
}

// NewSuperuserMiddleware must run after NewAuthMiddleware
func NewSuperuserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.RequireSuperuser(CurrentUser(c)); err != nil {
			httperr.Abort(c, err)
			return
		}

		c.Next()
	}
}

// CurrentUser returns the user set by NewAuthMiddleware
func CurrentUser(c *gin.Context) *model.User {
	return c.MustGet("user").(*model.User)
}

func bearerToken(c *gin.Context) string {
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}
