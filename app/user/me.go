package user

import (
	"bitwise74/account-api/internal"
	"bitwise74/account-api/pkg/middleware"
	"net/http"

	"github.com/gin-gonic/gin"
)

func UserMe(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentUser(c))
}

func UserUpdateMe(c *gin.Context, d *internal.Deps) {
	update(c, d, c.GetString("userID"))
}

func UserDeleteMe(c *gin.Context, d *internal.Deps) {
	remove(c, d, c.GetString("userID"))
}
