package user

import (
	"bitwise74/account-api/internal"
	"bitwise74/account-api/pkg/httperr"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OAuth2 password grant, so the email arrives as "username"
type loginBody struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

func UserLogin(c *gin.Context, d *internal.Deps) {
	var data loginBody
	if err := c.ShouldBind(&data); err != nil {
		httperr.BadRequest(c, err)
		return
	}

	pair, err := d.Auth.Login(c.Request.Context(), data.Username, data.Password)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, pair)
}
