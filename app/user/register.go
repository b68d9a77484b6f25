package user

import (
	"bitwise74/account-api/internal"
	"bitwise74/account-api/internal/service"
	"bitwise74/account-api/pkg/httperr"
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerBody struct {
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,password"`
	FullName *string `json:"full_name"`
}

func UserRegister(c *gin.Context, d *internal.Deps) {
	var data registerBody
	if err := c.ShouldBindJSON(&data); err != nil {
		httperr.BadRequest(c, err)
		return
	}

	user, err := d.Auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    data.Email,
		Password: data.Password,
		FullName: data.FullName,
	})
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}
