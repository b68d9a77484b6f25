package user

import (
	"bitwise74/account-api/internal"
	"bitwise74/account-api/internal/service"
	"bitwise74/account-api/pkg/httperr"
	"net/http"

	"github.com/gin-gonic/gin"
)

type verifyBody struct {
	Token string `json:"token" binding:"required"`
}

func UserVerify(c *gin.Context, d *internal.Deps) {
	var data verifyBody
	if err := c.ShouldBindJSON(&data); err != nil {
		httperr.BadRequest(c, err)
		return
	}

	err := d.Auth.VerifyAccount(c.Request.Context(), data.Token)
	if err != nil {
		httperr.Abort(c, err,
			httperr.Mapping{Err: service.ErrInvalidToken, Status: http.StatusBadRequest, Detail: "Invalid verification token"},
			httperr.Mapping{Err: service.ErrUserNotFound, Status: http.StatusNotFound, Detail: "No user registered with that email"},
		)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User verified",
	})
}
