package user

import (
	"bitwise74/account-api/internal"
	"bitwise74/account-api/internal/service"
	"bitwise74/account-api/pkg/httperr"
	"net/http"

	"github.com/gin-gonic/gin"
)

type refreshBody struct {
	// Checked by the service so a missing grant type reads as a bad token
	GrantType string `json:"grant_type"`
	Token     string `json:"token" binding:"required"`
}

func UserRefresh(c *gin.Context, d *internal.Deps) {
	var data refreshBody
	if err := c.ShouldBindJSON(&data); err != nil {
		httperr.BadRequest(c, err)
		return
	}

	pair, err := d.Auth.Refresh(c.Request.Context(), data.GrantType, data.Token)
	if err != nil {
		httperr.Abort(c, err, httperr.Mapping{
			Err:    service.ErrInvalidToken,
			Status: http.StatusBadRequest,
			Detail: "Invalid refresh token",
		})
		return
	}

	c.JSON(http.StatusCreated, pair)
}
