package user

import (
	"bitwise74/account-api/internal"
	"bitwise74/account-api/internal/service"
	"bitwise74/account-api/pkg/httperr"
	"bitwise74/account-api/pkg/middleware"
	"net/http"

	"github.com/gin-gonic/gin"
)

type createBody struct {
	Email       string  `json:"email" binding:"required,email"`
	Password    string  `json:"password" binding:"required,password"`
	FullName    *string `json:"full_name"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser bool    `json:"is_superuser"`
}

type updateBody struct {
	Email       *string `json:"email" binding:"omitempty,email"`
	Password    *string `json:"password" binding:"omitempty,password"`
	FullName    *string `json:"full_name"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
	IsVerified  *bool   `json:"is_verified"`
}

func (b updateBody) input() service.UpdateUserInput {
	return service.UpdateUserInput{
		Email:       b.Email,
		Password:    b.Password,
		FullName:    b.FullName,
		IsActive:    b.IsActive,
		IsSuperuser: b.IsSuperuser,
		IsVerified:  b.IsVerified,
	}
}

type listQuery struct {
	Offset int `form:"offset,default=0" binding:"min=0"`
	Limit  int `form:"limit,default=100" binding:"min=0"`
}

func UserCreate(c *gin.Context, d *internal.Deps) {
	var data createBody
	if err := c.ShouldBindJSON(&data); err != nil {
		httperr.BadRequest(c, err)
		return
	}

	user, err := d.Users.Create(c.Request.Context(), middleware.CurrentUser(c), service.CreateUserInput{
		Email:       data.Email,
		Password:    data.Password,
		FullName:    data.FullName,
		IsActive:    data.IsActive,
		IsSuperuser: data.IsSuperuser,
	})
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func UserList(c *gin.Context, d *internal.Deps) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httperr.BadRequest(c, err)
		return
	}

	users, err := d.Users.List(c.Request.Context(), middleware.CurrentUser(c), q.Offset, q.Limit)
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}

func UserFetch(c *gin.Context, d *internal.Deps) {
	user, err := d.Users.Get(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func UserUpdate(c *gin.Context, d *internal.Deps) {
	update(c, d, c.Param("id"))
}

func UserDelete(c *gin.Context, d *internal.Deps) {
	remove(c, d, c.Param("id"))
}

func update(c *gin.Context, d *internal.Deps, id string) {
	var data updateBody
	if err := c.ShouldBindJSON(&data); err != nil {
		httperr.BadRequest(c, err)
		return
	}

	user, err := d.Users.Update(c.Request.Context(), middleware.CurrentUser(c), id, data.input())
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func remove(c *gin.Context, d *internal.Deps, id string) {
	if err := d.Users.Delete(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		httperr.Abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
