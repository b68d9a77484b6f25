// Package app wires the HTTP endpoints together
package app

import (
	"bitwise74/account-api/app/root"
	"bitwise74/account-api/app/user"
	"bitwise74/account-api/internal"
	"bitwise74/account-api/pkg/middleware"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxBodySize = 1 << 20

func NewRouter(d *internal.Deps) *gin.Engine {
	router := gin.New()

	corsCfg := cors.Config{
		AllowOrigins:     d.Config.Host.CORS,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// cors panics on an empty origin list
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}

	router.Use(
		cors.New(corsCfg),
		ginzap.RecoveryWithZap(zap.L(), true),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true

	auth := middleware.NewAuthMiddleware(d.Guard)
	superuser := middleware.NewSuperuserMiddleware()
	limit := middleware.BodySizeLimiter(maxBodySize)

	m := router.Group("/api", limit)
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", root.Heartbeat)

		// POST /api/token		-> Logs in with email and password
		m.POST("/token", func(c *gin.Context) { user.UserLogin(c, d) })

		// POST /api/refresh_token	-> Trades a refresh token for a new access token
		m.POST("/refresh_token", func(c *gin.Context) { user.UserRefresh(c, d) })

		// POST /api/register		-> Registers a new user
		m.POST("/register", func(c *gin.Context) { user.UserRegister(c, d) })

		// POST /api/verify_account	-> Verifies the email of a new user
		m.POST("/verify_account", func(c *gin.Context) { user.UserVerify(c, d) })

		// GET /api/login_google	-> Redirects to the Google consent screen
		m.GET("/login_google", func(c *gin.Context) { user.GoogleLogin(c, d) })

		// GET /api/token_google	-> Google redirects back here with the code
		m.GET("/token_google", func(c *gin.Context) { user.GoogleToken(c, d) })
	}

	u := m.Group("/users", auth)
	{
		// GET /api/users		-> Lists users, superusers only
		u.GET("", superuser, func(c *gin.Context) { user.UserList(c, d) })

		// POST /api/users		-> Creates a user, superusers only
		u.POST("", superuser, func(c *gin.Context) { user.UserCreate(c, d) })

		// GET /api/users/me		-> Returns the logged in user
		u.GET("/me", user.UserMe)

		// PUT /api/users/me		-> Updates the logged in user
		u.PUT("/me", func(c *gin.Context) { user.UserUpdateMe(c, d) })

		// DELETE /api/users/me		-> Deletes the logged in user
		u.DELETE("/me", func(c *gin.Context) { user.UserDeleteMe(c, d) })

		// GET /api/users/:id		-> Returns a user by their ID
		u.GET("/:id", func(c *gin.Context) { user.UserFetch(c, d) })

		// PUT /api/users/:id		-> Updates a user by their ID
		u.PUT("/:id", func(c *gin.Context) { user.UserUpdate(c, d) })

		// DELETE /api/users/:id	-> Deletes a user by their ID
		u.DELETE("/:id", func(c *gin.Context) { user.UserDelete(c, d) })
	}

	return router
}
