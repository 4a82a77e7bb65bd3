package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/kalentivan/tg/internal/auth"
	"github.com/kalentivan/tg/internal/config"
	"github.com/kalentivan/tg/internal/gateway"
	"github.com/kalentivan/tg/internal/handler"
	"github.com/kalentivan/tg/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires the session endpoints. Register, login and refresh
// live under /v1/auth and are rate limited per client IP; logout and the
// identity endpoints require a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, codec *auth.Codec, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/auth")
	g.Use(middleware.NewTokenBucket(rl, rdb))
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)

	protected := e.Group("/v1")
	protected.Use(middleware.JWTAuth(codec))
	protected.POST("/auth/logout", a.Logout)
	protected.GET("/auth/sessions", a.ActiveSessions)
	protected.GET("/me", a.Me)
}

// RegisterUsers wires the user management endpoints under the protected group.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, codec *auth.Codec) {
	g := e.Group("/v1/users")
	g.Use(middleware.JWTAuth(codec))
	g.GET("", u.List)
	g.GET("/:id", u.Get)
	g.PATCH("/:id", u.Update)
	g.DELETE("/:id", u.Delete)
}

// RegisterChats wires chat management, history and the websocket gateway.
// The gateway authenticates inside Serve so that close codes can be sent
// over the upgraded connection.
func RegisterChats(e *echo.Echo, ch *handler.ChatHandler, gw *gateway.Gateway, codec *auth.Codec) {
	g := e.Group("/v1/chats")
	g.Use(middleware.JWTAuth(codec))
	g.POST("", ch.Create)
	g.GET("", ch.List)
	g.DELETE("/:id", ch.Delete)
	g.GET("/:id/members", ch.ListMembers)
	g.POST("/:id/members", ch.AddMember)
	g.DELETE("/:id/members/:user_id", ch.RemoveMember)
	g.GET("/:id/history", ch.History)

	e.GET("/v1/ws/:chat_id", gw.Serve)
}
