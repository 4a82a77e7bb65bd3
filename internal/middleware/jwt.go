package middleware // reusable HTTP middleware shared by the route groups

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kalentivan/tg/internal/auth"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the caller's identity into the request context. Handlers
// behind it read the authenticated user via c.Get("user_id") and the
// issuing device via c.Get("device_id"). Refresh tokens are rejected here:
// they authorize nothing but the refresh endpoint itself.
func JWTAuth(codec *auth.Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims, err := codec.Verify(raw)
			if err != nil || claims.Kind != auth.KindAccess {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			if claims.Subject == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			c.Set("user_id", claims.Subject)
			c.Set("device_id", claims.DeviceID)
			return next(c)
		}
	}
}
