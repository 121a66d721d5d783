package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mediastudio/studio-billing/pkg/auth"
	"github.com/mediastudio/studio-billing/pkg/models"
)

// Context keys set by JWTMiddleware.
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
)

// JWTMiddleware authenticates requests with a Supabase access token in the
// Authorization header.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "missing_token",
					Message: "Authorization header is required",
				})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token_format",
					Message: "Authorization header must be 'Bearer {token}'",
				})
			}

			claims, err := auth.ValidateJWT(parts[1], secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: err.Error(),
				})
			}

			c.Set(ContextUserID, claims.UserID())
			c.Set(ContextUserEmail, claims.Email)

			return next(c)
		}
	}
}

// UserID returns the authenticated user id, or "" outside JWTMiddleware.
func UserID(c echo.Context) string {
	id, _ := c.Get(ContextUserID).(string)
	return id
}
