package errors

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/mediastudio/studio-billing/pkg/domain"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"github.com/mediastudio/studio-billing/pkg/models"
)

// FromDomain writes the response for a domain error. Clients get a stable
// code and a generic message; the detail goes to the log and, for server
// errors, to Sentry.
func FromDomain(c echo.Context, log logger.Logger, err error) error {
	switch domain.GetErrorCode(err) {
	case domain.ErrCodeInvalidSignature:
		log.Warn("request rejected", "path", c.Request().URL.Path, "error", err)
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_signature",
			Message: "Webhook signature verification failed.",
		})
	case domain.ErrCodeMalformedEvent:
		log.Warn("request rejected", "path", c.Request().URL.Path, "error", err)
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "malformed_event",
			Message: "Webhook payload is not a valid event.",
		})
	case domain.ErrCodeNotFound:
		return NotFoundError(c, err.Error())
	case domain.ErrCodeUnauthorized:
		return UnauthorizedError(c, err.Error())
	case domain.ErrCodeConfiguration:
		return serverError(c, log, err, "configuration_error", "The service is not configured. Please try again later.")
	case domain.ErrCodePersistence:
		return DatabaseError(c, log, err)
	case domain.ErrCodeUpstream:
		return serverError(c, log, err, "upstream_error", "The payment provider could not be reached. Please try again later.")
	default:
		return InternalError(c, log, err)
	}
}

// DatabaseError returns a generic database error without exposing internal details
func DatabaseError(c echo.Context, log logger.Logger, err error) error {
	return serverError(c, log, err, "database_error", "A database error occurred. Please try again later.")
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, log logger.Logger, err error) error {
	return serverError(c, log, err, "internal_error", "An internal error occurred. Please try again later.")
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context, reason string) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}

// NotFoundError returns a generic not found error
func NotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "The requested resource was not found.",
	})
}

func serverError(c echo.Context, log logger.Logger, err error, code, message string) error {
	log.Error("request failed", "path", c.Request().URL.Path, "code", code, "error", err)
	report(c, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// report sends err to Sentry through the request hub when sentryecho is
// installed. Without an initialized client this is a no-op.
func report(c echo.Context, err error) {
	hub := sentryecho.GetHubFromContext(c)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_code", domain.GetErrorCode(err))
		scope.SetTag("path", c.Path())
		hub.CaptureException(err)
	})
}
