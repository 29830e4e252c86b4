package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"studio-store/internal/http/middleware"
	apperrors "studio-store/pkg/errors"
	"studio-store/pkg/logger"

	"github.com/labstack/echo/v4"
)

const (
	jsonKeyError     = "error"
	jsonKeyCode      = "code"
	jsonKeyRequestID = "request_id"

	msgInternalError = "Internal server error"
	unknownRequestID = "unknown"
)

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, apperrors.ErrIdentityExpired):
		return http.StatusForbidden, "Identity expired"
	case errors.Is(err, apperrors.ErrInvalidDocument):
		return http.StatusBadRequest, "Invalid document"
	case errors.Is(err, apperrors.ErrBadRequest):
		return http.StatusBadRequest, "Bad request"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "Version conflict"
	case errors.Is(err, apperrors.ErrPersistenceFailure):
		return http.StatusInternalServerError, "Project was only partially stored"
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "Storage temporarily unavailable"
	default:
		return http.StatusInternalServerError, msgInternalError
	}
}

// CustomHTTPErrorHandler handles all errors returned by handlers and middleware.
// Client errors carry the AppError message; server errors carry a fixed message
// per kind and the detail only goes to the log.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := statusFor(err)
	errCode := apperrors.CodeOf(err)

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		message = fmt.Sprintf("%v", httpErr.Message)
		errCode = strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
	} else if code < http.StatusInternalServerError {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
	}

	requestID := middleware.GetRequestID(c)
	if requestID == "" {
		requestID = unknownRequestID
	}

	logged := logger.SanitizeLogMessage(err.Error())
	if code >= http.StatusInternalServerError {
		c.Logger().Errorf("server_error request_id=%s status=%d code=%s error=%s", requestID, code, errCode, logged)
	} else {
		c.Logger().Warnf("client_error request_id=%s status=%d code=%s error=%s", requestID, code, errCode, logged)
	}

	if err := c.JSON(code, map[string]interface{}{
		jsonKeyError:     message,
		jsonKeyCode:      errCode,
		jsonKeyRequestID: requestID,
	}); err != nil {
		c.Logger().Error(err)
	}
}
