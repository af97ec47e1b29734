// internal/api/errors.go
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"vda5050-bridge/internal/adapter"
	"vda5050-bridge/internal/mapping"
	"vda5050-bridge/internal/messaging"
	"vda5050-bridge/internal/models"
	"vda5050-bridge/internal/order"
	"vda5050-bridge/internal/utils"
)

// AppError carries the HTTP status and the message shown to the client.
type AppError struct {
	Code    int    // HTTP status code
	Message string // user-facing message
	err     error  // logged, never returned
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.err
}

func newAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, err: err}
}

// NewBadRequestError 400 에러 생성
func NewBadRequestError(message string, err ...error) *AppError {
	e := newAppError(http.StatusBadRequest, message, nil)
	if len(err) > 0 {
		e.err = err[0]
	}
	return e
}

// NewNotFoundError 404 에러 생성
func NewNotFoundError(message string) *AppError {
	return newAppError(http.StatusNotFound, message, nil)
}

// commandError maps the adapter's errors to HTTP errors.
func commandError(err error) *AppError {
	var (
		rejection  *order.RejectionError
		validation *models.ValidationError
		outOfRange *models.RangeError
	)
	switch {
	case errors.Is(err, adapter.ErrQueueFull):
		return newAppError(http.StatusTooManyRequests, err.Error(), err)
	case errors.As(err, &rejection):
		return newAppError(http.StatusConflict, err.Error(), err)
	case errors.Is(err, mapping.ErrMalformedCommand), errors.As(err, &validation), errors.As(err, &outOfRange):
		return newAppError(http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, adapter.ErrNotEnabled), errors.Is(err, messaging.ErrNotConnected):
		return newAppError(http.StatusServiceUnavailable, err.Error(), err)
	}
	return newAppError(http.StatusInternalServerError, "An unexpected internal error occurred.", err)
}

// ErrorHandler renders errors as StandardResponse and logs their cause.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	log := utils.Logger.WithFields(logrus.Fields{
		"component": "api",
		"method":    c.Request().Method,
		"path":      c.Path(),
	})

	var (
		appErr  *AppError
		httpErr *echo.HTTPError
	)
	code, message := http.StatusInternalServerError, "An unexpected internal error occurred."
	switch {
	case errors.As(err, &appErr):
		code, message = appErr.Code, appErr.Message
		if cause := appErr.Unwrap(); cause != nil {
			log.WithError(cause).Infof("request failed with %d", code)
		}
	case errors.As(err, &httpErr):
		code = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	default:
		log.WithError(err).Errorf("unhandled error of type %T", err)
	}

	if err := c.JSON(code, ErrorResponse(message)); err != nil {
		log.WithError(err).Error("failed to write error response")
	}
}
