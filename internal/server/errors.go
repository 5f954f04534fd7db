package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatlibre/internal/translate"
)

type requestError struct {
	Status  int
	Message string
}

func (e requestError) Error() string {
	return e.Message
}

func badRequest(message string) requestError {
	return requestError{Status: http.StatusBadRequest, Message: message}
}

type errorBody struct {
	Error string `json:"error"`
}

func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := http.StatusInternalServerError, "Internal server error"

		var reqErr requestError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &reqErr):
			status, message = reqErr.Status, reqErr.Message
		case errors.As(err, &httpErr):
			status = httpErr.Code
			message = http.StatusText(httpErr.Code)
			if m, ok := httpErr.Message.(string); ok && m != "" {
				message = m
			}
		default:
			logger.ErrorContext(c.Request().Context(), "unhandled error", "error", err)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, errorBody{Error: message})
	}
}

// toHTTPError maps orchestration failures onto short, stable messages. The
// cause never reaches the client.
func toHTTPError(err error) error {
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr
	case errors.Is(err, translate.ErrTooManyRequests):
		return requestError{Status: http.StatusTooManyRequests, Message: "Too many requests"}
	case errors.Is(err, translate.ErrServiceUnavailable):
		return requestError{Status: http.StatusServiceUnavailable, Message: "Service unavailable"}
	default:
		return requestError{Status: http.StatusInternalServerError, Message: "Internal server error"}
	}
}
