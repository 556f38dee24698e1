package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// ErrorBody is the JSON body of every non-2xx response except step failures.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps a structured error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeForbidden:
		return http.StatusForbidden
	case schema.ErrCodeQuotaExceeded:
		return http.StatusTooManyRequests
	case schema.ErrCodeValidation:
		return http.StatusBadRequest
	case schema.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) (int, ErrorBody) {
	var se *schema.Error
	if errors.As(err, &se) {
		return statusFor(se.Code), ErrorBody{Code: se.Code, Message: se.Message, Details: se.Details}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, ErrorBody{
			Code:    strings.ToUpper(strings.ReplaceAll(http.StatusText(he.Code), " ", "_")),
			Message: fmt.Sprint(he.Message),
		}
	}
	return http.StatusInternalServerError, ErrorBody{Code: schema.ErrCodeExecution, Message: err.Error()}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request().Context(), "request failed",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Error("write error response", slog.String("error", err.Error()))
	}
}
