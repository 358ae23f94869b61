package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorBody is the JSON envelope returned for every failed request.
type ErrorBody struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// DetailedError lets domain errors contribute extra response fields.
type DetailedError interface {
	error
	Details() map[string]any
}

// ErrorHandler renders errors in the {success:false,message} envelope.
// Unhandled errors become 500 without leaking their text.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := ErrorBody{Message: "internal server error"}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			body.Message = messageOf(he)
			var de DetailedError
			if errors.As(he.Internal, &de) {
				body.Details = de.Details()
			}
		} else {
			logger.Error().Err(err).
				Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func messageOf(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprintf("%v", m)
	}
}
