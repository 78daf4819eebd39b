package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/psbkit/internal/convert"
	"github.com/samcharles93/psbkit/pkg/psb"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, ErrorBody{Error: APIError{Message: msg, Type: errType}})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

// writeCodecError maps codec failures to a status: malformed input is 400,
// well-formed input that cannot be resolved is 422.
func writeCodecError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, psb.ErrFormat):
		return writeError(c, http.StatusBadRequest, "format_error", err.Error())
	case errors.Is(err, convert.ErrSyntax):
		return writeError(c, http.StatusBadRequest, "syntax_error", err.Error())
	case errors.Is(err, psb.ErrIndex):
		return writeError(c, http.StatusUnprocessableEntity, "index_error", err.Error())
	case errors.Is(err, psb.ErrData):
		return writeError(c, http.StatusUnprocessableEntity, "data_error", err.Error())
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return writeError(c, http.StatusRequestEntityTooLarge, "too_large_error", err.Error())
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}
