package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tably/orderd/internal/apperr"
)

// HTTPError represents a standard error in JSON.
// swagger:model
type HTTPError struct {
	// Error message
	// example: not found
	Error string `json:"error"`
	// Stable error kind
	// example: not_found
	Kind string `json:"kind,omitempty"`
	// Offending fields, for validation errors
	Fields []string `json:"fields,omitempty"`
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Fail maps an error to its HTTP status and writes the JSON body. Internal
// causes are not leaked to the caller.
func Fail(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		c.JSON(http.StatusInternalServerError, HTTPError{Error: "internal error"})
		return
	}
	body := HTTPError{Error: e.Msg, Kind: e.Kind.String(), Fields: e.Fields}
	if e.Kind == apperr.KindInternal || e.Kind == apperr.KindUnknown {
		body.Error = "internal error"
		body.Fields = nil
	}
	c.JSON(statusOf(e.Kind), body)
}
