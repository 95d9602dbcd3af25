package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ShiftScope/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Detail  string           `json:"detail,omitempty"`
}

// statusForError maps an error to its HTTP status. A missed deadline is a
// gateway timeout; any other cancellation means the client went away.
func statusForError(err error) int {
	if errors.IsCancelled(err) {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return errors.StatusClientClosedRequest
	}
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		return http.StatusInternalServerError
	}
	return errors.HTTPStatusForCode(code)
}

// writeAppError writes err as an ErrorResponse. Server-side failures are
// masked behind the code's default message.
func writeAppError(c *gin.Context, err error) {
	status := statusForError(err)
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeInternal
	}

	resp := ErrorResponse{Code: code, Message: errors.DefaultMessageForCode(code)}
	var ae *errors.AppError
	if status < http.StatusInternalServerError && errors.As(err, &ae) {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}
