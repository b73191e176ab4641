package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teammeng/foscion/internal/apperr"
)

type APIError struct {
	Error     string      `json:"error"`
	Code      string      `json:"code"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

// Output is the success body of every auth endpoint.
type Output struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, APIError{
		Error:     message,
		Code:      code,
		RequestID: requestIDFrom(ctx),
		Details:   details,
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// RespondAppError writes err with its kind's status. hideInternal replaces
// server-fault messages with a generic one.
func RespondAppError(ctx *gin.Context, err error, hideInternal bool) {
	kind := apperr.KindOf(err)
	RespondError(ctx, kind.HTTPStatus(), kind.String(), apperr.PublicMessage(err, hideInternal), nil)
}

func RespondOK(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusOK, Output{Success: true, Message: message})
}
