package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes caps auth request bodies.
const DefaultMaxBodyBytes int64 = 1 << 16

func MaxBodyBytes(max int64) gin.HandlerFunc {
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}

	return func(ctx *gin.Context) {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, max)

		ctx.Next()
	}
}
