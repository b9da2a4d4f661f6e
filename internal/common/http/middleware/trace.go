package middleware

import (
	"context"
	"strings"

	"classjudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
)

// TraceContextMiddleware stamps every request with a trace id and a request
// id. Incoming header values are honored so callers can correlate retries;
// missing ones are generated. Both ids land in the request context (for the
// logger) and in the response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = stampID(c, ctx, traceIDHeader, contextkey.TraceID)
		ctx = stampID(c, ctx, requestIDHeader, contextkey.RequestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func stampID(c *gin.Context, ctx context.Context, header string, key any) context.Context {
	id := strings.TrimSpace(c.GetHeader(header))
	if id == "" {
		id = uuid.NewString()
	}
	c.Writer.Header().Set(header, id)
	return context.WithValue(ctx, key, id)
}
