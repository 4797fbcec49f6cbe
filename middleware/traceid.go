package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const TraceIDKey = "trace_id"
const TraceIDHeader = "X-Trace-ID"

type requestMetaKey struct{}

type requestMeta struct {
	traceID  string
	clientIP string
}

// TraceID injects a UUID trace ID into every request context and response header.
// The trace ID and client IP are also attached to the request's context.Context
// so hooks fired from handlers can read them.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Request = c.Request.WithContext(WithRequestMeta(c.Request.Context(), traceID, c.ClientIP()))
		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the Gin context.
func GetTraceID(c *gin.Context) string {
	if v, exists := c.Get(TraceIDKey); exists {
		return v.(string)
	}
	return ""
}

// WithRequestMeta attaches a trace ID and client IP to ctx.
func WithRequestMeta(ctx context.Context, traceID, clientIP string) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, requestMeta{traceID: traceID, clientIP: clientIP})
}

// TraceIDFrom returns the trace ID attached by WithRequestMeta, or "".
func TraceIDFrom(ctx context.Context) string {
	m, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return m.traceID
}

// ClientIPFrom returns the client IP attached by WithRequestMeta, or "".
func ClientIPFrom(ctx context.Context) string {
	m, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return m.clientIP
}
