// Package reqctx carries a per-request correlation ID through the
// scrape pipeline so log lines and response envelopes can be matched.
package reqctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

type key int

const requestKey key = 0

type RequestContext struct {
	RequestID string
	StartTime time.Time
}

// WithRequestContext attaches a fresh request ID unless one is already
// present, so nested invocations share the outer ID.
func WithRequestContext(ctx context.Context) context.Context {
	if rc, ok := ctx.Value(requestKey).(*RequestContext); ok && rc != nil {
		return ctx
	}
	return context.WithValue(ctx, requestKey, &RequestContext{
		RequestID: generateID(),
		StartTime: time.Now(),
	})
}

// GetRequestContext returns the request context, or a placeholder when
// the caller never attached one.
func GetRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestKey).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{
		RequestID: "unknown",
		StartTime: time.Now(),
	}
}

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
