package authcore

import "context"

// Request-scoped metadata travels on the context instead of on every
// method signature. The engine reads it for device fingerprinting,
// throttle keys, and audit records; absent values are simply omitted.

type contextKey struct{ name string }

var (
	clientIPKey  = &contextKey{"client-ip"}
	userAgentKey = &contextKey{"user-agent"}
	requestIDKey = &contextKey{"request-id"}
)

// WithClientIP attaches the caller's IP address to the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the attached client IP, if any.
func ClientIPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey).(string)
	return ip, ok
}

// WithUserAgent attaches the caller's user agent string.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	if ua == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey, ua)
}

// UserAgentFromContext returns the attached user agent, if any.
func UserAgentFromContext(ctx context.Context) (string, bool) {
	ua, ok := ctx.Value(userAgentKey).(string)
	return ua, ok
}

// WithRequestID attaches a correlation id that audit events carry.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the attached request id, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}
