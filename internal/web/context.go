package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/ev2/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.WithRequestInfo(ctx, core.RequestInfo{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
}

// clientIP strips the port from RemoteAddr. TrustedRealIP has already
// replaced RemoteAddr when the request came through a trusted proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
