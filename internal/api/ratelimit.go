package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/watchlogapp/watchlog-server/internal/ratelimit"
)

// RateLimiter is the keyed token-bucket limiter used by the API.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter creates a limiter allowing ratePerInterval requests per interval per key.
func NewRateLimiter(ratePerInterval int, interval time.Duration, burst int) *RateLimiter {
	rps := float64(ratePerInterval) / interval.Seconds()
	return ratelimit.New(rps, burst)
}

// rateLimitByIP is a huma middleware that throttles an operation per client IP.
func (s *Server) rateLimitByIP(limiter *RateLimiter) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		ip := clientIP(ctx)
		if !limiter.Allow(ip) {
			s.logger.Warn("rate limit exceeded", "ip", ip, "path", ctx.URL().Path)
			_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}
		next(ctx)
	}
}

// clientIP extracts the client IP, preferring X-Forwarded-For and X-Real-IP over the remote address.
func clientIP(ctx huma.Context) string {
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}
	addr := ctx.RemoteAddr()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
