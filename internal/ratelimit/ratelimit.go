// Package ratelimit throttles requests per client with named sliding-window
// policies.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Policy is a request budget over a window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

var (
	// API is the general budget for API routes.
	API = Policy{Name: "api", Limit: 10, Window: 10 * time.Second}
	// Auth guards sign-up and other credential endpoints.
	Auth = Policy{Name: "auth", Limit: 5, Window: time.Minute}
	// Search guards catalog listing.
	Search = Policy{Name: "search", Limit: 20, Window: 10 * time.Second}
	// Borrow guards borrow and return.
	Borrow = Policy{Name: "borrow", Limit: 3, Window: time.Minute}
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// SetHeaders writes the X-RateLimit-* headers. Reset is a unix timestamp in
// milliseconds.
func (r Result) SetHeaders(h http.Header) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(r.ResetAt.UnixMilli(), 10))
}

// Limiter decides whether a request identified by key fits a policy.
type Limiter interface {
	Allow(ctx context.Context, key string, p Policy) (Result, error)
}

// ClientIP identifies the caller: the first X-Forwarded-For hop when
// present, otherwise the connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type fallback struct {
	primary   Limiter
	secondary Limiter
	logger    *zap.Logger
}

// WithFallback consults primary and switches to secondary for any call the
// primary cannot answer.
func WithFallback(primary, secondary Limiter, logger *zap.Logger) Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *fallback) Allow(ctx context.Context, key string, p Policy) (Result, error) {
	res, err := f.primary.Allow(ctx, key, p)
	if err == nil {
		return res, nil
	}
	f.logger.Warn("rate limiter unavailable, using local fallback", zap.String("policy", p.Name), zap.Error(err))
	return f.secondary.Allow(ctx, key, p)
}
