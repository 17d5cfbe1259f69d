package middlewares

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bodyconsumer/internal/auth"
	"bodyconsumer/internal/consume"
	"bodyconsumer/internal/ratelimit"

	"github.com/labstack/echo/v4"
)

// RateLimitHeaders lists the response headers set for limited scopes.
var RateLimitHeaders = []string{
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"RateLimit-Limit",
	"RateLimit-Remaining",
	"RateLimit-Reset",
}

type tokenVerifier interface {
	Authenticate(context.Context, string) (auth.Claims, error)
}

// RateLimitConfig is the per-window request budget of each consume class.
type RateLimitConfig struct {
	Window   time.Duration
	Read     int
	Buffered int
	Blob     int
}

func NewRateLimitMiddleware(verifier tokenVerifier, cfg RateLimitConfig) echo.MiddlewareFunc {
	// Anonymous clients share their address, so they get a quarter of the
	// per-token budget.
	perIP := func(n int) int {
		if n <= 0 {
			return 0
		}
		return max(n/4, 1)
	}
	return newRateLimitMiddlewareWithConfig(verifier, ratelimit.Config{
		Window: cfg.Window,
		Scopes: map[ratelimit.Scope]ratelimit.Limits{
			ratelimit.ScopeRead:     {IP: perIP(cfg.Read), Key: cfg.Read},
			ratelimit.ScopeBuffered: {IP: perIP(cfg.Buffered), Key: cfg.Buffered},
			ratelimit.ScopeBlob:     {IP: perIP(cfg.Blob), Key: cfg.Blob},
		},
	})
}

func newRateLimitMiddlewareWithConfig(verifier tokenVerifier, cfg ratelimit.Config) echo.MiddlewareFunc {
	limiter := ratelimit.New(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scope := requestScope(c)
			kind, bucket := resolveRateLimitBucket(c, verifier)

			result := limiter.Take(time.Now().UTC(), scope, kind, bucket)
			if result.Limit > 0 {
				setRateLimitHeaders(c.Response().Header(), result)
			}

			if !result.Allowed {
				c.Response().Header().Set(echo.HeaderRetryAfter, strconv.FormatInt(result.ResetIn, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error": "rate limit exceeded",
				})
			}
			return next(c)
		}
	}
}

// requestScope classifies consume requests by whether the body is held in
// memory or streamed to blob storage.
func requestScope(c echo.Context) ratelimit.Scope {
	switch strings.ToUpper(strings.TrimSpace(c.Request().Method)) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ratelimit.ScopeRead
	}
	if typ, err := consume.ParseType(c.Param("type")); err == nil && typ == consume.TypeBlob {
		return ratelimit.ScopeBlob
	}
	return ratelimit.ScopeBuffered
}

func resolveRateLimitBucket(c echo.Context, verifier tokenVerifier) (ratelimit.BucketKind, string) {
	token := auth.ExtractToken(c.Request())
	if token != "" && verifier != nil {
		claims, err := verifier.Authenticate(c.Request().Context(), token)
		if err == nil {
			subject := strings.TrimSpace(claims.Subject)
			if subject != "" {
				return ratelimit.BucketKey, subject
			}
		}
	}

	ip := strings.TrimSpace(c.RealIP())
	if ip == "" {
		ip = clientIPFromRemoteAddr(c.Request().RemoteAddr)
	}
	if ip == "" {
		ip = "unknown"
	}
	return ratelimit.BucketIP, ip
}

func setRateLimitHeaders(header http.Header, result ratelimit.Result) {
	limit := strconv.Itoa(result.Limit)
	remaining := strconv.Itoa(result.Remaining)
	resetEpoch := strconv.FormatInt(result.ResetAt, 10)
	resetDelay := strconv.FormatInt(result.ResetIn, 10)

	header.Set("X-RateLimit-Limit", limit)
	header.Set("X-RateLimit-Remaining", remaining)
	header.Set("X-RateLimit-Reset", resetEpoch)

	header.Set("RateLimit-Limit", limit)
	header.Set("RateLimit-Remaining", remaining)
	header.Set("RateLimit-Reset", resetDelay)
}

func clientIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return strings.TrimSpace(host)
}
