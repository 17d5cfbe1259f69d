package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"bodyconsumer/internal/store"

	"github.com/labstack/echo/v4"
)

// HeaderAPIToken carries a token for clients that cannot set Authorization.
const HeaderAPIToken = "X-API-Token"

var (
	ErrInvalidToken  = errors.New("invalid API token")
	ErrTokenDisabled = errors.New("token disabled")
)

type Claims struct {
	Subject string
	IsAdmin bool
}

const claimsContextKey = "auth_claims"

// Authenticator accepts the static admin token and, when a token store is
// configured, the hashed tokens it holds.
type Authenticator struct {
	tokens     *store.Store
	adminToken string
}

func NewAuthenticator(tokens *store.Store, adminToken string) *Authenticator {
	return &Authenticator{
		tokens:     tokens,
		adminToken: adminToken,
	}
}

func (a *Authenticator) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := extractToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing API token")
		}

		claims, err := a.Authenticate(c.Request().Context(), token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid API token")
		}
		c.Set(claimsContextKey, claims)

		return next(c)
	}
}

// RequireAdmin rejects requests whose claims are not admin. It must run
// after Middleware.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, ok := GetClaims(c)
		if !ok || !claims.IsAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "admin token required")
		}
		return next(c)
	}
}

func (a *Authenticator) Authenticate(ctx context.Context, token string) (Claims, error) {
	if a.adminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) == 1 {
		return Claims{Subject: "admin", IsAdmin: true}, nil
	}
	if a.tokens == nil {
		return Claims{}, ErrInvalidToken
	}

	t, err := a.tokens.AuthenticateToken(ctx, HashToken(token))
	if err != nil {
		if store.IsNotFound(err) {
			return Claims{}, ErrInvalidToken
		}
		return Claims{}, err
	}
	if t.Disabled {
		return Claims{}, ErrTokenDisabled
	}
	a.tokens.TouchTokenLastUsed(ctx, t.ID)

	return Claims{Subject: t.Subject, IsAdmin: t.IsAdmin}, nil
}

// HashToken is the form tokens are stored in.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func GetClaims(c echo.Context) (Claims, bool) {
	raw := c.Get(claimsContextKey)
	if raw == nil {
		return Claims{}, false
	}
	claims, ok := raw.(Claims)
	return claims, ok
}

// ExtractToken reads the bearer token or the X-API-Token header.
func ExtractToken(r *http.Request) string { return extractToken(r) }

func extractToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return strings.TrimSpace(r.Header.Get(HeaderAPIToken))
}
