package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Role string

const (
	RolePatient    Role = "patient"
	RoleDoctor     Role = "doctor"
	RolePharmacist Role = "pharmacist"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RolePharmacist:
		return true
	}
	return false
}

// Caller is the authenticated account making the request. Its claims are
// trusted once the token verifies.
type Caller struct {
	ID   uuid.UUID
	Role Role
}

func (c Caller) Is(r Role) bool { return c.Role == r }

type contextKey string

const (
	callerKey contextKey = "caller"
	tokenKey  contextKey = "token"
)

// Dev headers carry the caller identity when DevAuthMiddleware is installed.
const (
	DevAccountIDHeader   = "X-Account-ID"
	DevAccountRoleHeader = "X-Account-Role"
)

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	Skipper    func(c echo.Context) bool

	// Revocations, when set, rejects tokens whose jti has been revoked.
	Revocations RevocationStore
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	keyFunc := func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := bearerToken(c.Request())
			if err != nil {
				return err
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			caller, err := callerFromClaims(claims)
			if err != nil {
				return err
			}

			ctx := WithCaller(c.Request().Context(), caller)
			if claims.ID != "" {
				if cfg.Revocations != nil {
					revoked, err := cfg.Revocations.IsRevoked(ctx, claims.ID)
					if err != nil {
						return echo.NewHTTPError(http.StatusServiceUnavailable, "token check unavailable").SetInternal(err)
					}
					if revoked {
						return echo.NewHTTPError(http.StatusUnauthorized, "token revoked")
					}
				}
				ctx = withToken(ctx, TokenInfo{ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time})
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func callerFromClaims(claims *Claims) (Caller, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Caller{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid subject claim")
	}
	role := Role(claims.Role)
	if !role.Valid() {
		return Caller{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid role claim")
	}
	return Caller{ID: id, Role: role}, nil
}

// DevAuthMiddleware trusts X-Account-ID and X-Account-Role headers. It exists
// for local development only and is never installed when ENV != development.
func DevAuthMiddleware(skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			h := c.Request().Header
			id, err := uuid.Parse(h.Get(DevAccountIDHeader))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid "+DevAccountIDHeader)
			}
			role := Role(h.Get(DevAccountRoleHeader))
			if !role.Valid() {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid "+DevAccountRoleHeader)
			}

			c.SetRequest(c.Request().WithContext(WithCaller(c.Request().Context(), Caller{ID: id, Role: role})))
			return next(c)
		}
	}
}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the caller placed by the auth middleware. ok is
// false on unauthenticated contexts.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok
}

// TokenInfo identifies the bearer token a request was authenticated with.
type TokenInfo struct {
	ID        string
	ExpiresAt time.Time
}

func withToken(ctx context.Context, t TokenInfo) context.Context {
	return context.WithValue(ctx, tokenKey, t)
}

// TokenFromContext is only set for JWT authenticated requests carrying a jti.
func TokenFromContext(ctx context.Context) (TokenInfo, bool) {
	t, ok := ctx.Value(tokenKey).(TokenInfo)
	return t, ok
}

// IssueToken signs an HS256 token for the account. Used by the seed command
// and tests; token issuance for end users is handled outside this service.
func IssueToken(cfg JWTConfig, caller Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   caller.ID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(caller.Role),
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}
