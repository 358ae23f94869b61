package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Claims are the bearer token claims. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	Skipper    func(echo.Context) bool
}

// JWTMiddleware verifies HS256 bearer tokens and stores the Principal on the
// request context.
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
	parser := jwt.NewParser(opts...)
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
			token, err := parser.ParseWithClaims(tokenStr, claims, keyFunc)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			p, err := principalFromClaims(claims)
			if err != nil {
				return err
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// Browsers cannot set headers on websocket upgrades.
		if t := r.URL.Query().Get("access_token"); t != "" && isUpgrade(r) {
			return t, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(token), nil
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func principalFromClaims(claims *Claims) (Principal, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "token subject is not a user id")
	}
	role := Role(claims.Role)
	if !role.Valid() {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "token carries an unknown role")
	}
	return Principal{UserID: id, Role: role}, nil
}

// DevUserID is the identity assumed by DevAuthMiddleware when no override is sent.
var DevUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

const (
	DevUserHeader = "X-Dev-User"
	DevRoleHeader = "X-Dev-Role"
)

// DevAuthMiddleware trusts the X-Dev-User and X-Dev-Role headers and falls
// back to an admin identity. Development only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := Principal{UserID: DevUserID, Role: RoleAdmin}

			if v := c.Request().Header.Get(DevUserHeader); v != "" {
				id, err := uuid.Parse(v)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid "+DevUserHeader+" header")
				}
				p.UserID = id
			}
			if v := c.Request().Header.Get(DevRoleHeader); v != "" {
				role := Role(v)
				if !role.Valid() {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid "+DevRoleHeader+" header")
				}
				p.Role = role
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}
