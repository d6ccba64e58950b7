package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/storage"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/rs/zerolog"
)

// Config selects how requests are authenticated
type Config struct {
	Secret     string
	TokenTTL   time.Duration
	OIDCIssuer string // when set, provider tokens are accepted too
	SkipAuth   bool
}

// Authenticator validates session tokens and puts the caller's claims on
// the request context
type Authenticator struct {
	issuer   *Issuer
	jwks     *JWKSManager
	skipAuth bool
	logger   zerolog.Logger
}

func NewAuthenticator(cfg Config, logger zerolog.Logger) (*Authenticator, error) {
	logger = logger.With().Str("component", "auth").Logger()

	issuer, err := NewIssuer(cfg.Secret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		issuer:   issuer,
		skipAuth: cfg.SkipAuth,
		logger:   logger,
	}
	if cfg.OIDCIssuer != "" {
		a.jwks, err = NewJWKSManager(cfg.OIDCIssuer, logger)
		if err != nil {
			return nil, err
		}
	}
	if cfg.SkipAuth {
		logger.Warn().Msg("SKIP_AUTH enabled - every request runs as the dev admin")
	}
	return a, nil
}

// Issuer returns the signer used for login tokens
func (a *Authenticator) Issuer() *Issuer {
	return a.issuer
}

// Middleware validates the bearer token
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health check
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		if a.skipAuth {
			ctx := WithUser(r.Context(), &Claims{
				Username: storage.InitialAdmin,
				Role:     types.RoleAdmin,
				Agent:    storage.InitialAdminAgent,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		tokenString := extractToken(r)
		if tokenString == "" {
			a.logger.Debug().Str("path", r.URL.Path).Msg("missing authorization token")
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		claims, err := a.validate(tokenString)
		if err != nil {
			a.logger.Debug().Err(err).Msg("token validation failed")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		a.logger.Debug().Str("username", claims.Username).Str("role", string(claims.Role)).Msg("user authenticated")
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
	})
}

func (a *Authenticator) validate(tokenString string) (*Claims, error) {
	claims, err := a.issuer.Parse(tokenString)
	if err == nil || a.jwks == nil {
		return claims, err
	}
	return a.jwks.Parse(tokenString)
}

// extractToken gets the token from Authorization header or query parameter
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString != authHeader {
			return tokenString
		}
	}

	// WebSocket clients cannot set headers
	return r.URL.Query().Get("token")
}

// RequireAdmin rejects callers without the admin role
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if !HasRole(claims, types.RoleAdmin) {
			http.Error(w, "Forbidden: admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePasswordCurrent rejects callers that still have to replace their
// initial password
func RequirePasswordCurrent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if claims.MustReset {
			http.Error(w, "Forbidden: password change required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
