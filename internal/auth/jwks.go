package auth

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/dennisdiepolder/monti/agentkpi/internal/normalize"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// JWKSManager verifies tokens from an external OIDC provider
type JWKSManager struct {
	jwks       keyfunc.Keyfunc
	issuerURL  string
	mu         sync.RWMutex
	lastUpdate time.Time
	logger     zerolog.Logger
}

// NewJWKSManager fetches the provider's signing keys
func NewJWKSManager(issuerURL string, logger zerolog.Logger) (*JWKSManager, error) {
	m := &JWKSManager{issuerURL: issuerURL, logger: logger}
	if err := m.refresh(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *JWKSManager) refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Keycloak layout
	jwksURL := strings.TrimSuffix(m.issuerURL, "/") + "/protocol/openid-connect/certs"
	m.logger.Info().Str("url", jwksURL).Msg("fetching JWKS")

	k, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return fmt.Errorf("failed to create keyfunc: %w", err)
	}

	m.jwks = k
	m.lastUpdate = time.Now()
	m.logger.Info().Msg("JWKS loaded")
	return nil
}

func (m *JWKSManager) getKeyfunc() jwt.Keyfunc {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.jwks == nil {
		return nil
	}
	return m.jwks.Keyfunc
}

// Parse verifies an OIDC token and maps it onto dashboard claims
func (m *JWKSManager) Parse(tokenString string) (*Claims, error) {
	kf := m.getKeyfunc()
	if kf == nil {
		return nil, fmt.Errorf("JWKS not available")
	}

	mapClaims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, mapClaims, kf,
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}))
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claimsFromOIDC(mapClaims), nil
}

func claimsFromOIDC(mapClaims jwt.MapClaims) *Claims {
	claims := &Claims{Role: roleFromOIDC(mapClaims)}

	if u, ok := mapClaims["preferred_username"].(string); ok {
		claims.Username = u
	} else if email, ok := mapClaims["email"].(string); ok {
		claims.Username = email
	}
	if name, ok := mapClaims["name"].(string); ok {
		claims.Agent = normalize.CleanAgent(name)
	}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	return claims
}

// roleFromOIDC reads Keycloak realm roles and Cognito groups. Anything that
// is not an admin is an agent.
func roleFromOIDC(mapClaims jwt.MapClaims) types.Role {
	if realmAccess, ok := mapClaims["realm_access"].(map[string]interface{}); ok {
		if roles, ok := realmAccess["roles"].([]interface{}); ok {
			for _, role := range roles {
				if s, ok := role.(string); ok && s == "admin" {
					return types.RoleAdmin
				}
			}
		}
	}

	if groups, ok := mapClaims["cognito:groups"].([]interface{}); ok {
		for _, group := range groups {
			if s, ok := group.(string); ok && strings.Contains(s, "admin") {
				return types.RoleAdmin
			}
		}
	}

	return types.RoleAgent
}
