package auth

import (
	"context"

	"github.com/dennisdiepolder/monti/agentkpi/internal/normalize"
	"github.com/dennisdiepolder/monti/agentkpi/internal/storage"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Username  string     `json:"username"`
	Role      types.Role `json:"role"`
	Agent     string     `json:"agent"`      // display name, matched against table rows
	MustReset bool       `json:"must_reset"` // only the password endpoint is open
	jwt.RegisteredClaims
}

// ClaimsFor builds the claims of a signed-in profile
func ClaimsFor(p storage.Profile) *Claims {
	return &Claims{
		Username:  p.Username,
		Role:      p.Role,
		Agent:     p.DisplayName,
		MustReset: p.MustResetPassword,
	}
}

type contextKey string

const UserContextKey contextKey = "user"

// WithUser returns a copy of ctx carrying claims
func WithUser(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// GetUserFromContext retrieves user claims from request context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}

// HasRole checks if user has specific role
func HasRole(claims *Claims, role types.Role) bool {
	return claims != nil && claims.Role == role
}

// AgentFilter resolves which agent's rows a caller may see. Admins get the
// requested agent, "" meaning everyone. Agents are pinned to their own name
// whatever they ask for. ok is false when the caller may see no rows at all:
// no claims, or an agent without an agent name.
func AgentFilter(claims *Claims, requested string) (agent string, ok bool) {
	if HasRole(claims, types.RoleAdmin) {
		return normalize.CleanAgent(requested), true
	}
	if claims == nil {
		return "", false
	}
	agent = normalize.CleanAgent(claims.Agent)
	return agent, agent != ""
}
