package auth

import (
	"strings"

	domain "github.com/XuanSon0704/Reels-Chat/domain/realtime"
)

// ExtractCredential pulls the bearer token out of a handshake request,
// preferring the connection-level `token` query parameter and falling
// back to an Authorization header. Returns "" when neither is present.
func ExtractCredential(queryToken, authHeader string) string {
	if queryToken != "" {
		return queryToken
	}
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// Authenticate validates the credential presented at handshake time and
// produces the identity to bind to the connection. Any error here must
// fail the handshake; no degraded session is created.
func (m *JWTManager) Authenticate(queryToken, authHeader string) (domain.Identity, error) {
	credential := ExtractCredential(queryToken, authHeader)
	if credential == "" {
		return domain.Identity{}, ErrMissingToken
	}
	return m.ValidateToken(credential)
}
