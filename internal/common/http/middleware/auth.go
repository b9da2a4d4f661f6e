package middleware

import (
	"context"
	"strings"

	pkgerrors "classjudge/pkg/errors"
	"classjudge/pkg/utils/contextkey"
	"classjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID   int64
	Username string
	Role     string
}

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Authenticate(token string) (Identity, error)
}

// AuthMiddleware enforces JWT validation and optional role checks.
// With no roles given, any authenticated user passes.
func AuthMiddleware(verifier TokenVerifier, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth service unavailable")
			return
		}

		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.AbortWithErrorCode(c, pkgerrors.Unauthorized, "missing bearer token")
			return
		}
		identity, err := verifier.Authenticate(token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		if len(roles) > 0 && !hasRole(identity.Role, roles) {
			response.AbortWithErrorCode(c, pkgerrors.RoleNotAllowed, "insufficient role")
			return
		}

		c.Set("user_id", identity.UserID)
		c.Set("username", identity.Username)
		c.Set("user_role", identity.Role)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, identity.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
