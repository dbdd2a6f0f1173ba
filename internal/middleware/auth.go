// auth.go validates bearer session tokens and places the resulting Actor in
// the request context. Capability checks happen in the registration core, not
// here; this middleware only establishes WHO is calling.
package middleware

import (
	"net/http"
	"strings"

	"github.com/consumer-registry/consumer-registry/internal/auth"
	"github.com/consumer-registry/consumer-registry/internal/db/repositories"
	"github.com/gin-gonic/gin"
)

// actorKey is the gin.Context key under which the authenticated Actor is stored.
const actorKey = "actor"

// ActorFromContext returns the authenticated Actor, or nil for anonymous
// requests (possible only on routes using OptionalAuthMiddleware).
func ActorFromContext(c *gin.Context) *auth.Actor {
	v, exists := c.Get(actorKey)
	if !exists {
		return nil
	}
	actor, ok := v.(*auth.Actor)
	if !ok {
		return nil
	}
	return actor
}

// AuthMiddleware validates the bearer token and requires a known, unblocked
// account. Scopes come from the user row, not the token, so a scope revocation
// takes effect on the next request rather than at token expiry.
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, errMsg := resolveActor(c, userRepo)
		if actor == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": errMsg,
			})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// OptionalAuthMiddleware resolves an Actor when a valid bearer token is
// present but lets anonymous requests through. Read-only routes use it: an
// anonymous caller simply gets the public redaction tier.
func OptionalAuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			if actor, _ := resolveActor(c, userRepo); actor != nil {
				c.Set(actorKey, actor)
			}
		}
		c.Next()
	}
}

func resolveActor(c *gin.Context, userRepo *repositories.UserRepository) (*auth.Actor, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, "Missing authorization header"
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, "Authorization header must start with 'Bearer '"
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return nil, "Authorization token is empty"
	}

	claims, err := auth.ValidateJWT(token)
	if err != nil {
		return nil, "Invalid or expired token"
	}

	user, err := userRepo.GetByCentralID(c.Request.Context(), claims.CentralID)
	if err != nil {
		return nil, "Failed to load user"
	}
	if user == nil {
		return nil, "User not found"
	}
	if user.Blocked {
		return nil, "Account is blocked"
	}

	return &auth.Actor{
		CentralID: user.CentralID,
		Username:  user.Username,
		Email:     user.Email,
		Scopes:    user.Scopes,
	}, ""
}
