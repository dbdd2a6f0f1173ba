package registry

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consumer-registry/consumer-registry/internal/consumers"
	"github.com/consumer-registry/consumer-registry/internal/middleware"
)

// TokenHandlers handles access token endpoints
type TokenHandlers struct {
	svc *consumers.Service
}

// NewTokenHandlers creates a new TokenHandlers instance
func NewTokenHandlers(svc *consumers.Service) *TokenHandlers {
	return &TokenHandlers{svc: svc}
}

// @Summary      Renounce an access token
// @Description  Revoke one access token. The token holder may revoke their own; consumers:manage may revoke anyone's. Already-revoked tokens report not found.
// @Tags         Tokens
// @Security     Bearer
// @Param        id  path  string  true  "Token id"
// @Success      204  "revoked"
// @Failure      403  {object}  map[string]interface{}  "Not the holder"
// @Failure      404  {object}  map[string]interface{}  "Token not found or already revoked"
// @Router       /api/v1/tokens/{id} [delete]
// RenounceHandler revokes a single access token
// DELETE /api/v1/tokens/:id
func (h *TokenHandlers) RenounceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)

		if err := h.svc.RenounceToken(c.Request.Context(), actor, c.ClientIP(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
