// transitions.go implements the review endpoints: the stage transitions a
// consumer moves through after proposal, plus the audit trail behind them.
package registry

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/consumer-registry/consumer-registry/internal/middleware"
)

// TransitionRequest represents the body of a stage transition. Suppress is
// honored on reject and disable only.
type TransitionRequest struct {
	Reason   string `json:"reason"`
	Suppress bool   `json:"suppress"`
}

// @Summary      Approve a consumer
// @Description  Move a proposed consumer to approved. For owner-only consumers the owner's access token is issued atomically and its secret returned exactly once. Requires consumers:manage.
// @Tags         Review
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        key  path  string  true  "Consumer key"
// @Success      200  {object}  map[string]interface{}  "consumer, access_token?"
// @Failure      403  {object}  map[string]interface{}  "Insufficient rights or own proposal"
// @Failure      404  {object}  map[string]interface{}  "Consumer not found"
// @Failure      409  {object}  map[string]interface{}  "Consumer not proposed"
// @Router       /api/v1/consumers/{key}/approve [post]
// ApproveHandler approves a proposed consumer
// POST /api/v1/consumers/:key/approve
func (h *ConsumerHandlers) ApproveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		req, ok := bindTransition(c)
		if !ok {
			return
		}

		result, err := h.svc.Approve(c.Request.Context(), actor, c.ClientIP(), c.Param("key"), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}

		body := gin.H{"consumer": viewJSON(result.View)}
		if result.AccessToken != nil {
			body["access_token"] = tokenJSON(result.AccessToken)
		}
		c.JSON(http.StatusOK, body)
	}
}

// @Summary      Reject a consumer
// @Description  Move a proposed consumer to rejected, optionally suppressing it in the same step. Requires consumers:manage; suppression additionally requires consumers:suppress.
// @Tags         Review
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        key  path  string  true  "Consumer key"
// @Success      200  {object}  map[string]interface{}  "consumer"
// @Failure      403  {object}  map[string]interface{}  "Insufficient rights or own proposal"
// @Failure      404  {object}  map[string]interface{}  "Consumer not found"
// @Failure      409  {object}  map[string]interface{}  "Consumer not proposed"
// @Router       /api/v1/consumers/{key}/reject [post]
// RejectHandler rejects a proposed consumer
// POST /api/v1/consumers/:key/reject
func (h *ConsumerHandlers) RejectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		req, ok := bindTransition(c)
		if !ok {
			return
		}

		result, err := h.svc.Reject(c.Request.Context(), actor, c.ClientIP(), c.Param("key"), req.Reason, req.Suppress)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"consumer": viewJSON(result.View)})
	}
}

// @Summary      Disable a consumer
// @Description  Move an approved consumer to disabled and revoke all of its outstanding access tokens. Requires consumers:manage; suppression additionally requires consumers:suppress.
// @Tags         Review
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        key  path  string  true  "Consumer key"
// @Success      200  {object}  map[string]interface{}  "consumer, tokens_revoked"
// @Failure      403  {object}  map[string]interface{}  "Insufficient rights"
// @Failure      404  {object}  map[string]interface{}  "Consumer not found"
// @Failure      409  {object}  map[string]interface{}  "Consumer not approved"
// @Router       /api/v1/consumers/{key}/disable [post]
// DisableHandler disables an approved consumer
// POST /api/v1/consumers/:key/disable
func (h *ConsumerHandlers) DisableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		req, ok := bindTransition(c)
		if !ok {
			return
		}

		result, err := h.svc.Disable(c.Request.Context(), actor, c.ClientIP(), c.Param("key"), req.Reason, req.Suppress)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"consumer":       viewJSON(result.View),
			"tokens_revoked": result.TokensRevoked,
		})
	}
}

// @Summary      Re-enable a consumer
// @Description  Move a disabled consumer back to approved. Tokens revoked by the disable stay revoked. Requires consumers:manage.
// @Tags         Review
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        key  path  string  true  "Consumer key"
// @Success      200  {object}  map[string]interface{}  "consumer"
// @Failure      403  {object}  map[string]interface{}  "Insufficient rights"
// @Failure      404  {object}  map[string]interface{}  "Consumer not found"
// @Failure      409  {object}  map[string]interface{}  "Consumer not disabled"
// @Router       /api/v1/consumers/{key}/reenable [post]
// ReenableHandler re-enables a disabled consumer
// POST /api/v1/consumers/:key/reenable
func (h *ConsumerHandlers) ReenableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		req, ok := bindTransition(c)
		if !ok {
			return
		}

		result, err := h.svc.Reenable(c.Request.Context(), actor, c.ClientIP(), c.Param("key"), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"consumer": viewJSON(result.View)})
	}
}

// @Summary      Consumer audit trail
// @Description  List the transition history of a consumer, newest first. Requires audit:read.
// @Tags         Review
// @Security     Bearer
// @Produce      json
// @Param        key     path   string  true   "Consumer key"
// @Param        limit   query  int     false  "Page size, max 200 (default 50)"
// @Param        offset  query  int     false  "Page offset"
// @Success      200  {object}  map[string]interface{}  "entries, pagination"
// @Failure      403  {object}  map[string]interface{}  "Missing audit:read"
// @Failure      404  {object}  map[string]interface{}  "Consumer not found"
// @Router       /api/v1/consumers/{key}/audit [get]
// AuditTrailHandler lists a consumer's audit trail
// GET /api/v1/consumers/:key/audit?limit=&offset=
func (h *ConsumerHandlers) AuditTrailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		entries, total, err := h.svc.AuditTrail(c.Request.Context(), actor, c.Param("key"), limit, offset)
		if err != nil {
			respondError(c, err)
			return
		}

		rows := make([]gin.H, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, auditJSON(e))
		}

		c.JSON(http.StatusOK, gin.H{
			"entries": rows,
			"pagination": gin.H{
				"limit":  limit,
				"offset": offset,
				"total":  total,
			},
		})
	}
}

// @Summary      Resolve a username
// @Description  Map a display username to its central account id, the lookup collaborators use before granting ownership.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        username  path  string  true  "Display username"
// @Success      200  {object}  map[string]interface{}  "central_id, username"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/users/{username} [get]
// ResolveUserHandler resolves a username to a central account
// GET /api/v1/users/:username
func (h *ConsumerHandlers) ResolveUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.svc.ResolveUser(c.Request.Context(), c.Param("username"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"central_id": user.CentralID,
			"username":   user.Username,
		})
	}
}

// bindTransition binds the optional transition body. An empty body is valid;
// a malformed one reports 400 and aborts the handler.
func bindTransition(c *gin.Context) (*TransitionRequest, bool) {
	var req TransitionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return nil, false
		}
	}
	return &req, true
}
