// render.go maps core results and the typed error taxonomy onto HTTP. The
// core never produces user-facing text; every error surfaced to a client is
// shaped here and nowhere else.
package registry

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consumer-registry/consumer-registry/internal/consumers"
	"github.com/consumer-registry/consumer-registry/internal/db/models"
)

// respondError translates a core error into an HTTP status and JSON body.
// Unknown errors become an opaque 500; the detail goes to the log, not the
// client.
func respondError(c *gin.Context, err error) {
	var missing *consumers.MissingFieldError
	if errors.As(err, &missing) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing required field",
			"field": missing.Field,
		})
		return
	}

	var invalid *consumers.InvalidFieldError
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Invalid field",
			"field":  invalid.Field,
			"reason": invalid.Reason,
		})
		return
	}

	var wrongStage *consumers.WrongStageError
	if errors.As(err, &wrongStage) {
		c.JSON(http.StatusConflict, gin.H{
			"error": wrongStage.Err.Error(),
			"stage": string(wrongStage.Actual),
		})
		return
	}

	switch {
	case errors.Is(err, consumers.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{
			"error": "A consumer with this name, version and owner already exists",
		})
	case errors.Is(err, consumers.ErrNoSuchConsumer):
		c.JSON(http.StatusNotFound, gin.H{"error": "Consumer not found"})
	case errors.Is(err, consumers.ErrNoSuchAccessToken):
		c.JSON(http.StatusNotFound, gin.H{"error": "Access token not found"})
	case errors.Is(err, consumers.ErrNoSuchUser):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, consumers.ErrInsufficientRights):
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient rights"})
	case errors.Is(err, consumers.ErrInvalidUser):
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Your account may not register consumers",
		})
	default:
		slog.Error("unhandled registry error", "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// viewJSON renders a capability-filtered consumer view. The view has already
// been redacted for the requesting actor; this is a plain field mapping.
// Restricted pointers render as JSON null, restricted strings as the hidden
// sentinel.
func viewJSON(v *consumers.ConsumerView) gin.H {
	return gin.H{
		"consumer_key":        v.ConsumerKey,
		"name":                v.Name,
		"version":             v.Version,
		"stage":               string(v.Stage),
		"oauth_version":       v.OAuthVersion,
		"registered_at":       v.RegisteredAt,
		"email":               v.Email,
		"description":         v.Description,
		"callback_url":        v.CallbackURL,
		"callback_is_prefix":  v.CallbackIsPrefix,
		"grants":              v.Grants,
		"allowed_grant_types": v.AllowedGrantTypes,
		"restrictions":        v.Restrictions,
		"secret_hash":         v.SecretHash,
		"rsa_public_key":      v.RSAPublicKey,
		"confidential":        v.Confidential,
		"owner_only":          v.OwnerOnly,
		"suppressed":          v.Suppressed,
		"deleted":             v.Deleted,
		"stage_changed":       v.StageChanged,
	}
}

// tokenJSON renders a freshly issued access token, including the one-time raw
// secret.
func tokenJSON(t *consumers.IssuedToken) gin.H {
	return gin.H{
		"id":        t.ID,
		"token_key": t.TokenKey,
		"secret":    t.Secret,
		"grants":    t.Grants,
		"wiki":      t.Wiki,
	}
}

// auditJSON renders one audit trail row.
func auditJSON(e *models.AuditLog) gin.H {
	return gin.H{
		"id":         e.ID,
		"actor_id":   e.ActorID,
		"action":     e.Action,
		"old_stage":  e.OldStage,
		"new_stage":  e.NewStage,
		"reason":     e.Reason,
		"metadata":   e.Metadata,
		"ip_address": e.IPAddress,
		"created_at": e.CreatedAt,
	}
}
