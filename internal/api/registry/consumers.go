// Package registry implements the HTTP handlers of the consumer registration
// API. Handlers are thin: they bind request parameters, resolve the acting
// identity from the request context, call the registration core, and shape the
// result. Every authorization decision lives in the core, never here.
package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/consumer-registry/consumer-registry/internal/auth"
	"github.com/consumer-registry/consumer-registry/internal/consumers"
	"github.com/consumer-registry/consumer-registry/internal/db/models"
	"github.com/consumer-registry/consumer-registry/internal/middleware"
)

// ConsumerHandlers handles consumer registration endpoints
type ConsumerHandlers struct {
	svc *consumers.Service
}

// NewConsumerHandlers creates a new ConsumerHandlers instance
func NewConsumerHandlers(svc *consumers.Service) *ConsumerHandlers {
	return &ConsumerHandlers{svc: svc}
}

// @Summary      Propose a consumer
// @Description  Register a new OAuth consumer in the proposed stage. Accepts both the legacy and the modern parameter vocabulary; the raw shared secret is returned exactly once.
// @Tags         Consumers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}  "name, consumer_key, secret, consumer"
// @Failure      400  {object}  map[string]interface{}  "Missing or invalid field"
// @Failure      403  {object}  map[string]interface{}  "Account may not register consumers"
// @Failure      409  {object}  map[string]interface{}  "Duplicate name/version"
// @Router       /api/v1/consumers [post]
// ProposeHandler registers a new consumer
// POST /api/v1/consumers
func (h *ConsumerHandlers) ProposeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)

		params, err := bindParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		// The owner is pinned by the operation; a caller-supplied value under
		// either vocabulary is discarded by the fixed merge.
		unified := consumers.UnifyParams(params, map[string]string{
			"ownerId": strconv.FormatInt(actor.CentralID, 10),
		})

		req, err := decodeProposeRequest(unified)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		result, err := h.svc.Propose(c.Request.Context(), actor, c.ClientIP(), req)
		if err != nil {
			respondError(c, err)
			return
		}

		body := gin.H{
			"name":         result.Name,
			"consumer_key": result.ConsumerKey,
			"consumer":     viewJSON(result.View),
		}
		if result.Secret != "" {
			body["secret"] = result.Secret
		}
		c.JSON(http.StatusCreated, body)
	}
}

// UpdateConsumerRequest represents the request to update a proposed consumer.
// Absent fields leave the current value untouched.
type UpdateConsumerRequest struct {
	Description       *string              `json:"description"`
	Email             *string              `json:"email"`
	CallbackURL       *string              `json:"callbackUrl"`
	CallbackIsPrefix  *bool                `json:"callbackIsPrefix"`
	Grants            []string             `json:"grants"`
	AllowedGrantTypes []string             `json:"allowedGrantTypes"`
	Restrictions      *models.Restrictions `json:"restrictions"`
	Confidential      *bool                `json:"isConfidential"`
	RSAPublicKey      *string              `json:"rsaKey"`
	ResetSecret       bool                 `json:"resetSecret"`
}

// @Summary      Update a proposed consumer
// @Description  Overwrite mutable fields of the caller's own consumer while it is still awaiting approval. A secret reset returns the new raw secret exactly once.
// @Tags         Consumers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        key  path  string  true  "Consumer key"
// @Success      200  {object}  map[string]interface{}  "consumer, secret?"
// @Failure      400  {object}  map[string]interface{}  "Invalid field"
// @Failure      403  {object}  map[string]interface{}  "Not the owner"
// @Failure      404  {object}  map[string]interface{}  "Consumer not found"
// @Failure      409  {object}  map[string]interface{}  "Consumer no longer proposed"
// @Router       /api/v1/consumers/{key} [put]
// UpdateHandler updates a proposed consumer
// PUT /api/v1/consumers/:key
func (h *ConsumerHandlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)

		var req UpdateConsumerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		result, err := h.svc.Update(c.Request.Context(), actor, c.ClientIP(), c.Param("key"), &consumers.UpdateRequest{
			Description:      req.Description,
			Email:            req.Email,
			CallbackURL:      req.CallbackURL,
			CallbackIsPrefix: req.CallbackIsPrefix,
			Grants:           req.Grants,
			GrantTypes:       req.AllowedGrantTypes,
			Restrictions:     req.Restrictions,
			Confidential:     req.Confidential,
			RSAPublicKey:     req.RSAPublicKey,
			ResetSecret:      req.ResetSecret,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		body := gin.H{"consumer": viewJSON(result.View)}
		if result.Secret != "" {
			body["secret"] = result.Secret
		}
		c.JSON(http.StatusOK, body)
	}
}

// @Summary      Get a consumer
// @Description  Get a single consumer by key, redacted to the caller's capability tier. Works unauthenticated at the public tier.
// @Tags         Consumers
// @Produce      json
// @Param        key  path  string  true  "Consumer key"
// @Success      200  {object}  map[string]interface{}  "consumer"
// @Failure      404  {object}  map[string]interface{}  "Consumer not found"
// @Router       /api/v1/consumers/{key} [get]
// GetHandler returns one consumer
// GET /api/v1/consumers/:key
func (h *ConsumerHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		if actor == nil {
			actor = &auth.Actor{}
		}

		view, err := h.svc.Get(c.Request.Context(), actor, c.Param("key"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"consumer": viewJSON(view)})
	}
}

// @Summary      List consumers
// @Description  List consumers of one owner, most recently registered first. Defaults to the caller's own; listing another owner requires the manage capability. Total counts rows before redaction.
// @Tags         Consumers
// @Security     Bearer
// @Produce      json
// @Param        owner_id       query  int  false  "Owner central id (default: caller)"
// @Param        oauth_version  query  int  false  "Filter by protocol version (1 or 2)"
// @Param        limit          query  int  false  "Page size, max 100 (default 25)"
// @Param        offset         query  int  false  "Page offset"
// @Success      200  {object}  map[string]interface{}  "consumers, pagination"
// @Failure      403  {object}  map[string]interface{}  "Foreign owner without manage"
// @Router       /api/v1/consumers [get]
// ListHandler lists consumers
// GET /api/v1/consumers?owner_id=&oauth_version=&limit=&offset=
func (h *ConsumerHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)

		filter := consumers.ListFilter{}
		filter.OwnerID, _ = strconv.ParseInt(c.Query("owner_id"), 10, 64)
		filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "25"))
		filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
		if raw := c.Query("oauth_version"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid oauth_version"})
				return
			}
			filter.OAuthVersion = &v
		}

		listing, err := h.svc.List(c.Request.Context(), actor, filter)
		if err != nil {
			respondError(c, err)
			return
		}

		items := make([]gin.H, 0, len(listing.Items))
		for _, v := range listing.Items {
			items = append(items, viewJSON(v))
		}

		c.JSON(http.StatusOK, gin.H{
			"consumers": items,
			"pagination": gin.H{
				"limit":  filter.Limit,
				"offset": filter.Offset,
				"total":  listing.Total,
			},
		})
	}
}

// bindParams reads the request parameters as a flat string bag, the shape the
// parameter mapping layer operates on. JSON bodies may carry strings, numbers,
// booleans and string arrays; arrays flatten to space-separated values the way
// the legacy form channel encodes them. Any other content type is read as an
// URL-encoded form.
func bindParams(c *gin.Context) (map[string]string, error) {
	if c.ContentType() != "application/json" {
		if err := c.Request.ParseForm(); err != nil {
			return nil, err
		}
		params := make(map[string]string, len(c.Request.Form))
		for name, values := range c.Request.Form {
			if len(values) > 0 {
				params[name] = values[0]
			}
		}
		return params, nil
	}

	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		return nil, err
	}

	params := make(map[string]string, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			params[name] = v
		case bool:
			params[name] = strconv.FormatBool(v)
		case float64:
			params[name] = strconv.FormatFloat(v, 'f', -1, 64)
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("parameter %q: array values must be strings", name)
				}
				parts = append(parts, s)
			}
			params[name] = strings.Join(parts, " ")
		case map[string]interface{}:
			// Nested objects (restrictions) re-encode to JSON; the decoder
			// parses them back into the typed form.
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}
			params[name] = string(encoded)
		case nil:
			// Absent.
		default:
			return nil, fmt.Errorf("parameter %q: unsupported value type", name)
		}
	}
	return params, nil
}

// decodeProposeRequest parses a unified (canonical-named) parameter bag into
// the typed registration request. Field-level validation stays in the core;
// this only rejects values that cannot be parsed at all.
func decodeProposeRequest(params map[string]string) (*consumers.ProposeRequest, error) {
	req := &consumers.ProposeRequest{
		Name:         params["name"],
		Version:      params["version"],
		Description:  params["description"],
		Email:        params["email"],
		CallbackURL:  params["callbackUrl"],
		RSAPublicKey: params["rsaKey"],
	}

	if raw := params["oauthVersion"]; raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("oauthVersion: %w", err)
		}
		req.OAuthVersion = v
	}

	var err error
	if req.CallbackIsPrefix, err = parseBoolParam(params, "callbackIsPrefix"); err != nil {
		return nil, err
	}
	if req.Confidential, err = parseBoolParam(params, "isConfidential"); err != nil {
		return nil, err
	}
	if req.OwnerOnly, err = parseBoolParam(params, "isOwnerOnly"); err != nil {
		return nil, err
	}

	req.Grants = strings.Fields(params["grants"])
	req.AllowedGrantTypes = strings.Fields(params["allowedGrantTypes"])

	if raw := params["restrictions"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Restrictions); err != nil {
			return nil, fmt.Errorf("restrictions: %w", err)
		}
	}

	return req, nil
}

func parseBoolParam(params map[string]string, name string) (bool, error) {
	raw, ok := params[name]
	if !ok || raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
