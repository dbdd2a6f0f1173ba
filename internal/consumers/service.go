// service.go implements the transactional operations of the registration core.
// Every state transition follows the same shape: open a transaction, re-read
// the consumer FOR UPDATE on the primary, validate the precondition against the
// locked row, write the new stage plus its audit row plus any dependent token
// mutation, commit. A precondition failure rolls back with no partial writes,
// and concurrent transitions on the same consumer serialize on the row lock —
// the loser sees the winner's stage and fails its precondition.
package consumers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/consumer-registry/consumer-registry/internal/audit"
	"github.com/consumer-registry/consumer-registry/internal/auth"
	"github.com/consumer-registry/consumer-registry/internal/crypto"
	"github.com/consumer-registry/consumer-registry/internal/db/models"
	"github.com/consumer-registry/consumer-registry/internal/db/repositories"
	"github.com/consumer-registry/consumer-registry/internal/safego"
	"github.com/consumer-registry/consumer-registry/internal/telemetry"
	"github.com/consumer-registry/consumer-registry/internal/validation"
)

// Service is the registration core. All entry points take the acting identity
// explicitly; nothing is read from ambient state.
type Service struct {
	db        *sql.DB
	consumers *repositories.ConsumerRepository
	tokens    *repositories.AccessTokenRepository
	audits    *repositories.AuditRepository
	users     *repositories.UserRepository
	deriver   *crypto.SecretDeriver
	shipper   audit.Shipper // optional external mirror of audit rows

	keyPrefix   string
	proposalTTL time.Duration
	now         func() time.Time
}

// Options configures a Service.
type Options struct {
	KeyPrefix   string        // public identifier prefix, e.g. "ocr"
	ProposalTTL time.Duration // retention window before PROPOSED expires; 0 disables expiry
	Shipper     audit.Shipper // optional
	Replica     *sql.DB       // optional read replica for listing/view paths
}

// NewService wires the registration core against the primary database handle.
func NewService(db *sql.DB, deriver *crypto.SecretDeriver, opts Options) *Service {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "ocr"
	}
	return &Service{
		db:          db,
		consumers:   repositories.NewConsumerRepositoryWithReplica(db, opts.Replica),
		tokens:      repositories.NewAccessTokenRepository(db),
		audits:      repositories.NewAuditRepository(db),
		users:       repositories.NewUserRepository(db),
		deriver:     deriver,
		shipper:     opts.Shipper,
		keyPrefix:   opts.KeyPrefix,
		proposalTTL: opts.ProposalTTL,
		now:         time.Now,
	}
}

// ProposeRequest carries the caller-controlled fields of a new registration.
// Context-determined values (owner, protocol version) come from the fixed
// parameter merge, never from the caller directly.
type ProposeRequest struct {
	Name              string
	Version           string
	Description       string
	Email             string
	OAuthVersion      int
	CallbackURL       string
	CallbackIsPrefix  bool
	Grants            []string
	AllowedGrantTypes []string
	Restrictions      models.Restrictions
	Confidential      bool
	OwnerOnly         bool
	RSAPublicKey      string // non-empty switches the consumer to asymmetric credentials
}

// ProposeResult is returned on successful registration. Secret is the raw
// shared secret, surfaced here and never again; it is empty for RSA consumers.
type ProposeResult struct {
	Name        string
	ConsumerKey string
	Secret      string
	View        *ConsumerView
}

// Propose validates and creates a new consumer in the PROPOSED stage.
func (s *Service) Propose(ctx context.Context, actor *auth.Actor, ip string, req *ProposeRequest) (*ProposeResult, error) {
	user, err := s.users.GetByCentralID(ctx, actor.CentralID)
	if err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if user == nil || !user.Eligible() {
		return nil, ErrInvalidUser
	}

	if err := s.validatePropose(user, req); err != nil {
		return nil, err
	}

	key, err := crypto.NewKey(s.keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("generate consumer key: %w", err)
	}

	c := &models.Consumer{
		ConsumerKey:       key,
		Name:              req.Name,
		Version:           req.Version,
		OwnerID:           actor.CentralID,
		Description:       req.Description,
		Email:             req.Email,
		CallbackURL:       req.CallbackURL,
		CallbackIsPrefix:  req.CallbackIsPrefix,
		Grants:            req.Grants,
		AllowedGrantTypes: req.AllowedGrantTypes,
		Restrictions:      req.Restrictions,
		Stage:             models.StageProposed,
		OAuthVersion:      req.OAuthVersion,
		Confidential:      req.Confidential,
		OwnerOnly:         req.OwnerOnly,
	}

	var rawSecret string
	if req.RSAPublicKey != "" {
		rsaKey := req.RSAPublicKey
		c.RSAPublicKey = &rsaKey
	} else {
		rawSecret = s.deriver.ConsumerSecret(key)
		hash := s.deriver.DeriveHash(rawSecret)
		c.SecretHash = &hash
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	txConsumers := s.consumers.WithTx(tx)

	// Uniqueness pre-check under the transaction; the partial unique index
	// still backstops races, surfacing as a unique violation on insert.
	existing, err := txConsumers.GetByNameVersionOwner(ctx, req.Name, req.Version, actor.CentralID)
	if err != nil {
		return nil, fmt.Errorf("uniqueness check: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyExists
	}

	if err := txConsumers.Create(ctx, c); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	entry := s.auditEntry(actor, ip, "consumer.propose", c, nil, models.StageProposed, "")
	if err := s.audits.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.ship(entry)

	return &ProposeResult{
		Name:        c.Name,
		ConsumerKey: c.ConsumerKey,
		Secret:      rawSecret,
		View:        NewConsumerView(c, actor),
	}, nil
}

// UpdateRequest carries the fields the owner may change while the consumer is
// still awaiting approval. Nil pointers leave the current value untouched.
type UpdateRequest struct {
	Description      *string
	Email            *string
	CallbackURL      *string
	CallbackIsPrefix *bool
	Grants           []string
	GrantTypes       []string
	Restrictions     *models.Restrictions
	Confidential     *bool
	RSAPublicKey     *string
	ResetSecret      bool // regenerate and re-derive the shared secret
}

// UpdateResult is returned on successful update. Secret is non-empty only when
// the secret was reset — again surfaced exactly once.
type UpdateResult struct {
	Secret string
	View   *ConsumerView
}

// Update overwrites mutable fields of the actor's own proposed consumer.
// Consumers that have left PROPOSED fail with NotAccepted.
func (s *Service) Update(ctx context.Context, actor *auth.Actor, ip, consumerKey string, req *UpdateRequest) (*UpdateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	txConsumers := s.consumers.WithTx(tx)

	c, err := txConsumers.GetByKeyForUpdate(ctx, consumerKey)
	if err != nil {
		return nil, fmt.Errorf("load consumer: %w", err)
	}
	if c == nil {
		return nil, ErrNoSuchConsumer
	}
	if !actor.Owns(c.OwnerID) {
		return nil, ErrInsufficientRights
	}

	now := s.now()
	if stage := MaterializeExpiry(c, now, s.proposalTTL); stage != models.StageProposed {
		if c.Stage == models.StageProposed {
			// The proposal aged out; persist the expiry while we hold the row.
			return nil, s.persistExpiry(ctx, tx, c, now)
		}
		return nil, &WrongStageError{Err: ErrNotAccepted, Expected: models.StageProposed, Actual: stage}
	}

	var rawSecret string
	if err := s.applyUpdate(c, req, &rawSecret); err != nil {
		return nil, err
	}

	if err := txConsumers.UpdateFields(ctx, c); err != nil {
		return nil, fmt.Errorf("update consumer: %w", err)
	}

	entry := s.auditEntry(actor, ip, "consumer.update", c, nil, "", "")
	if err := s.audits.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.ship(entry)

	return &UpdateResult{Secret: rawSecret, View: NewConsumerView(c, actor)}, nil
}

// IssuedToken surfaces a freshly issued access token. The Secret field is
// populated exactly once, at issuance; storage keeps only the derivation.
type IssuedToken struct {
	ID       string
	TokenKey string
	Secret   string
	Grants   []string
	Wiki     string
}

// TransitionResult reports a completed stage transition.
type TransitionResult struct {
	View *ConsumerView
	// AccessToken is set only by Approve on an owner-only consumer.
	AccessToken *IssuedToken
	// TokensRevoked is set by Disable.
	TokensRevoked int64
}

// Approve moves a proposed consumer to APPROVED. For owner-only consumers it
// atomically issues the owner an access token carrying the full registered
// grant set.
func (s *Service) Approve(ctx context.Context, actor *auth.Actor, ip, consumerKey, reason string) (*TransitionResult, error) {
	return s.transition(ctx, actor, ip, consumerKey, TransitionApprove, reason, false)
}

// Reject moves a proposed consumer to REJECTED, optionally suppressing it in
// the same transition.
func (s *Service) Reject(ctx context.Context, actor *auth.Actor, ip, consumerKey, reason string, suppress bool) (*TransitionResult, error) {
	return s.transition(ctx, actor, ip, consumerKey, TransitionReject, reason, suppress)
}

// Disable moves an approved consumer to DISABLED and revokes every
// outstanding access token, optionally suppressing it in the same transition.
func (s *Service) Disable(ctx context.Context, actor *auth.Actor, ip, consumerKey, reason string, suppress bool) (*TransitionResult, error) {
	return s.transition(ctx, actor, ip, consumerKey, TransitionDisable, reason, suppress)
}

// Reenable moves a disabled consumer back to APPROVED. Tokens revoked by the
// disable stay revoked; end users must re-authorize.
func (s *Service) Reenable(ctx context.Context, actor *auth.Actor, ip, consumerKey, reason string) (*TransitionResult, error) {
	return s.transition(ctx, actor, ip, consumerKey, TransitionReenable, reason, false)
}

func (s *Service) transition(ctx context.Context, actor *auth.Actor, ip, consumerKey string, t Transition, reason string, suppress bool) (*TransitionResult, error) {
	if !actor.CanManage() {
		return nil, ErrInsufficientRights
	}
	if suppress && !actor.CanSuppress() {
		return nil, ErrInsufficientRights
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	txConsumers := s.consumers.WithTx(tx)

	c, err := txConsumers.GetByKeyForUpdate(ctx, consumerKey)
	if err != nil {
		return nil, fmt.Errorf("load consumer: %w", err)
	}
	if c == nil {
		return nil, ErrNoSuchConsumer
	}

	// Managers may not review their own proposals unless they hold admin.
	if actor.Owns(c.OwnerID) && !actor.IsAdmin() {
		return nil, ErrInsufficientRights
	}

	now := s.now()
	effective := MaterializeExpiry(c, now, s.proposalTTL)
	if effective == models.StageExpired && c.Stage == models.StageProposed {
		return nil, s.persistExpiry(ctx, tx, c, now)
	}

	to, err := checkTransition(t, effective)
	if err != nil {
		return nil, err
	}

	newSuppressed := c.Suppressed || suppress
	if err := txConsumers.UpdateStage(ctx, c.ID, to, newSuppressed, now); err != nil {
		return nil, fmt.Errorf("update stage: %w", err)
	}

	result := &TransitionResult{}

	if t == TransitionDisable {
		n, err := s.tokens.WithTx(tx).RevokeAllForConsumer(ctx, c.ID, now)
		if err != nil {
			return nil, fmt.Errorf("revoke tokens: %w", err)
		}
		result.TokensRevoked = n
	}

	if t == TransitionApprove && c.OwnerOnly {
		issued, err := s.issueToken(ctx, tx, c, c.OwnerID, c.Grants, "*")
		if err != nil {
			return nil, err
		}
		result.AccessToken = issued
	}

	old := c.Stage
	entry := s.auditEntry(actor, ip, "consumer."+string(t), c, &old, to, reason)
	if suppress {
		entry.Metadata = map[string]interface{}{"suppressed": true}
	}
	if err := s.audits.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	telemetry.ConsumerTransitionsTotal.WithLabelValues(string(old), string(to)).Inc()
	if result.TokensRevoked > 0 {
		telemetry.AccessTokensRevokedTotal.Add(float64(result.TokensRevoked))
	}
	s.ship(entry)

	c.Stage = to
	c.Suppressed = newSuppressed
	c.StageChanged = now
	result.View = NewConsumerView(c, actor)
	return result, nil
}

// issueToken creates an access token inside tx. Grants must be a subset of the
// consumer's registered grants.
func (s *Service) issueToken(ctx context.Context, tx *sql.Tx, c *models.Consumer, userID int64, grants []string, wiki string) (*IssuedToken, error) {
	if !grantsSubset(grants, c.Grants) {
		return nil, invalidField("grants", "requested grants exceed the consumer's registered grants")
	}

	tokenKey, err := crypto.NewKey(s.keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("generate token key: %w", err)
	}
	secret, err := crypto.NewTokenSecret()
	if err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}

	token := &models.AccessToken{
		ConsumerID: c.ID,
		UserID:     userID,
		TokenKey:   tokenKey,
		SecretHash: s.deriver.DeriveHash(secret),
		Grants:     grants,
		Wiki:       wiki,
	}
	if err := s.tokens.WithTx(tx).Create(ctx, token); err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	telemetry.AccessTokensIssuedTotal.Inc()

	return &IssuedToken{
		ID:       token.ID,
		TokenKey: tokenKey,
		Secret:   secret,
		Grants:   grants,
		Wiki:     wiki,
	}, nil
}

// RenounceToken revokes a single access token. The end user a token acts for
// may renounce it; managers may revoke any token.
func (s *Service) RenounceToken(ctx context.Context, actor *auth.Actor, ip, tokenID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	txTokens := s.tokens.WithTx(tx)

	token, err := txTokens.GetByID(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if token == nil {
		return ErrNoSuchAccessToken
	}
	if token.UserID != actor.CentralID && !actor.CanManage() {
		return ErrInsufficientRights
	}

	now := s.now()
	if err := txTokens.Revoke(ctx, tokenID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoSuchAccessToken // already revoked
		}
		return fmt.Errorf("revoke token: %w", err)
	}

	rtype, rid := "access_token", token.ID
	entry := &models.AuditLog{
		ActorID:      &actor.CentralID,
		Action:       "token.revoke",
		ResourceType: &rtype,
		ResourceID:   &rid,
		CreatedAt:    now,
	}
	if ip != "" {
		entry.IPAddress = &ip
	}
	if err := s.audits.WithTx(tx).Create(ctx, entry); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	telemetry.AccessTokensRevokedTotal.Inc()
	s.ship(entry)
	return nil
}

// Get returns the actor's view of one consumer. A suppressed consumer the
// actor may not see reads as missing.
func (s *Service) Get(ctx context.Context, actor *auth.Actor, consumerKey string) (*ConsumerView, error) {
	c, err := s.consumers.GetByKey(ctx, consumerKey)
	if err != nil {
		return nil, fmt.Errorf("load consumer: %w", err)
	}
	if c == nil {
		return nil, ErrNoSuchConsumer
	}

	c.Stage = MaterializeExpiry(c, s.now(), s.proposalTTL)

	view := NewConsumerView(c, actor)
	if view == nil {
		return nil, ErrNoSuchConsumer
	}
	return view, nil
}

// ListFilter selects which consumers to enumerate. A zero OwnerID means the
// acting user's own consumers; listing another owner requires manage.
type ListFilter struct {
	OwnerID      int64
	OAuthVersion *int
	Limit        int
	Offset       int
}

// Listing is one page of redacted consumers. Total is the underlying store
// count before per-row redaction: rows the actor cannot see are dropped from
// Items without adjusting Total, so callers must treat Total as an upper
// bound when paginating. That discrepancy is deliberate — adjusting it would
// leak how many suppressed consumers exist.
type Listing struct {
	Items []*ConsumerView
	Total int
}

// List enumerates a user's consumers, most recently registered first, with
// per-row redaction applied.
func (s *Service) List(ctx context.Context, actor *auth.Actor, filter ListFilter) (*Listing, error) {
	ownerID := filter.OwnerID
	if ownerID == 0 {
		ownerID = actor.CentralID
	}
	if ownerID != actor.CentralID && !actor.CanManage() {
		return nil, ErrInsufficientRights
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, total, err := s.consumers.List(ctx, repositories.ConsumerFilter{
		OwnerID:      ownerID,
		OAuthVersion: filter.OAuthVersion,
	}, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list consumers: %w", err)
	}

	now := s.now()
	items := make([]*ConsumerView, 0, len(rows))
	for _, c := range rows {
		c.Stage = MaterializeExpiry(c, now, s.proposalTTL)
		if view := NewConsumerView(c, actor); view != nil {
			items = append(items, view)
		}
	}

	return &Listing{Items: items, Total: total}, nil
}

// ResolveUser maps a display username to the central account, the identity
// resolution collaborators use before granting or checking ownership.
func (s *Service) ResolveUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if user == nil {
		return nil, ErrNoSuchUser
	}
	return user, nil
}

// AuditTrail returns the transition history of a consumer. Requires the
// audit:read scope.
func (s *Service) AuditTrail(ctx context.Context, actor *auth.Actor, consumerKey string, limit, offset int) ([]*models.AuditLog, int, error) {
	if !auth.HasScope(actor.Scopes, auth.ScopeAuditRead) {
		return nil, 0, ErrInsufficientRights
	}

	c, err := s.consumers.GetByKey(ctx, consumerKey)
	if err != nil {
		return nil, 0, fmt.Errorf("load consumer: %w", err)
	}
	if c == nil {
		return nil, 0, ErrNoSuchConsumer
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rtype := "consumer"
	return s.audits.List(ctx, repositories.AuditFilters{
		ResourceType: &rtype,
		ResourceID:   &c.ID,
	}, limit, offset)
}

// persistExpiry records the lazy PROPOSED→EXPIRED transition while the row
// lock is held, commits it, and returns the NotProposed precondition failure
// the triggering call observes.
func (s *Service) persistExpiry(ctx context.Context, tx *sql.Tx, c *models.Consumer, now time.Time) error {
	if err := s.consumers.WithTx(tx).UpdateStage(ctx, c.ID, models.StageExpired, c.Suppressed, now); err != nil {
		return fmt.Errorf("persist expiry: %w", err)
	}

	old := string(models.StageProposed)
	next := string(models.StageExpired)
	rtype, rid := "consumer", c.ID
	entry := &models.AuditLog{
		Action:       "consumer.expire",
		ResourceType: &rtype,
		ResourceID:   &rid,
		OldStage:     &old,
		NewStage:     &next,
		CreatedAt:    now,
	}
	if err := s.audits.WithTx(tx).Create(ctx, entry); err != nil {
		return fmt.Errorf("audit expiry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit expiry: %w", err)
	}

	telemetry.ConsumerTransitionsTotal.WithLabelValues(old, next).Inc()
	s.ship(entry)

	return &WrongStageError{Err: ErrNotProposed, Expected: models.StageProposed, Actual: models.StageExpired}
}

func (s *Service) validatePropose(user *models.User, req *ProposeRequest) error {
	if req.Name == "" {
		return missingField("name")
	}
	if err := validation.ValidateName(req.Name); err != nil {
		return invalidField("name", err.Error())
	}
	if req.Version == "" {
		return missingField("version")
	}
	if err := validation.ValidateVersion(req.Version); err != nil {
		return invalidField("version", err.Error())
	}
	if req.Email == "" {
		return missingField("email")
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		return invalidField("email", err.Error())
	}
	if req.Email != user.Email {
		return invalidField("email", "must match the registrant's confirmed email address")
	}

	if req.OAuthVersion != models.OAuthVersion1 && req.OAuthVersion != models.OAuthVersion2 {
		return invalidField("oauthVersion", "must be 1 or 2")
	}
	if req.OAuthVersion == models.OAuthVersion1 {
		if req.Confidential {
			return invalidField("isConfidential", "only meaningful for OAuth 2 consumers")
		}
		if len(req.AllowedGrantTypes) > 0 {
			return invalidField("allowedGrantTypes", "only meaningful for OAuth 2 consumers")
		}
	}

	if req.CallbackURL == "" && !req.OwnerOnly {
		return missingField("callbackUrl")
	}
	if req.CallbackURL != "" {
		if err := validation.ValidateCallbackURL(req.CallbackURL, req.CallbackIsPrefix); err != nil {
			return invalidField("callbackUrl", err.Error())
		}
	}

	if len(req.Grants) == 0 {
		return missingField("grants")
	}
	for _, g := range req.Grants {
		if !ValidGrant(g) {
			return invalidField("grants", fmt.Sprintf("unknown grant %q", g))
		}
	}
	for _, gt := range req.AllowedGrantTypes {
		if !ValidGrantType(gt) {
			return invalidField("allowedGrantTypes", fmt.Sprintf("unknown grant type %q", gt))
		}
	}

	if err := validation.ValidateIPRanges(req.Restrictions.IPRanges); err != nil {
		return invalidField("restrictions", err.Error())
	}

	if req.RSAPublicKey != "" {
		if err := validation.ValidateRSAPublicKey(req.RSAPublicKey); err != nil {
			return invalidField("rsaKey", err.Error())
		}
	}

	return nil
}

func (s *Service) applyUpdate(c *models.Consumer, req *UpdateRequest, rawSecret *string) error {
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.Email != nil {
		if err := validation.ValidateEmail(*req.Email); err != nil {
			return invalidField("email", err.Error())
		}
		c.Email = *req.Email
	}
	if req.CallbackIsPrefix != nil {
		c.CallbackIsPrefix = *req.CallbackIsPrefix
	}
	if req.CallbackURL != nil {
		if err := validation.ValidateCallbackURL(*req.CallbackURL, c.CallbackIsPrefix); err != nil {
			return invalidField("callbackUrl", err.Error())
		}
		c.CallbackURL = *req.CallbackURL
	}
	if req.Grants != nil {
		for _, g := range req.Grants {
			if !ValidGrant(g) {
				return invalidField("grants", fmt.Sprintf("unknown grant %q", g))
			}
		}
		c.Grants = req.Grants
	}
	if req.GrantTypes != nil {
		if c.OAuthVersion != models.OAuthVersion2 {
			return invalidField("allowedGrantTypes", "only meaningful for OAuth 2 consumers")
		}
		for _, gt := range req.GrantTypes {
			if !ValidGrantType(gt) {
				return invalidField("allowedGrantTypes", fmt.Sprintf("unknown grant type %q", gt))
			}
		}
		c.AllowedGrantTypes = req.GrantTypes
	}
	if req.Restrictions != nil {
		if err := validation.ValidateIPRanges(req.Restrictions.IPRanges); err != nil {
			return invalidField("restrictions", err.Error())
		}
		c.Restrictions = *req.Restrictions
	}
	if req.Confidential != nil {
		if c.OAuthVersion != models.OAuthVersion2 {
			return invalidField("isConfidential", "only meaningful for OAuth 2 consumers")
		}
		c.Confidential = *req.Confidential
	}
	if req.RSAPublicKey != nil {
		if *req.RSAPublicKey == "" {
			c.RSAPublicKey = nil
		} else {
			if err := validation.ValidateRSAPublicKey(*req.RSAPublicKey); err != nil {
				return invalidField("rsaKey", err.Error())
			}
			rsaKey := *req.RSAPublicKey
			c.RSAPublicKey = &rsaKey
			c.SecretHash = nil
		}
	}
	if req.ResetSecret {
		if c.RSAPublicKey != nil {
			return invalidField("resetSecret", "consumer uses asymmetric credentials")
		}
		secret, err := crypto.NewTokenSecret()
		if err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		hash := s.deriver.DeriveHash(secret)
		c.SecretHash = &hash
		*rawSecret = secret
	}
	if c.SecretHash == nil && c.RSAPublicKey == nil {
		// Switching away from RSA requires a fresh shared secret.
		secret, err := crypto.NewTokenSecret()
		if err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		hash := s.deriver.DeriveHash(secret)
		c.SecretHash = &hash
		*rawSecret = secret
	}
	return nil
}

func (s *Service) auditEntry(actor *auth.Actor, ip, action string, c *models.Consumer, oldStage *models.Stage, newStage models.Stage, reason string) *models.AuditLog {
	rtype, rid := "consumer", c.ID
	entry := &models.AuditLog{
		ActorID:      &actor.CentralID,
		Action:       action,
		ResourceType: &rtype,
		ResourceID:   &rid,
		Reason:       reason,
		CreatedAt:    s.now(),
	}
	if oldStage != nil {
		old := string(*oldStage)
		entry.OldStage = &old
	}
	if newStage != "" {
		next := string(newStage)
		entry.NewStage = &next
	}
	if ip != "" {
		entry.IPAddress = &ip
	}
	return entry
}

// ship mirrors an audit row to the external shipper, off the request path.
func (s *Service) ship(entry *models.AuditLog) {
	if s.shipper == nil {
		return
	}

	out := &audit.LogEntry{
		Timestamp: entry.CreatedAt,
		Action:    entry.Action,
		Reason:    entry.Reason,
		Metadata:  entry.Metadata,
	}
	if entry.ActorID != nil {
		out.ActorID = *entry.ActorID
	}
	if entry.ResourceType != nil {
		out.ResourceType = *entry.ResourceType
	}
	if entry.ResourceID != nil {
		out.ResourceID = *entry.ResourceID
	}
	if entry.OldStage != nil {
		out.OldStage = *entry.OldStage
	}
	if entry.NewStage != nil {
		out.NewStage = *entry.NewStage
	}
	if entry.IPAddress != nil {
		out.IPAddress = *entry.IPAddress
	}

	safego.Go("audit-ship", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.shipper.Ship(ctx, out); err != nil {
			slog.Warn("audit ship failed", "action", out.Action, "error", err)
		}
	})
}
