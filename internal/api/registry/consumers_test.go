package registry

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/consumer-registry/consumer-registry/internal/auth"
	"github.com/consumer-registry/consumer-registry/internal/consumers"
	"github.com/consumer-registry/consumer-registry/internal/crypto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var consumerCols = []string{
	"id", "consumer_key", "name", "version", "owner_id", "description", "email",
	"secret_hash", "rsa_public_key", "callback_url", "callback_is_prefix",
	"grants", "allowed_grant_types", "restrictions",
	"stage", "stage_changed", "suppressed", "deleted",
	"oauth_version", "confidential", "owner_only", "registered_at",
}

var userCols = []string{
	"central_id", "username", "email", "email_confirmed", "blocked",
	"scopes", "created_at", "updated_at",
}

func newTestHandlers(t *testing.T) (*ConsumerHandlers, *TokenHandlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	deriver, err := crypto.NewSecretDeriver(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("NewSecretDeriver: %v", err)
	}

	svc := consumers.NewService(db, deriver, consumers.Options{
		KeyPrefix:   "ocr",
		ProposalTTL: 30 * 24 * time.Hour,
	})
	return NewConsumerHandlers(svc), NewTokenHandlers(svc), mock
}

// newTestRouter registers the handler routes behind a middleware that injects
// the given actor, standing in for the auth middleware. A nil actor leaves the
// context empty, like an anonymous request through optional auth.
func newTestRouter(actor *auth.Actor, register func(*gin.Engine)) *gin.Engine {
	r := gin.New()
	if actor != nil {
		r.Use(func(c *gin.Context) {
			c.Set("actor", actor)
			c.Next()
		})
	}
	register(r)
	return r
}

func approvedConsumerRow(ownerID int64) *sqlmock.Rows {
	hash := "cafebabe"
	recent := time.Now().Add(-time.Hour)
	return sqlmock.NewRows(consumerCols).
		AddRow("c-1", "key-abc", "ExampleBot", "1.0", ownerID, "a bot", "owner@example.org",
			&hash, nil, "https://example.org/cb", false,
			[]byte(`["editpage"]`), []byte(`["authorization_code"]`), []byte(`{}`),
			"approved", recent, false, false,
			2, true, false, recent)
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// bindParams / decodeProposeRequest
// ---------------------------------------------------------------------------

func TestBindParams_JSONTypes(t *testing.T) {
	body := `{
		"name": "ExampleBot",
		"isConfidential": true,
		"oauthVersion": 2,
		"grants": ["editpage", "createpage"],
		"restrictions": {"ip_ranges": ["10.0.0.0/8"]},
		"absent": null
	}`
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	params, err := bindParams(c)
	if err != nil {
		t.Fatalf("bindParams: %v", err)
	}
	if params["name"] != "ExampleBot" {
		t.Errorf("name = %q", params["name"])
	}
	if params["isConfidential"] != "true" {
		t.Errorf("isConfidential = %q", params["isConfidential"])
	}
	if params["oauthVersion"] != "2" {
		t.Errorf("oauthVersion = %q", params["oauthVersion"])
	}
	if params["grants"] != "editpage createpage" {
		t.Errorf("grants = %q", params["grants"])
	}
	if !strings.Contains(params["restrictions"], "10.0.0.0/8") {
		t.Errorf("restrictions = %q", params["restrictions"])
	}
	if _, ok := params["absent"]; ok {
		t.Error("null value should be dropped")
	}
}

func TestBindParams_Form(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader("name=ExampleBot&grants=editpage+createpage"))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	params, err := bindParams(c)
	if err != nil {
		t.Fatalf("bindParams: %v", err)
	}
	if params["name"] != "ExampleBot" {
		t.Errorf("name = %q", params["name"])
	}
	if params["grants"] != "editpage createpage" {
		t.Errorf("grants = %q", params["grants"])
	}
}

func TestBindParams_NonStringArray(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"grants": [1, 2]}`))
	c.Request.Header.Set("Content-Type", "application/json")

	if _, err := bindParams(c); err == nil {
		t.Error("expected error for non-string array values")
	}
}

func TestDecodeProposeRequest(t *testing.T) {
	req, err := decodeProposeRequest(map[string]string{
		"name":              "ExampleBot",
		"version":           "1.0",
		"email":             "owner@example.org",
		"oauthVersion":      "2",
		"callbackUrl":       "https://example.org/cb",
		"callbackIsPrefix":  "true",
		"isConfidential":    "true",
		"isOwnerOnly":       "false",
		"grants":            "editpage createpage",
		"allowedGrantTypes": "authorization_code",
		"restrictions":      `{"ip_ranges": ["10.0.0.0/8"]}`,
	})
	if err != nil {
		t.Fatalf("decodeProposeRequest: %v", err)
	}
	if req.Name != "ExampleBot" || req.OAuthVersion != 2 {
		t.Errorf("unexpected decode: %+v", req)
	}
	if !req.CallbackIsPrefix || !req.Confidential || req.OwnerOnly {
		t.Error("boolean parameters decoded wrong")
	}
	if len(req.Grants) != 2 || req.Grants[1] != "createpage" {
		t.Errorf("grants = %v", req.Grants)
	}
	if len(req.Restrictions.IPRanges) != 1 {
		t.Errorf("restrictions = %+v", req.Restrictions)
	}
}

func TestDecodeProposeRequest_BadValues(t *testing.T) {
	if _, err := decodeProposeRequest(map[string]string{"oauthVersion": "two"}); err == nil {
		t.Error("expected error for non-numeric oauthVersion")
	}
	if _, err := decodeProposeRequest(map[string]string{"isConfidential": "maybe"}); err == nil {
		t.Error("expected error for non-boolean isConfidential")
	}
	if _, err := decodeProposeRequest(map[string]string{"restrictions": "{"}); err == nil {
		t.Error("expected error for malformed restrictions")
	}
}

// ---------------------------------------------------------------------------
// Propose
// ---------------------------------------------------------------------------

func TestProposeHandler_ModernVocabulary(t *testing.T) {
	h, _, mock := newTestHandlers(t)
	actor := &auth.Actor{CentralID: 42, Username: "owner", Email: "owner@example.org"}

	mock.ExpectQuery("SELECT.*FROM users WHERE central_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(42), "owner", "owner@example.org", true, false, []byte(`[]`), time.Now(), time.Now()))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM oauth_consumers\\s+WHERE name = .* AND version = .* AND owner_id = .* AND NOT deleted").
		WillReturnRows(sqlmock.NewRows(consumerCols))
	mock.ExpectExec("INSERT INTO oauth_consumers").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r := newTestRouter(actor, func(r *gin.Engine) {
		r.POST("/api/v1/consumers", h.ProposeHandler())
	})

	// Modern parameter names; the mapping layer folds them to canonical form.
	w := doJSON(r, http.MethodPost, "/api/v1/consumers", map[string]interface{}{
		"name":                   "ExampleBot",
		"version":                "1.0",
		"description":            "a bot",
		"email":                  "owner@example.org",
		"oauthVersion":           2,
		"client_callback_url":    "https://example.org/cb",
		"client_scopes":          []string{"editpage"},
		"client_is_confidential": true,
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["consumer_key"] == "" {
		t.Error("consumer_key missing")
	}
	if secret, _ := body["secret"].(string); secret == "" {
		t.Error("one-time secret missing from registration response")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestProposeHandler_MissingName(t *testing.T) {
	h, _, mock := newTestHandlers(t)
	actor := &auth.Actor{CentralID: 42, Username: "owner", Email: "owner@example.org"}

	mock.ExpectQuery("SELECT.*FROM users WHERE central_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(42), "owner", "owner@example.org", true, false, []byte(`[]`), time.Now(), time.Now()))

	r := newTestRouter(actor, func(r *gin.Engine) {
		r.POST("/api/v1/consumers", h.ProposeHandler())
	})

	w := doJSON(r, http.MethodPost, "/api/v1/consumers", map[string]interface{}{
		"version": "1.0",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"field":"name"`) {
		t.Errorf("expected field name in body, got %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Get / List
// ---------------------------------------------------------------------------

func TestGetHandler_AnonymousPublicTier(t *testing.T) {
	h, _, mock := newTestHandlers(t)

	mock.ExpectQuery("SELECT.*FROM oauth_consumers WHERE consumer_key").
		WithArgs("key-abc").
		WillReturnRows(approvedConsumerRow(42))

	r := newTestRouter(nil, func(r *gin.Engine) {
		r.GET("/api/v1/consumers/:key", h.GetHandler())
	})

	w := doJSON(r, http.MethodGet, "/api/v1/consumers/key-abc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var body struct {
		Consumer map[string]interface{} `json:"consumer"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Consumer["name"] != "ExampleBot" {
		t.Errorf("name = %v", body.Consumer["name"])
	}
	if body.Consumer["email"] != consumers.Hidden {
		t.Errorf("email = %v, want hidden sentinel", body.Consumer["email"])
	}
	if body.Consumer["confidential"] != nil {
		t.Errorf("confidential = %v, want null at public tier", body.Consumer["confidential"])
	}
}

func TestGetHandler_NotFound(t *testing.T) {
	h, _, mock := newTestHandlers(t)

	mock.ExpectQuery("SELECT.*FROM oauth_consumers WHERE consumer_key").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(consumerCols))

	r := newTestRouter(nil, func(r *gin.Engine) {
		r.GET("/api/v1/consumers/:key", h.GetHandler())
	})

	w := doJSON(r, http.MethodGet, "/api/v1/consumers/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestListHandler_OwnConsumers(t *testing.T) {
	h, _, mock := newTestHandlers(t)
	actor := &auth.Actor{CentralID: 42, Username: "owner"}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM oauth_consumers").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM oauth_consumers.*ORDER BY registered_at DESC").
		WithArgs(int64(42), 25, 0).
		WillReturnRows(approvedConsumerRow(42))

	r := newTestRouter(actor, func(r *gin.Engine) {
		r.GET("/api/v1/consumers", h.ListHandler())
	})

	w := doJSON(r, http.MethodGet, "/api/v1/consumers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var body struct {
		Consumers  []map[string]interface{} `json:"consumers"`
		Pagination map[string]interface{}   `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Consumers) != 1 {
		t.Fatalf("consumers = %d, want 1", len(body.Consumers))
	}
	// The owner sees their own email, not the sentinel.
	if body.Consumers[0]["email"] != "owner@example.org" {
		t.Errorf("email = %v", body.Consumers[0]["email"])
	}
	if body.Pagination["total"] != float64(1) {
		t.Errorf("total = %v", body.Pagination["total"])
	}
}

func TestListHandler_BadOAuthVersion(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	actor := &auth.Actor{CentralID: 42}

	r := newTestRouter(actor, func(r *gin.Engine) {
		r.GET("/api/v1/consumers", h.ListHandler())
	})

	w := doJSON(r, http.MethodGet, "/api/v1/consumers?oauth_version=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

func TestApproveHandler_Forbidden(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	actor := &auth.Actor{CentralID: 42, Username: "owner"} // no manage scope

	r := newTestRouter(actor, func(r *gin.Engine) {
		r.POST("/api/v1/consumers/:key/approve", h.ApproveHandler())
	})

	w := doJSON(r, http.MethodPost, "/api/v1/consumers/key-abc/approve", map[string]interface{}{
		"reason": "looks fine",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestApproveHandler_WrongStage(t *testing.T) {
	h, _, mock := newTestHandlers(t)
	manager := &auth.Actor{
		CentralID: 99,
		Username:  "reviewer",
		Scopes:    []string{string(auth.ScopeConsumersManage)},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM oauth_consumers WHERE consumer_key = .* FOR UPDATE").
		WithArgs("key-abc").
		WillReturnRows(approvedConsumerRow(42))
	mock.ExpectRollback()

	r := newTestRouter(manager, func(r *gin.Engine) {
		r.POST("/api/v1/consumers/:key/approve", h.ApproveHandler())
	})

	w := doJSON(r, http.MethodPost, "/api/v1/consumers/key-abc/approve", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"stage":"approved"`) {
		t.Errorf("expected actual stage in body, got %s", w.Body.String())
	}
}

func TestTransitionHandler_MalformedBody(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	manager := &auth.Actor{
		CentralID: 99,
		Scopes:    []string{string(auth.ScopeConsumersManage)},
	}

	r := newTestRouter(manager, func(r *gin.Engine) {
		r.POST("/api/v1/consumers/:key/reject", h.RejectHandler())
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/consumers/key-abc/reject",
		strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

func TestRenounceHandler_OwnToken(t *testing.T) {
	_, th, mock := newTestHandlers(t)
	actor := &auth.Actor{CentralID: 42, Username: "owner"}

	tokenCols := []string{
		"id", "consumer_id", "user_id", "token_key", "secret_hash",
		"grants", "wiki", "issued_at", "revoked_at",
	}
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM oauth_access_tokens\\s+WHERE id").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows(tokenCols).
			AddRow("tok-1", "c-1", int64(42), "key-tok", "hash",
				[]byte(`["editpage"]`), "*", time.Now().Add(-time.Hour), nil))
	mock.ExpectExec("UPDATE oauth_access_tokens SET revoked_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r := newTestRouter(actor, func(r *gin.Engine) {
		r.DELETE("/api/v1/tokens/:id", th.RenounceHandler())
	})

	w := doJSON(r, http.MethodDelete, "/api/v1/tokens/tok-1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRenounceHandler_NotHolder(t *testing.T) {
	_, th, mock := newTestHandlers(t)
	actor := &auth.Actor{CentralID: 7, Username: "stranger"}

	tokenCols := []string{
		"id", "consumer_id", "user_id", "token_key", "secret_hash",
		"grants", "wiki", "issued_at", "revoked_at",
	}
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT.*FROM oauth_access_tokens\\s+WHERE id").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows(tokenCols).
			AddRow("tok-1", "c-1", int64(42), "key-tok", "hash",
				[]byte(`[]`), "*", time.Now().Add(-time.Hour), nil))
	mock.ExpectRollback()

	r := newTestRouter(actor, func(r *gin.Engine) {
		r.DELETE("/api/v1/tokens/:id", th.RenounceHandler())
	})

	w := doJSON(r, http.MethodDelete, "/api/v1/tokens/tok-1", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}
