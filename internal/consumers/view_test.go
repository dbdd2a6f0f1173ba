package consumers

import (
	"testing"
	"time"

	"github.com/consumer-registry/consumer-registry/internal/auth"
	"github.com/consumer-registry/consumer-registry/internal/db/models"
)

func sampleConsumer() *models.Consumer {
	hash := "deadbeef"
	return &models.Consumer{
		ID:           "c-1",
		ConsumerKey:  "ocr_abc",
		Name:         "ExampleBot",
		Version:      "1.0",
		OwnerID:      42,
		Description:  "does things",
		Email:        "owner@example.org",
		SecretHash:   &hash,
		CallbackURL:  "https://example.org/cb",
		Grants:       []string{"editpage"},
		Restrictions: models.Restrictions{Wikis: []string{"*"}},
		Stage:        models.StageApproved,
		StageChanged: time.Now(),
		OAuthVersion: 2,
		Confidential: true,
		RegisteredAt: time.Now(),
	}
}

func ownerActor() *auth.Actor {
	return &auth.Actor{CentralID: 42, Username: "owner", Email: "owner@example.org"}
}

func strangerActor() *auth.Actor {
	return &auth.Actor{CentralID: 7, Username: "stranger"}
}

func managerActor() *auth.Actor {
	return &auth.Actor{CentralID: 7, Username: "mod", Scopes: []string{string(auth.ScopeConsumersManage)}}
}

func TestNewConsumerView_PublicTier(t *testing.T) {
	v := NewConsumerView(sampleConsumer(), strangerActor())
	if v == nil {
		t.Fatal("view is nil")
	}
	if v.Tier != TierPublic {
		t.Fatalf("tier = %d, want public", v.Tier)
	}

	// Always-visible fields come through.
	if v.ConsumerKey != "ocr_abc" || v.Name != "ExampleBot" || v.Version != "1.0" {
		t.Errorf("identity fields wrong: %+v", v)
	}
	if v.Stage != models.StageApproved || v.OAuthVersion != 2 {
		t.Errorf("stage fields wrong: %+v", v)
	}

	// Restricted strings carry the sentinel, never the raw value.
	if v.Email != Hidden || v.Description != Hidden || v.CallbackURL != Hidden {
		t.Errorf("restricted strings leaked: %+v", v)
	}
	if v.SecretHash != Hidden || v.RSAPublicKey != Hidden {
		t.Errorf("credential fields leaked: %+v", v)
	}

	// Restricted bools and slices stay nil so hidden != false.
	if v.CallbackIsPrefix != nil || v.Confidential != nil || v.OwnerOnly != nil {
		t.Errorf("restricted bools not nil: %+v", v)
	}
	if v.Grants != nil || v.Restrictions != nil {
		t.Errorf("restricted slices not nil: %+v", v)
	}
	if v.Suppressed != nil || v.Deleted != nil {
		t.Errorf("manage-tier fields visible at public tier: %+v", v)
	}
}

func TestNewConsumerView_OwnerTier(t *testing.T) {
	v := NewConsumerView(sampleConsumer(), ownerActor())
	if v == nil {
		t.Fatal("view is nil")
	}
	if v.Tier != TierOwner {
		t.Fatalf("tier = %d, want owner", v.Tier)
	}
	if v.Email != "owner@example.org" || v.CallbackURL != "https://example.org/cb" {
		t.Errorf("owner fields hidden from owner: %+v", v)
	}
	if v.Confidential == nil || !*v.Confidential {
		t.Error("confidential flag hidden from owner")
	}
	if len(v.Grants) != 1 || v.Grants[0] != "editpage" {
		t.Errorf("grants wrong: %v", v.Grants)
	}
	// Moderation metadata still requires the manage capability.
	if v.Suppressed != nil || v.Deleted != nil || v.StageChanged != nil {
		t.Errorf("manage-tier fields visible to owner: %+v", v)
	}
}

func TestNewConsumerView_ManageTier(t *testing.T) {
	c := sampleConsumer()
	c.Suppressed = true
	v := NewConsumerView(c, managerActor())
	if v == nil {
		t.Fatal("view is nil")
	}
	if v.Tier != TierManage {
		t.Fatalf("tier = %d, want manage", v.Tier)
	}
	if v.Suppressed == nil || !*v.Suppressed {
		t.Error("suppressed flag hidden from manager")
	}
	if v.StageChanged == nil {
		t.Error("stage change time hidden from manager")
	}
}

// The owner tier never includes the raw secret; only the derived hash survives
// the projection, and only for the owner or a manager.
func TestNewConsumerView_SecretHashByTier(t *testing.T) {
	c := sampleConsumer()
	if v := NewConsumerView(c, ownerActor()); v.SecretHash != "deadbeef" {
		t.Errorf("owner secret hash = %q", v.SecretHash)
	}
	if v := NewConsumerView(c, strangerActor()); v.SecretHash != Hidden {
		t.Errorf("public secret hash = %q", v.SecretHash)
	}
}

func TestNewConsumerView_SuppressedInvisible(t *testing.T) {
	c := sampleConsumer()
	c.Suppressed = true

	// Even the owner cannot see their own suppressed consumer.
	if v := NewConsumerView(c, ownerActor()); v != nil {
		t.Error("suppressed consumer visible to owner")
	}
	if v := NewConsumerView(c, strangerActor()); v != nil {
		t.Error("suppressed consumer visible to stranger")
	}

	// The dedicated view scope restores visibility without granting manage.
	viewer := &auth.Actor{CentralID: 9, Scopes: []string{string(auth.ScopeSuppressedView)}}
	if v := NewConsumerView(c, viewer); v == nil {
		t.Error("suppressed consumer hidden from suppressed-view scope")
	}
	if v := NewConsumerView(c, managerActor()); v == nil {
		t.Error("suppressed consumer hidden from manager")
	}
}

func TestNewConsumerView_DeletedInvisible(t *testing.T) {
	c := sampleConsumer()
	c.Deleted = true
	if v := NewConsumerView(c, strangerActor()); v != nil {
		t.Error("deleted consumer visible to stranger")
	}
	if v := NewConsumerView(c, managerActor()); v == nil {
		t.Error("deleted consumer hidden from manager")
	}
}

func TestNewConsumerView_Nil(t *testing.T) {
	if v := NewConsumerView(nil, ownerActor()); v != nil {
		t.Error("view of nil consumer is not nil")
	}
}
