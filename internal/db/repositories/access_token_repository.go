// access_token_repository.go implements AccessTokenRepository, providing
// database queries for token issuance, revocation, and per-consumer counts.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/consumer-registry/consumer-registry/internal/db/models"
	"github.com/google/uuid"
)

// AccessTokenRepository handles access token database operations.
type AccessTokenRepository struct {
	db execer
}

// NewAccessTokenRepository creates a new AccessTokenRepository.
func NewAccessTokenRepository(db *sql.DB) *AccessTokenRepository {
	return &AccessTokenRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx so token mutations can
// commit atomically with the consumer transition that caused them.
func (r *AccessTokenRepository) WithTx(tx *sql.Tx) *AccessTokenRepository {
	return &AccessTokenRepository{db: tx}
}

// Create inserts a new access token row.
func (r *AccessTokenRepository) Create(ctx context.Context, t *models.AccessToken) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.IssuedAt.IsZero() {
		t.IssuedAt = time.Now()
	}

	grantsJSON, err := json.Marshal(emptyIfNil(t.Grants))
	if err != nil {
		return fmt.Errorf("encode grants: %w", err)
	}

	query := `
		INSERT INTO oauth_access_tokens (id, consumer_id, user_id, token_key, secret_hash, grants, wiki, issued_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.ConsumerID, t.UserID, t.TokenKey, t.SecretHash,
		grantsJSON, t.Wiki, t.IssuedAt, t.RevokedAt,
	)
	return err
}

// GetByID retrieves an access token by id.
func (r *AccessTokenRepository) GetByID(ctx context.Context, id string) (*models.AccessToken, error) {
	query := `
		SELECT id, consumer_id, user_id, token_key, secret_hash, grants, wiki, issued_at, revoked_at
		FROM oauth_access_tokens
		WHERE id = $1
	`
	return scanAccessToken(r.db.QueryRowContext(ctx, query, id))
}

// GetByTokenKey retrieves an access token by its public token identifier.
func (r *AccessTokenRepository) GetByTokenKey(ctx context.Context, key string) (*models.AccessToken, error) {
	query := `
		SELECT id, consumer_id, user_id, token_key, secret_hash, grants, wiki, issued_at, revoked_at
		FROM oauth_access_tokens
		WHERE token_key = $1
	`
	return scanAccessToken(r.db.QueryRowContext(ctx, query, key))
}

// ListByConsumer retrieves all tokens for a consumer, newest first.
func (r *AccessTokenRepository) ListByConsumer(ctx context.Context, consumerID string) ([]*models.AccessToken, error) {
	query := `
		SELECT id, consumer_id, user_id, token_key, secret_hash, grants, wiki, issued_at, revoked_at
		FROM oauth_access_tokens
		WHERE consumer_id = $1
		ORDER BY issued_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, consumerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*models.AccessToken
	for rows.Next() {
		t, err := scanAccessToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Revoke marks a single token revoked. Returns sql.ErrNoRows if the token does
// not exist or is already revoked.
func (r *AccessTokenRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE oauth_access_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

// RevokeAllForConsumer revokes every outstanding token of a consumer and
// returns how many were revoked. Already-revoked tokens keep their original
// revocation time.
func (r *AccessTokenRepository) RevokeAllForConsumer(ctx context.Context, consumerID string, at time.Time) (int64, error) {
	query := `UPDATE oauth_access_tokens SET revoked_at = $1 WHERE consumer_id = $2 AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, consumerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountActiveForConsumer counts the non-revoked tokens of a consumer.
func (r *AccessTokenRepository) CountActiveForConsumer(ctx context.Context, consumerID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM oauth_access_tokens WHERE consumer_id = $1 AND revoked_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, consumerID).Scan(&count)
	return count, err
}

func scanAccessToken(row interface{ Scan(...interface{}) error }) (*models.AccessToken, error) {
	t := &models.AccessToken{}
	var grantsJSON []byte

	err := row.Scan(
		&t.ID,
		&t.ConsumerID,
		&t.UserID,
		&t.TokenKey,
		&t.SecretHash,
		&grantsJSON,
		&t.Wiki,
		&t.IssuedAt,
		&t.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(grantsJSON, &t.Grants); err != nil {
		return nil, fmt.Errorf("decode grants: %w", err)
	}
	return t, nil
}
