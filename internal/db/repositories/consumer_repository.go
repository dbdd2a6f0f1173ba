// consumer_repository.go implements ConsumerRepository, providing database
// queries for consumer lookup by key/id, creation, field updates, stage
// transitions, and the paginated owner listing used by the query façade.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/consumer-registry/consumer-registry/internal/db/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// execer is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside or outside an explicit transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// ConsumerRepository handles consumer database operations. Reads that tolerate
// replica staleness (GetByKey, GetByID, List) go through the reader handle;
// writes and FOR UPDATE reads always use the primary.
type ConsumerRepository struct {
	db     execer
	reader execer
}

// NewConsumerRepository creates a ConsumerRepository on the primary handle.
func NewConsumerRepository(db *sql.DB) *ConsumerRepository {
	return &ConsumerRepository{db: db, reader: db}
}

// NewConsumerRepositoryWithReplica creates a ConsumerRepository that serves
// replica-tolerant reads from reader. A nil reader falls back to the primary.
func NewConsumerRepositoryWithReplica(db, reader *sql.DB) *ConsumerRepository {
	r := &ConsumerRepository{db: db, reader: db}
	if reader != nil {
		r.reader = reader
	}
	return r
}

// WithTx returns a copy of the repository bound to tx. All reads through the
// returned repository hit the transaction, so precondition checks see locked
// primary state rather than replica data.
func (r *ConsumerRepository) WithTx(tx *sql.Tx) *ConsumerRepository {
	return &ConsumerRepository{db: tx, reader: tx}
}

const consumerColumns = `id, consumer_key, name, version, owner_id, description, email,
	secret_hash, rsa_public_key, callback_url, callback_is_prefix,
	grants, allowed_grant_types, restrictions,
	stage, stage_changed, suppressed, deleted,
	oauth_version, confidential, owner_only, registered_at`

// scanConsumer scans one consumer row, decoding the JSONB columns.
func scanConsumer(row interface{ Scan(...interface{}) error }) (*models.Consumer, error) {
	c := &models.Consumer{}
	var grantsJSON, grantTypesJSON, restrictionsJSON []byte

	err := row.Scan(
		&c.ID,
		&c.ConsumerKey,
		&c.Name,
		&c.Version,
		&c.OwnerID,
		&c.Description,
		&c.Email,
		&c.SecretHash,
		&c.RSAPublicKey,
		&c.CallbackURL,
		&c.CallbackIsPrefix,
		&grantsJSON,
		&grantTypesJSON,
		&restrictionsJSON,
		&c.Stage,
		&c.StageChanged,
		&c.Suppressed,
		&c.Deleted,
		&c.OAuthVersion,
		&c.Confidential,
		&c.OwnerOnly,
		&c.RegisteredAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(grantsJSON, &c.Grants); err != nil {
		return nil, fmt.Errorf("decode grants: %w", err)
	}
	if err := json.Unmarshal(grantTypesJSON, &c.AllowedGrantTypes); err != nil {
		return nil, fmt.Errorf("decode allowed_grant_types: %w", err)
	}
	if err := json.Unmarshal(restrictionsJSON, &c.Restrictions); err != nil {
		return nil, fmt.Errorf("decode restrictions: %w", err)
	}

	return c, nil
}

// GetByKey retrieves a consumer by its public consumer key.
func (r *ConsumerRepository) GetByKey(ctx context.Context, key string) (*models.Consumer, error) {
	query := `SELECT ` + consumerColumns + ` FROM oauth_consumers WHERE consumer_key = $1`
	return scanConsumer(r.reader.QueryRowContext(ctx, query, key))
}

// GetByID retrieves a consumer by surrogate id.
func (r *ConsumerRepository) GetByID(ctx context.Context, id string) (*models.Consumer, error) {
	query := `SELECT ` + consumerColumns + ` FROM oauth_consumers WHERE id = $1`
	return scanConsumer(r.reader.QueryRowContext(ctx, query, id))
}

// GetByKeyForUpdate retrieves a consumer by key with a row lock. Must run
// inside a transaction (use WithTx); concurrent transitions on the same row
// serialize here.
func (r *ConsumerRepository) GetByKeyForUpdate(ctx context.Context, key string) (*models.Consumer, error) {
	query := `SELECT ` + consumerColumns + ` FROM oauth_consumers WHERE consumer_key = $1 FOR UPDATE`
	return scanConsumer(r.db.QueryRowContext(ctx, query, key))
}

// GetByNameVersionOwner retrieves a non-deleted consumer by its uniqueness triple.
func (r *ConsumerRepository) GetByNameVersionOwner(ctx context.Context, name, version string, ownerID int64) (*models.Consumer, error) {
	query := `SELECT ` + consumerColumns + `
		FROM oauth_consumers
		WHERE name = $1 AND version = $2 AND owner_id = $3 AND NOT deleted`
	return scanConsumer(r.db.QueryRowContext(ctx, query, name, version, ownerID))
}

// Create inserts a new consumer row.
func (r *ConsumerRepository) Create(ctx context.Context, c *models.Consumer) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = time.Now()
	}
	if c.StageChanged.IsZero() {
		c.StageChanged = c.RegisteredAt
	}

	grantsJSON, grantTypesJSON, restrictionsJSON, err := encodeConsumerJSON(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO oauth_consumers (
			id, consumer_key, name, version, owner_id, description, email,
			secret_hash, rsa_public_key, callback_url, callback_is_prefix,
			grants, allowed_grant_types, restrictions,
			stage, stage_changed, suppressed, deleted,
			oauth_version, confidential, owner_only, registered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`

	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.ConsumerKey, c.Name, c.Version, c.OwnerID, c.Description, c.Email,
		c.SecretHash, c.RSAPublicKey, c.CallbackURL, c.CallbackIsPrefix,
		grantsJSON, grantTypesJSON, restrictionsJSON,
		c.Stage, c.StageChanged, c.Suppressed, c.Deleted,
		c.OAuthVersion, c.Confidential, c.OwnerOnly, c.RegisteredAt,
	)
	return err
}

// UpdateFields overwrites the mutable fields of a proposed consumer. The
// consumer key, name, version, owner, oauth version, and stage are immutable
// through this path.
func (r *ConsumerRepository) UpdateFields(ctx context.Context, c *models.Consumer) error {
	grantsJSON, grantTypesJSON, restrictionsJSON, err := encodeConsumerJSON(c)
	if err != nil {
		return err
	}

	query := `
		UPDATE oauth_consumers
		SET description = $1, email = $2,
		    secret_hash = $3, rsa_public_key = $4,
		    callback_url = $5, callback_is_prefix = $6,
		    grants = $7, allowed_grant_types = $8, restrictions = $9,
		    confidential = $10, owner_only = $11
		WHERE id = $12
	`

	result, err := r.db.ExecContext(ctx, query,
		c.Description, c.Email,
		c.SecretHash, c.RSAPublicKey,
		c.CallbackURL, c.CallbackIsPrefix,
		grantsJSON, grantTypesJSON, restrictionsJSON,
		c.Confidential, c.OwnerOnly,
		c.ID,
	)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

// UpdateStage moves a consumer to a new stage, recording the change time and
// the suppression flag.
func (r *ConsumerRepository) UpdateStage(ctx context.Context, id string, stage models.Stage, suppressed bool, changed time.Time) error {
	query := `
		UPDATE oauth_consumers
		SET stage = $1, suppressed = $2, stage_changed = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, stage, suppressed, changed, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result)
}

// ConsumerFilter describes the predicates accepted by List. OwnerID is
// required, OAuthVersion is an optional exact match.
type ConsumerFilter struct {
	OwnerID      int64
	OAuthVersion *int
}

// List retrieves a page of a user's consumers, most recently registered first
// and tie-broken by id descending so pagination stays stable under concurrent
// inserts. The returned total is the unfiltered store count for the predicate,
// before any per-row redaction the caller applies.
func (r *ConsumerRepository) List(ctx context.Context, filter ConsumerFilter, limit, offset int) ([]*models.Consumer, int, error) {
	where := ` WHERE owner_id = $1 AND NOT deleted`
	args := []interface{}{filter.OwnerID}
	if filter.OAuthVersion != nil {
		where += ` AND oauth_version = $2`
		args = append(args, *filter.OAuthVersion)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM oauth_consumers` + where
	if err := r.reader.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + consumerColumns + ` FROM oauth_consumers` + where +
		fmt.Sprintf(` ORDER BY registered_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	consumers := make([]*models.Consumer, 0, limit)
	for rows.Next() {
		c, err := scanConsumer(rows)
		if err != nil {
			return nil, 0, err
		}
		consumers = append(consumers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return consumers, total, nil
}

func encodeConsumerJSON(c *models.Consumer) (grants, grantTypes, restrictions []byte, err error) {
	grants, err = json.Marshal(emptyIfNil(c.Grants))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode grants: %w", err)
	}
	grantTypes, err = json.Marshal(emptyIfNil(c.AllowedGrantTypes))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode allowed_grant_types: %w", err)
	}
	restrictions, err = json.Marshal(c.Restrictions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode restrictions: %w", err)
	}
	return grants, grantTypes, restrictions, nil
}

// emptyIfNil keeps JSONB columns as [] rather than null for nil slices.
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func requireRowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
