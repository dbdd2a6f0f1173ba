// audit_repository.go implements AuditRepository, providing database queries
// for writing and retrieving the append-only audit trail of consumer lifecycle
// transitions. There is deliberately no update or delete path.
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

// AuditRepository handles audit log database operations.
type AuditRepository struct {
	db execer
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx so the audit row commits
// atomically with the transition it records.
func (r *AuditRepository) WithTx(tx *sql.Tx) *AuditRepository {
	return &AuditRepository{db: tx}
}

// Create appends a new audit log entry.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO audit_logs (id, actor_id, action, resource_type, resource_id, old_stage, new_stage, reason, metadata, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.ActorID, entry.Action,
		entry.ResourceType, entry.ResourceID,
		entry.OldStage, entry.NewStage, entry.Reason,
		metadataJSON, entry.IPAddress, entry.CreatedAt,
	)
	return err
}

// AuditFilters contains filters for querying audit logs.
type AuditFilters struct {
	ActorID      *int64
	Action       *string
	ResourceType *string
	ResourceID   *string
	StartDate    *time.Time
	EndDate      *time.Time
}

// List retrieves audit logs with optional filters and pagination, newest first.
func (r *AuditRepository) List(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_logs WHERE 1=1`
	query := `
		SELECT id, actor_id, action, resource_type, resource_id, old_stage, new_stage, reason, metadata, ip_address, created_at
		FROM audit_logs
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	paramIndex := 1

	addFilter := func(clause string, value interface{}) {
		cond := fmt.Sprintf(clause, paramIndex)
		countQuery += cond
		query += cond
		args = append(args, value)
		paramIndex++
	}

	if filters.ActorID != nil {
		addFilter(` AND actor_id = $%d`, *filters.ActorID)
	}
	if filters.Action != nil {
		addFilter(` AND action = $%d`, *filters.Action)
	}
	if filters.ResourceType != nil {
		addFilter(` AND resource_type = $%d`, *filters.ResourceType)
	}
	if filters.ResourceID != nil {
		addFilter(` AND resource_id = $%d`, *filters.ResourceID)
	}
	if filters.StartDate != nil {
		addFilter(` AND created_at >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		addFilter(` AND created_at <= $%d`, *filters.EndDate)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]*models.AuditLog, 0, limit)
	for rows.Next() {
		e := &models.AuditLog{}
		var metadataJSON []byte
		err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action,
			&e.ResourceType, &e.ResourceID,
			&e.OldStage, &e.NewStage, &e.Reason,
			&metadataJSON, &e.IPAddress, &e.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, 0, err
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
