// stats_repository.go implements StatsRepository, aggregate queries backing
// the periodic Prometheus gauge refresh. These are read-only rollups, so they
// use sqlx convenience scanning and may run against the replica.
package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// StatsRepository handles aggregate registry statistics.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// StageCount is one row of the consumers-by-stage rollup.
type StageCount struct {
	Stage string `db:"stage"`
	Count int    `db:"count"`
}

// ConsumerCountsByStage returns the number of non-deleted consumers per stage.
func (r *StatsRepository) ConsumerCountsByStage(ctx context.Context) (map[string]int, error) {
	var rows []StageCount
	err := r.db.SelectContext(ctx, &rows, `
		SELECT stage, COUNT(*) AS count
		FROM oauth_consumers
		WHERE NOT deleted
		GROUP BY stage
	`)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Stage] = row.Count
	}
	return counts, nil
}

// ActiveTokenCount returns the number of non-revoked access tokens.
func (r *StatsRepository) ActiveTokenCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM oauth_access_tokens WHERE revoked_at IS NULL
	`)
	return count, err
}

// SuppressedConsumerCount returns the number of suppressed consumers.
func (r *StatsRepository) SuppressedConsumerCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM oauth_consumers WHERE suppressed AND NOT deleted
	`)
	return count, err
}
