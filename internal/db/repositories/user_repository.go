// user_repository.go implements UserRepository, the central-identity resolver:
// it maps display usernames to stable central account ids and loads the
// eligibility attributes (block state, email confirmation, capability scopes)
// the registration workflow checks.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/consumer-registry/consumer-registry/internal/db/models"
)

// UserRepository handles user database operations.
type UserRepository struct {
	db execer
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `central_id, username, email, email_confirmed, blocked, scopes, created_at, updated_at`

// GetByCentralID retrieves a user by central account id.
func (r *UserRepository) GetByCentralID(ctx context.Context, centralID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE central_id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, centralID))
}

// GetByUsername resolves a display username to the stable central account.
// Returns (nil, nil) when no such user exists; the service layer maps that to
// its NoSuchUser error.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	scopesJSON, err := json.Marshal(emptyIfNil(u.Scopes))
	if err != nil {
		return fmt.Errorf("encode scopes: %w", err)
	}

	query := `
		INSERT INTO users (central_id, username, email, email_confirmed, blocked, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		u.CentralID, u.Username, u.Email, u.EmailConfirmed, u.Blocked,
		scopesJSON, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	u := &models.User{}
	var scopesJSON []byte

	err := row.Scan(
		&u.CentralID,
		&u.Username,
		&u.Email,
		&u.EmailConfirmed,
		&u.Blocked,
		&scopesJSON,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(scopesJSON, &u.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	return u, nil
}
