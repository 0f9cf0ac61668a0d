package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicconnect/civic/internal/access"
	"github.com/civicconnect/civic/internal/platform/db"
	"github.com/civicconnect/civic/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, email_verified, is_active, created_at, updated_at`

// List returns users ordered by id.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]User, error) {
	var role *string
	if filter.Role.Valid() {
		name := filter.Role.String()
		role = &name
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE ($1::text IS NULL OR role = $1)
		ORDER BY id
		LIMIT $2 OFFSET $3`, role, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UpdateRole sets the user's role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, role access.Role) error {
	return r.exec(ctx, `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, id, role.String())
}

// SetEmailVerified flags the user's email as verified.
func (r *Repository) SetEmailVerified(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE users SET email_verified = true, updated_at = now() WHERE id = $1`, id)
}

// SetActive toggles the active flag. Deactivation also drops the user's
// recorded sessions.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if active {
			return nil
		}
		_, err = tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, id)
		return err
	})
}

func (r *Repository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.EmailVerified, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	parsed, err := access.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("users: user %d: %w", u.ID, err)
	}
	u.Role = parsed
	return &u, nil
}

var _ RepositoryPort = (*Repository)(nil)
