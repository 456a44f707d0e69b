package user

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/postgres"
	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// selectColumns lists the columns returned by queries that produce a *User. Every method that scans into a User must
// select these columns in this exact order.
const selectColumns = `id, username, display_name, last_presence`

// scanUser scans a single row into a *User. The row must contain the columns listed in selectColumns.
func scanUser(row pgx.Row) (*User, error) {
	var (
		u  User
		id int64
		lp int16
	)
	if err := row.Scan(&id, &u.Username, &u.DisplayName, &lp); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ID = snowflake.UserID(snowflake.FromInt64(id))
	u.LastPresence = presence.FromInt16(lp)
	return &u, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed user repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts the user row and its password hash in a single transaction.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, username, last_presence) VALUES ($1, $2, $3)`,
			params.ID.Int64(), params.Username, int16(presence.StatusOnline),
		)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("insert user: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO secrets (user_id, password) VALUES ($1, $2)`,
			params.ID.Int64(), params.PasswordHash,
		)
		if err != nil {
			return fmt.Errorf("insert secret: %w", err)
		}

		return nil
	})
}

// GetByID returns the user matching the given ID.
func (r *PGRepository) GetByID(ctx context.Context, id snowflake.UserID) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1`, id.Int64()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return u, nil
}

// GetByUsername returns the user matching the given username.
func (r *PGRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by username: %w", err)
	}
	return u, nil
}

// GetCredentialsByUsername returns the user with their password hash. This is the only method that returns credentials,
// since it serves the authentication path.
func (r *PGRepository) GetCredentialsByUsername(ctx context.Context, username string) (*Credentials, error) {
	var (
		c  Credentials
		id int64
		lp int16
	)
	err := r.db.QueryRow(ctx,
		`SELECT users.id, users.username, users.display_name, users.last_presence, secrets.password
		 FROM users JOIN secrets ON users.id = secrets.user_id
		 WHERE users.username = $1`,
		username,
	).Scan(&id, &c.Username, &c.DisplayName, &lp, &c.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query credentials by username: %w", err)
	}
	c.ID = snowflake.UserID(snowflake.FromInt64(id))
	c.LastPresence = presence.FromInt16(lp)
	return &c, nil
}

// Update applies the non-nil fields in params to the user row and returns the updated user. Returns ErrNotFound if no
// row matches the given ID.
func (r *PGRepository) Update(ctx context.Context, id snowflake.UserID, params UpdateParams) (*User, error) {
	var setClauses []string
	var args []any

	if params.Username != nil {
		args = append(args, *params.Username)
		setClauses = append(setClauses, "username = $"+strconv.Itoa(len(args)))
	}
	if params.DisplayName != nil {
		args = append(args, *params.DisplayName)
		setClauses = append(setClauses, "display_name = $"+strconv.Itoa(len(args)))
	}
	if params.LastPresence != nil {
		args = append(args, int16(*params.LastPresence))
		setClauses = append(setClauses, "last_presence = $"+strconv.Itoa(len(args)))
	}

	// No fields to update. Return the current row without issuing an UPDATE.
	if len(setClauses) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id.Int64())
	query := "UPDATE users SET " + strings.Join(setClauses, ", ") +
		" WHERE id = $" + strconv.Itoa(len(args)) +
		" RETURNING " + selectColumns

	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if postgres.IsUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// UpdatePasswordHash updates the stored password hash for a user, used for lazy hash rotation when Argon2 parameters
// change.
func (r *PGRepository) UpdatePasswordHash(ctx context.Context, id snowflake.UserID, hash string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE secrets SET password = $1 WHERE user_id = $2`,
		hash, id.Int64(),
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

// Delete removes the user row. Secrets and memberships cascade.
func (r *PGRepository) Delete(ctx context.Context, id snowflake.UserID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.Int64())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
