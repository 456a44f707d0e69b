package guild

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/postgres"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// selectColumns lists the columns returned by queries that produce a *Guild.
const selectColumns = `id, name, owner_id`

// scanGuild scans a single row into a Guild. The row must contain the columns listed in selectColumns.
func scanGuild(row pgx.Row) (Guild, error) {
	var (
		g       Guild
		id      int64
		ownerID int64
	)
	if err := row.Scan(&id, &g.Name, &ownerID); err != nil {
		return Guild{}, fmt.Errorf("scan guild: %w", err)
	}
	g.ID = snowflake.GuildID(snowflake.FromInt64(id))
	g.OwnerID = snowflake.UserID(snowflake.FromInt64(ownerID))
	return g, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed guild repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// CreateWithDefaults inserts the guild row, the owner's membership row, and the default text channel in a single
// transaction.
func (r *PGRepository) CreateWithDefaults(ctx context.Context, g Guild, channelID snowflake.ChannelID, channelName string, joinedAt int64) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO guilds (id, name, owner_id) VALUES ($1, $2, $3)`,
			g.ID.Int64(), g.Name, g.OwnerID.Int64(),
		); err != nil {
			return fmt.Errorf("insert guild: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO members (user_id, guild_id, joined_at) VALUES ($1, $2, $3)`,
			g.OwnerID.Int64(), g.ID.Int64(), joinedAt,
		); err != nil {
			return fmt.Errorf("insert owner member: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO channels (id, guild_id, name) VALUES ($1, $2, $3)`,
			channelID.Int64(), g.ID.Int64(), channelName,
		); err != nil {
			return fmt.Errorf("insert default channel: %w", err)
		}
		return nil
	})
}

// GetByID returns the guild matching the given ID.
func (r *PGRepository) GetByID(ctx context.Context, id snowflake.GuildID) (*Guild, error) {
	g, err := scanGuild(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM guilds WHERE id = $1`, id.Int64()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query guild by id: %w", err)
	}
	return &g, nil
}

// GetAllForUser returns every guild the given user is a member of.
func (r *PGRepository) GetAllForUser(ctx context.Context, userID snowflake.UserID) ([]Guild, error) {
	rows, err := r.db.Query(ctx,
		`SELECT guilds.id, guilds.name, guilds.owner_id
		 FROM guilds JOIN members ON guilds.id = members.guild_id
		 WHERE members.user_id = $1`,
		userID.Int64(),
	)
	if err != nil {
		return nil, fmt.Errorf("query guilds for user: %w", err)
	}
	defer rows.Close()

	var guilds []Guild
	for rows.Next() {
		g, err := scanGuild(rows)
		if err != nil {
			return nil, err
		}
		guilds = append(guilds, g)
	}
	return guilds, rows.Err()
}

// Delete removes the guild row. Channels, members, and messages cascade.
func (r *PGRepository) Delete(ctx context.Context, id snowflake.GuildID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM guilds WHERE id = $1`, id.Int64())
	if err != nil {
		return fmt.Errorf("delete guild: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
