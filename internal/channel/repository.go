package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// selectColumns lists the columns returned by queries that produce a *Channel.
const selectColumns = `id, guild_id, name`

// scanChannel scans a single row into a Channel. The row must contain the columns listed in selectColumns.
func scanChannel(row pgx.Row) (Channel, error) {
	var (
		c       Channel
		id      int64
		guildID int64
	)
	if err := row.Scan(&id, &guildID, &c.Name); err != nil {
		return Channel{}, fmt.Errorf("scan channel: %w", err)
	}
	c.ID = snowflake.ChannelID(snowflake.FromInt64(id))
	c.GuildID = snowflake.GuildID(snowflake.FromInt64(guildID))
	return c, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed channel repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts a new channel row.
func (r *PGRepository) Create(ctx context.Context, c Channel) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO channels (id, guild_id, name) VALUES ($1, $2, $3)`,
		c.ID.Int64(), c.GuildID.Int64(), c.Name,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

// GetByID returns the channel matching the given ID.
func (r *PGRepository) GetByID(ctx context.Context, id snowflake.ChannelID) (*Channel, error) {
	c, err := scanChannel(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM channels WHERE id = $1`, id.Int64()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query channel by id: %w", err)
	}
	return &c, nil
}

// GetAllForGuild returns every channel in the given guild.
func (r *PGRepository) GetAllForGuild(ctx context.Context, guildID snowflake.GuildID) ([]Channel, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+selectColumns+` FROM channels WHERE guild_id = $1 ORDER BY id`,
		guildID.Int64(),
	)
	if err != nil {
		return nil, fmt.Errorf("query channels for guild: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// UpdateName renames the channel and returns the updated row. Returns ErrNotFound if no row matches the given ID.
func (r *PGRepository) UpdateName(ctx context.Context, id snowflake.ChannelID, name string) (*Channel, error) {
	c, err := scanChannel(r.db.QueryRow(ctx,
		`UPDATE channels SET name = $1 WHERE id = $2 RETURNING `+selectColumns,
		name, id.Int64(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update channel: %w", err)
	}
	return &c, nil
}

// Delete removes the channel row. Messages cascade.
func (r *PGRepository) Delete(ctx context.Context, id snowflake.ChannelID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id.Int64())
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
