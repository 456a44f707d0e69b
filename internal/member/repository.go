package member

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/postgres"
	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// selectColumns lists the columns returned by member queries that join the users table. scanMember depends on this
// exact order.
const selectColumns = `members.user_id, members.guild_id, members.nickname, members.joined_at,
	users.username, users.display_name, users.last_presence`

// scanMember scans a joined members/users row into a Member.
func scanMember(row pgx.Row) (Member, error) {
	var (
		m       Member
		userID  int64
		guildID int64
		lp      int16
	)
	err := row.Scan(&userID, &guildID, &m.Nickname, &m.JoinedAt, &m.User.Username, &m.User.DisplayName, &lp)
	if err != nil {
		return Member{}, fmt.Errorf("scan member: %w", err)
	}
	m.User.ID = snowflake.UserID(snowflake.FromInt64(userID))
	m.User.LastPresence = presence.FromInt16(lp)
	m.GuildID = snowflake.GuildID(snowflake.FromInt64(guildID))
	return m, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed member repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Add inserts a membership row.
func (r *PGRepository) Add(ctx context.Context, userID snowflake.UserID, guildID snowflake.GuildID, joinedAt int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO members (user_id, guild_id, joined_at) VALUES ($1, $2, $3)`,
		userID.Int64(), guildID.Int64(), joinedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// Get returns the membership of the given user in the given guild, with the user record attached.
func (r *PGRepository) Get(ctx context.Context, userID snowflake.UserID, guildID snowflake.GuildID) (*Member, error) {
	m, err := scanMember(r.db.QueryRow(ctx,
		`SELECT `+selectColumns+`
		 FROM members JOIN users ON members.user_id = users.id
		 WHERE members.user_id = $1 AND members.guild_id = $2`,
		userID.Int64(), guildID.Int64(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query member: %w", err)
	}
	return &m, nil
}

// GetAllForGuild returns every member of the given guild with user records attached.
func (r *PGRepository) GetAllForGuild(ctx context.Context, guildID snowflake.GuildID) ([]Member, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+selectColumns+`
		 FROM members JOIN users ON members.user_id = users.id
		 WHERE members.guild_id = $1
		 ORDER BY members.joined_at`,
		guildID.Int64(),
	)
	if err != nil {
		return nil, fmt.Errorf("query members for guild: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GuildIDsForUser returns the IDs of every guild the user belongs to. The gateway uses this to seed a fresh session's
// routing set.
func (r *PGRepository) GuildIDsForUser(ctx context.Context, userID snowflake.UserID) ([]snowflake.GuildID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT guild_id FROM members WHERE user_id = $1`,
		userID.Int64(),
	)
	if err != nil {
		return nil, fmt.Errorf("query guild ids for user: %w", err)
	}
	defer rows.Close()

	var ids []snowflake.GuildID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan guild id: %w", err)
		}
		ids = append(ids, snowflake.GuildID(snowflake.FromInt64(id)))
	}
	return ids, rows.Err()
}

// Remove deletes the membership row.
func (r *PGRepository) Remove(ctx context.Context, userID snowflake.UserID, guildID snowflake.GuildID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM members WHERE user_id = $1 AND guild_id = $2`,
		userID.Int64(), guildID.Int64(),
	)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
