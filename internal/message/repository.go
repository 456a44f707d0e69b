package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
	"github.com/quarrel-chat/quarrel-server/internal/user"
)

// selectColumns lists the columns returned by message queries. The users join is a LEFT JOIN because the author may
// have been deleted; scanMessage depends on this exact order.
const selectColumns = `messages.id, messages.channel_id, messages.content,
	messages.user_id, users.username, users.display_name, users.last_presence`

// scanMessage scans a joined messages/users row into a Message. Attachments are loaded separately.
func scanMessage(row pgx.Row) (Message, error) {
	var (
		m           Message
		id          int64
		channelID   int64
		authorID    *int64
		username    *string
		displayName *string
		lp          *int16
	)
	err := row.Scan(&id, &channelID, &m.Content, &authorID, &username, &displayName, &lp)
	if err != nil {
		return Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.ID = snowflake.MessageID(snowflake.FromInt64(id))
	m.ChannelID = snowflake.ChannelID(snowflake.FromInt64(channelID))
	if authorID != nil && username != nil {
		m.Author = &user.User{
			ID:          snowflake.UserID(snowflake.FromInt64(*authorID)),
			Username:    *username,
			DisplayName: displayName,
		}
		if lp != nil {
			m.Author.LastPresence = presence.FromInt16(*lp)
		}
	}
	return m, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed message repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts a new message row.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, channel_id, user_id, content) VALUES ($1, $2, $3, $4)`,
		params.ID.Int64(), params.ChannelID.Int64(), params.AuthorID.Int64(), params.Content,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetByID returns the message matching the given ID with its author joined in.
func (r *PGRepository) GetByID(ctx context.Context, id snowflake.MessageID) (*Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx,
		`SELECT `+selectColumns+`
		 FROM messages LEFT JOIN users ON messages.user_id = users.id
		 WHERE messages.id = $1`,
		id.Int64(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query message by id: %w", err)
	}
	return &m, nil
}

// GetChannelPage returns up to limit messages from the channel, newest first. When before is non-zero, only messages
// with a smaller ID are returned; snowflake ordering makes this a stable cursor.
func (r *PGRepository) GetChannelPage(ctx context.Context, channelID snowflake.ChannelID, before snowflake.MessageID, limit int) ([]Message, error) {
	query := `SELECT ` + selectColumns + `
		 FROM messages LEFT JOIN users ON messages.user_id = users.id
		 WHERE messages.channel_id = $1`
	args := []any{channelID.Int64()}

	if before != 0 {
		args = append(args, before.Int64())
		query += ` AND messages.id < $2`
	}
	args = append(args, ClampLimit(limit))
	query += fmt.Sprintf(` ORDER BY messages.id DESC LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channel page: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// UpdateContent replaces the message content and returns the updated message with its author joined in. Returns
// ErrNotFound if no row matches the given ID.
func (r *PGRepository) UpdateContent(ctx context.Context, id snowflake.MessageID, content string) (*Message, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE messages SET content = $1 WHERE id = $2`,
		content, id.Int64(),
	)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes the message row. Attachment metadata cascades.
func (r *PGRepository) Delete(ctx context.Context, id snowflake.MessageID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id.Int64())
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
