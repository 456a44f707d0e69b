package attachment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

const selectColumns = `id, message_id, channel_id, filename, content_type`

func scanAttachment(row pgx.Row) (Attachment, error) {
	var (
		a         Attachment
		messageID int64
		channelID int64
	)
	if err := row.Scan(&a.ID, &messageID, &channelID, &a.Filename, &a.ContentType); err != nil {
		return Attachment{}, fmt.Errorf("scan attachment: %w", err)
	}
	a.MessageID = snowflake.MessageID(snowflake.FromInt64(messageID))
	a.ChannelID = snowflake.ChannelID(snowflake.FromInt64(channelID))
	return a, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed attachment repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts an attachment metadata row.
func (r *PGRepository) Create(ctx context.Context, a Attachment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO attachments (id, message_id, channel_id, filename, content_type)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.MessageID.Int64(), a.ChannelID.Int64(), a.Filename, a.ContentType,
	)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

// GetForMessage returns every attachment of the given message, ordered by ordinal.
func (r *PGRepository) GetForMessage(ctx context.Context, messageID snowflake.MessageID) ([]Attachment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+selectColumns+` FROM attachments WHERE message_id = $1 ORDER BY id`,
		messageID.Int64(),
	)
	if err != nil {
		return nil, fmt.Errorf("query attachments for message: %w", err)
	}
	defer rows.Close()

	var attachments []Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// Get returns a single attachment by message ID and ordinal.
func (r *PGRepository) Get(ctx context.Context, messageID snowflake.MessageID, id int) (*Attachment, error) {
	a, err := scanAttachment(r.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM attachments WHERE message_id = $1 AND id = $2`,
		messageID.Int64(), id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query attachment: %w", err)
	}
	return &a, nil
}
