// Package attachment stores file attachments. Metadata rows live in PostgreSQL; the file bytes live in a MinIO bucket
// keyed by channel, message, and ordinal so that object keys never collide.
package attachment

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// Sentinel errors for the attachment package.
var (
	ErrNotFound          = errors.New("attachment not found")
	ErrNoFilename        = errors.New("attachment filename must not be empty")
	ErrTooManyPerMessage = errors.New("too many attachments on a single message")
)

// MaxPerMessage caps the attachment ordinal range on one message.
const MaxPerMessage = 10

// Attachment is the metadata of a single uploaded file. ID is the ordinal of the attachment within its message,
// starting from 1.
type Attachment struct {
	ID          int    `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`

	MessageID snowflake.MessageID `json:"-"`
	ChannelID snowflake.ChannelID `json:"-"`
}

// ObjectKey returns the storage key for the attachment's bytes.
func (a Attachment) ObjectKey() string {
	return fmt.Sprintf("%s/%s/%d/%s", a.ChannelID, a.MessageID, a.ID, a.Filename)
}

// Repository defines the data-access contract for attachment metadata.
type Repository interface {
	Create(ctx context.Context, a Attachment) error
	GetForMessage(ctx context.Context, messageID snowflake.MessageID) ([]Attachment, error)
	Get(ctx context.Context, messageID snowflake.MessageID, id int) (*Attachment, error)
}
