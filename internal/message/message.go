package message

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/quarrel-chat/quarrel-server/internal/attachment"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
	"github.com/quarrel-chat/quarrel-server/internal/user"
)

// Sentinel errors for the message package.
var (
	ErrNotFound       = errors.New("message not found")
	ErrEmptyContent   = errors.New("message content must not be empty")
	ErrContentTooLong = errors.New("message content exceeds the maximum length")
	ErrNotAuthor      = errors.New("you can only modify your own messages")
)

// Pagination defaults.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// sanitizePolicy strips all HTML from message content. Rendering is plain text on every client, so markup has no
// legitimate use here.
var sanitizePolicy = bluemonday.StrictPolicy()

// Message is a chat message with its author joined in. Author is nil when the author's account has been deleted.
// Nonce is a client-chosen echo token carried on the create event only; it is never stored.
type Message struct {
	ID          snowflake.MessageID     `json:"id"`
	ChannelID   snowflake.ChannelID     `json:"channel_id"`
	Author      *user.User              `json:"author"`
	Nonce       *string                 `json:"nonce,omitempty"`
	Content     string                  `json:"content"`
	Attachments []attachment.Attachment `json:"attachments"`
}

// CreateParams groups the inputs for creating a new message.
type CreateParams struct {
	ID        snowflake.MessageID
	ChannelID snowflake.ChannelID
	AuthorID  snowflake.UserID
	Content   string
}

// ValidateContent sanitises and trims content, then checks it is non-empty and does not exceed the given maximum rune
// count.
func ValidateContent(content string, maxLength int) (string, error) {
	cleaned := strings.TrimSpace(sanitizePolicy.Sanitize(content))
	if cleaned == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(cleaned) > maxLength {
		return "", ErrContentTooLong
	}
	return cleaned, nil
}

// ClampLimit constrains a requested page size to [1, MaxLimit], defaulting to DefaultLimit when the input is zero or
// negative.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Repository defines the data-access contract for message operations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) error
	GetByID(ctx context.Context, id snowflake.MessageID) (*Message, error)
	GetChannelPage(ctx context.Context, channelID snowflake.ChannelID, before snowflake.MessageID, limit int) ([]Message, error)
	UpdateContent(ctx context.Context, id snowflake.MessageID, content string) (*Message, error)
	Delete(ctx context.Context, id snowflake.MessageID) error
}
