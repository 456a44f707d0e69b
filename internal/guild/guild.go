// Package guild holds the guild model and its persistence layer. A guild is owned by exactly one user; ownership is
// checked by HTTP handlers before mutating guild-scoped resources.
package guild

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// Sentinel errors for the guild package.
var (
	ErrNotFound    = errors.New("guild not found")
	ErrNameLength  = errors.New("guild name must be between 1 and 100 characters")
	ErrOwnerLeaves = errors.New("the guild owner cannot leave their own guild")
)

// Guild is a named collection of channels and members.
type Guild struct {
	ID      snowflake.GuildID `json:"id"`
	Name    string            `json:"name"`
	OwnerID snowflake.UserID  `json:"owner_id"`
}

// NormalizeName trims surrounding whitespace from the name.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// ValidateName checks that the guild name is between 1 and 100 Unicode characters.
func ValidateName(name string) error {
	if n := utf8.RuneCountInString(name); n < 1 || n > 100 {
		return ErrNameLength
	}
	return nil
}

// Repository defines the data-access contract for guild operations.
type Repository interface {
	// CreateWithDefaults inserts the guild row, the owner's membership, and
	// the default text channel atomically. A guild is never visible without
	// its owner and first channel.
	CreateWithDefaults(ctx context.Context, g Guild, channelID snowflake.ChannelID, channelName string, joinedAt int64) error
	GetByID(ctx context.Context, id snowflake.GuildID) (*Guild, error)
	GetAllForUser(ctx context.Context, userID snowflake.UserID) ([]Guild, error)
	Delete(ctx context.Context, id snowflake.GuildID) error
}
