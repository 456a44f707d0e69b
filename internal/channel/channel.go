package channel

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// Sentinel errors for the channel package.
var (
	ErrNotFound   = errors.New("channel not found")
	ErrNameLength = errors.New("channel name must be between 1 and 100 characters")
)

// DefaultName is the name of the text channel created alongside every new guild.
const DefaultName = "general"

// Channel is a guild-scoped text channel.
type Channel struct {
	ID      snowflake.ChannelID `json:"id"`
	GuildID snowflake.GuildID   `json:"guild_id"`
	Name    string              `json:"name"`
}

// NormalizeName trims surrounding whitespace from the name.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// ValidateName checks that the channel name is between 1 and 100 Unicode characters.
func ValidateName(name string) error {
	if n := utf8.RuneCountInString(name); n < 1 || n > 100 {
		return ErrNameLength
	}
	return nil
}

// Repository defines the data-access contract for channel operations.
type Repository interface {
	Create(ctx context.Context, c Channel) error
	GetByID(ctx context.Context, id snowflake.ChannelID) (*Channel, error)
	GetAllForGuild(ctx context.Context, guildID snowflake.GuildID) ([]Channel, error)
	UpdateName(ctx context.Context, id snowflake.ChannelID, name string) (*Channel, error)
	Delete(ctx context.Context, id snowflake.ChannelID) error
}
