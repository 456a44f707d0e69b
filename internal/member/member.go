// Package member holds guild membership records. A member embeds the user it represents; the joined list of guild IDs
// for a user also drives gateway event routing.
package member

import (
	"context"
	"errors"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
	"github.com/quarrel-chat/quarrel-server/internal/user"
)

// Sentinel errors for the member package.
var (
	ErrNotFound      = errors.New("member not found")
	ErrAlreadyExists = errors.New("user is already a member of this guild")
)

// Member ties a user to a guild.
type Member struct {
	User     user.User         `json:"user"`
	GuildID  snowflake.GuildID `json:"guild_id"`
	Nickname *string           `json:"nickname"`
	JoinedAt int64             `json:"joined_at"`
}

// Repository defines the data-access contract for membership operations.
type Repository interface {
	Add(ctx context.Context, userID snowflake.UserID, guildID snowflake.GuildID, joinedAt int64) error
	Get(ctx context.Context, userID snowflake.UserID, guildID snowflake.GuildID) (*Member, error)
	GetAllForGuild(ctx context.Context, guildID snowflake.GuildID) ([]Member, error)
	GuildIDsForUser(ctx context.Context, userID snowflake.UserID) ([]snowflake.GuildID, error)
	Remove(ctx context.Context, userID snowflake.UserID, guildID snowflake.GuildID) error
}
