package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/quarrel-chat/quarrel-server/internal/channel"
	"github.com/quarrel-chat/quarrel-server/internal/guild"
	"github.com/quarrel-chat/quarrel-server/internal/member"
	"github.com/quarrel-chat/quarrel-server/internal/message"
	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
	"github.com/quarrel-chat/quarrel-server/internal/user"
)

// Wire names for server-to-client events.
const (
	EventHello          = "HELLO"
	EventReady          = "READY"
	EventGuildCreate    = "GUILD_CREATE"
	EventGuildRemove    = "GUILD_REMOVE"
	EventChannelCreate  = "CHANNEL_CREATE"
	EventChannelRemove  = "CHANNEL_REMOVE"
	EventMemberCreate   = "MEMBER_CREATE"
	EventMemberRemove   = "MEMBER_REMOVE"
	EventMessageCreate  = "MESSAGE_CREATE"
	EventPresenceUpdate = "PRESENCE_UPDATE"
	EventHeartbeatAck   = "HEARTBEAT_ACK"
	EventInvalidSession = "INVALID_SESSION"
)

// Event is one server-to-client gateway event. Every variant answers two
// routing questions: whether it is scoped to the members of one guild, and
// whether it describes one user specifically. A variant answering no to both
// is delivered to every connected client.
type Event interface {
	// EventName returns the wire name used in the envelope.
	EventName() string

	// GuildScope returns the guild the event is scoped to, if any.
	GuildScope() (snowflake.GuildID, bool)

	// UserScope returns the user the event describes, if any.
	UserScope() (snowflake.UserID, bool)
}

// envelope is the tagged wire shape shared by both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeEvent serialises an event into its wire envelope. The result is a
// complete text-frame payload ready to hand to a writer.
func EncodeEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.EventName(), err)
	}
	frame, err := json.Marshal(envelope{Event: e.EventName(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", e.EventName(), err)
	}
	return frame, nil
}

// Hello announces the heartbeat contract. It is written directly to a fresh
// socket before authentication and never routed through dispatch.
type Hello struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

func (Hello) EventName() string { return EventHello }
func (Hello) GuildScope() (snowflake.GuildID, bool) { return 0, false }
func (Hello) UserScope() (snowflake.UserID, bool) { return 0, false }

// Ready carries the authenticated user's own profile and guild list. Like
// Hello it is sent directly to one socket by the seeder.
type Ready struct {
	User   user.User     `json:"user"`
	Guilds []guild.Guild `json:"guilds"`
}

func (Ready) EventName() string { return EventReady }
func (Ready) GuildScope() (snowflake.GuildID, bool) { return 0, false }
func (Ready) UserScope() (snowflake.UserID, bool) { return 0, false }

// GuildCreate carries a full guild snapshot: the guild row, its member list
// with displayed presence, and its channels.
type GuildCreate struct {
	Guild    guild.Guild       `json:"guild"`
	Members  []member.Member   `json:"members"`
	Channels []channel.Channel `json:"channels"`
}

func (e GuildCreate) EventName() string { return EventGuildCreate }
func (e GuildCreate) GuildScope() (snowflake.GuildID, bool) { return e.Guild.ID, true }
func (GuildCreate) UserScope() (snowflake.UserID, bool) { return 0, false }

// GuildRemove tells members of a deleted guild that it is gone.
type GuildRemove struct {
	ID snowflake.GuildID `json:"id"`
}

func (e GuildRemove) EventName() string { return EventGuildRemove }
func (e GuildRemove) GuildScope() (snowflake.GuildID, bool) { return e.ID, true }
func (GuildRemove) UserScope() (snowflake.UserID, bool) { return 0, false }

// ChannelCreate announces a new channel to the members of its guild.
type ChannelCreate struct {
	Channel channel.Channel `json:"channel"`
}

func (e ChannelCreate) EventName() string { return EventChannelCreate }
func (e ChannelCreate) GuildScope() (snowflake.GuildID, bool) { return e.Channel.GuildID, true }
func (ChannelCreate) UserScope() (snowflake.UserID, bool) { return 0, false }

// ChannelRemove announces a deleted channel. GuildID routes the event and is
// not serialised; clients already know which guild the channel belonged to.
type ChannelRemove struct {
	ID      snowflake.ChannelID `json:"id"`
	GuildID snowflake.GuildID   `json:"-"`
}

func (e ChannelRemove) EventName() string { return EventChannelRemove }
func (e ChannelRemove) GuildScope() (snowflake.GuildID, bool) { return e.GuildID, true }
func (ChannelRemove) UserScope() (snowflake.UserID, bool) { return 0, false }

// MemberCreate announces a user joining a guild.
type MemberCreate struct {
	Member member.Member `json:"member"`
}

func (e MemberCreate) EventName() string { return EventMemberCreate }
func (e MemberCreate) GuildScope() (snowflake.GuildID, bool) { return e.Member.GuildID, true }
func (MemberCreate) UserScope() (snowflake.UserID, bool) { return 0, false }

// MemberRemove announces a user leaving a guild. The departing user receives
// it too, as long as their registry entry still lists the guild when the
// dispatcher visits them.
type MemberRemove struct {
	ID      snowflake.UserID  `json:"id"`
	GuildID snowflake.GuildID `json:"-"`
}

func (e MemberRemove) EventName() string { return EventMemberRemove }
func (e MemberRemove) GuildScope() (snowflake.GuildID, bool) { return e.GuildID, true }
func (MemberRemove) UserScope() (snowflake.UserID, bool) { return 0, false }

// MessageCreate carries a newly committed message. GuildID is the guild of
// the message's channel; it routes the event and is not serialised.
type MessageCreate struct {
	Message message.Message   `json:"message"`
	GuildID snowflake.GuildID `json:"-"`
}

func (e MessageCreate) EventName() string { return EventMessageCreate }
func (e MessageCreate) GuildScope() (snowflake.GuildID, bool) { return e.GuildID, true }
func (MessageCreate) UserScope() (snowflake.UserID, bool) { return 0, false }

// PresenceUpdate announces a presence change for one user. It is user-scoped:
// it reaches the user themselves plus everyone sharing at least one guild
// with them. Guilds carries the user's membership at the moment the update
// was produced so that an update sent after disconnect, when the registry no
// longer knows the user's guilds, still reaches their peers.
type PresenceUpdate struct {
	UserID   snowflake.UserID    `json:"user_id"`
	Presence presence.Status     `json:"presence"`
	Guilds   []snowflake.GuildID `json:"-"`
}

func (PresenceUpdate) EventName() string { return EventPresenceUpdate }
func (PresenceUpdate) GuildScope() (snowflake.GuildID, bool) { return 0, false }
func (e PresenceUpdate) UserScope() (snowflake.UserID, bool) { return e.UserID, true }
func (e PresenceUpdate) guildHint() []snowflake.GuildID { return e.Guilds }

// HeartbeatAck acknowledges one client heartbeat. Sent to a single user via
// SendTo, never dispatched.
type HeartbeatAck struct{}

func (HeartbeatAck) EventName() string { return EventHeartbeatAck }
func (HeartbeatAck) GuildScope() (snowflake.GuildID, bool) { return 0, false }
func (HeartbeatAck) UserScope() (snowflake.UserID, bool) { return 0, false }

// InvalidSession tells a client its session is no longer valid and it must
// re-identify.
type InvalidSession struct {
	Reason string `json:"reason"`
}

func (InvalidSession) EventName() string { return EventInvalidSession }
func (InvalidSession) GuildScope() (snowflake.GuildID, bool) { return 0, false }
func (InvalidSession) UserScope() (snowflake.UserID, bool) { return 0, false }

// guildHinter is implemented by user-scoped events that carry a membership
// snapshot for routing when the subject is no longer connected.
type guildHinter interface {
	guildHint() []snowflake.GuildID
}
