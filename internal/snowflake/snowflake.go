// Package snowflake implements 64-bit time-ordered entity identifiers. The layout is 41 bits of millisecond timestamp
// relative to a custom epoch, 5 bits of machine ID, 5 bits of process ID, and a 12-bit per-millisecond sequence.
// Snowflakes serialise as decimal strings in JSON because several client platforms cannot represent the full 64-bit
// range as a number.
package snowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Epoch is the custom snowflake epoch, 2023-01-01T00:00:00Z, in Unix seconds.
const Epoch = 1672531200

const (
	timestampShift = 22
	machineShift   = 17
	processShift   = 12

	machineMask  = 0x3E0000
	processMask  = 0x1F000
	sequenceMask = 0xFFF
)

// ID is the raw 64-bit snowflake value underlying every typed identifier.
type ID uint64

// Timestamp returns the creation time encoded in the snowflake as Unix milliseconds.
func (id ID) Timestamp() int64 {
	return int64(id>>timestampShift) + Epoch*1000
}

// CreatedAt returns the creation time encoded in the snowflake.
func (id ID) CreatedAt() time.Time {
	return time.UnixMilli(id.Timestamp()).UTC()
}

// MachineID returns the machine ID that generated this snowflake.
func (id ID) MachineID() uint64 {
	return uint64(id&machineMask) >> machineShift
}

// ProcessID returns the process ID that generated this snowflake.
func (id ID) ProcessID() uint64 {
	return uint64(id&processMask) >> processShift
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Int64 returns the snowflake reinterpreted as a signed 64-bit integer for database storage.
func (id ID) Int64() int64 {
	return int64(id)
}

// FromInt64 reinterprets a database bigint as a snowflake.
func FromInt64(v int64) ID {
	return ID(uint64(v))
}

// Parse converts a decimal string into a snowflake.
func Parse(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse snowflake %q: %w", s, err)
	}
	return ID(v), nil
}

// MarshalJSON serialises the snowflake as a decimal string.
func (id ID) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, id.String()), nil
}

// UnmarshalJSON accepts either a decimal string or a bare integer.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("unmarshal snowflake %s: %w", data, err)
	}
	*id = ID(v)
	return nil
}

// Typed identifiers. Each entity kind gets its own type so that, for example, passing a ChannelID where a GuildID is
// expected fails to compile.

// UserID identifies a user.
type UserID ID

func (id UserID) String() string                { return ID(id).String() }
func (id UserID) Int64() int64                  { return ID(id).Int64() }
func (id UserID) MarshalJSON() ([]byte, error)  { return ID(id).MarshalJSON() }
func (id *UserID) UnmarshalJSON(b []byte) error { return (*ID)(id).UnmarshalJSON(b) }

// GuildID identifies a guild.
type GuildID ID

func (id GuildID) String() string                { return ID(id).String() }
func (id GuildID) Int64() int64                  { return ID(id).Int64() }
func (id GuildID) MarshalJSON() ([]byte, error)  { return ID(id).MarshalJSON() }
func (id *GuildID) UnmarshalJSON(b []byte) error { return (*ID)(id).UnmarshalJSON(b) }

// ChannelID identifies a channel.
type ChannelID ID

func (id ChannelID) String() string                { return ID(id).String() }
func (id ChannelID) Int64() int64                  { return ID(id).Int64() }
func (id ChannelID) MarshalJSON() ([]byte, error)  { return ID(id).MarshalJSON() }
func (id *ChannelID) UnmarshalJSON(b []byte) error { return (*ID)(id).UnmarshalJSON(b) }

// MessageID identifies a message.
type MessageID ID

func (id MessageID) String() string                { return ID(id).String() }
func (id MessageID) Int64() int64                  { return ID(id).Int64() }
func (id MessageID) MarshalJSON() ([]byte, error)  { return ID(id).MarshalJSON() }
func (id *MessageID) UnmarshalJSON(b []byte) error { return (*ID)(id).UnmarshalJSON(b) }

// ParseUserID converts a decimal string into a UserID.
func ParseUserID(s string) (UserID, error) {
	id, err := Parse(s)
	return UserID(id), err
}

// ParseGuildID converts a decimal string into a GuildID.
func ParseGuildID(s string) (GuildID, error) {
	id, err := Parse(s)
	return GuildID(id), err
}

// ParseChannelID converts a decimal string into a ChannelID.
func ParseChannelID(s string) (ChannelID, error) {
	id, err := Parse(s)
	return ChannelID(id), err
}

// ParseMessageID converts a decimal string into a MessageID.
func ParseMessageID(s string) (MessageID, error) {
	id, err := Parse(s)
	return MessageID(id), err
}

// Generator produces monotonically increasing snowflakes for a fixed machine/process pair. It is safe for concurrent
// use.
type Generator struct {
	mu       sync.Mutex
	machine  uint64
	process  uint64
	lastMS   int64
	sequence uint64
}

// NewGenerator creates a generator. Machine and process IDs are truncated to 5 bits each.
func NewGenerator(machineID, processID int) *Generator {
	return &Generator{
		machine: uint64(machineID) & 0x1F,
		process: uint64(processID) & 0x1F,
	}
}

// Next returns a fresh snowflake. When the 12-bit sequence for the current millisecond is exhausted, Next busy-waits
// for the next millisecond.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.lastMS {
		// Clock went backwards; hold position until it catches up.
		now = g.lastMS
	}

	if now == g.lastMS {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			for now <= g.lastMS {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMS = now

	elapsed := uint64(now - Epoch*1000)
	return ID(elapsed<<timestampShift | g.machine<<machineShift | g.process<<processShift | g.sequence)
}

// NextUserID returns a fresh UserID.
func (g *Generator) NextUserID() UserID { return UserID(g.Next()) }

// NextGuildID returns a fresh GuildID.
func (g *Generator) NextGuildID() GuildID { return GuildID(g.Next()) }

// NextChannelID returns a fresh ChannelID.
func (g *Generator) NextChannelID() ChannelID { return ChannelID(g.Next()) }

// NextMessageID returns a fresh MessageID.
func (g *Generator) NextMessageID() MessageID { return MessageID(g.Next()) }
