// Package presence tracks coarse user status. The *last* presence a user chose is persisted on their user row; the
// *displayed* presence peers see is the last presence while the user has a live gateway session and Offline otherwise.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// Status is a coarse user presence. Values match the smallint stored in users.last_presence.
type Status int16

const (
	StatusOnline Status = iota
	StatusAway
	StatusBusy
	StatusOffline
)

var statusNames = [...]string{"ONLINE", "AWAY", "BUSY", "OFFLINE"}

// String returns the wire name of the status.
func (s Status) String() string {
	if s < StatusOnline || s > StatusOffline {
		return statusNames[StatusOffline]
	}
	return statusNames[s]
}

// FromInt16 converts a stored smallint into a Status. Out-of-range values are treated as Offline.
func FromInt16(v int16) Status {
	if v < int16(StatusOnline) || v > int16(StatusOffline) {
		return StatusOffline
	}
	return Status(v)
}

// ParseStatus converts a wire name into a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return StatusOffline, fmt.Errorf("unknown presence %q", name)
}

// MarshalJSON serialises the status as its wire name.
func (s Status) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, s.String()), nil
}

// UnmarshalJSON parses a wire name into the status.
func (s *Status) UnmarshalJSON(data []byte) error {
	name, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("unmarshal presence %s: %w", data, err)
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Displayed applies the visibility rule: a user's chosen status is shown only while they are connected.
func Displayed(last Status, connected bool) Status {
	if !connected {
		return StatusOffline
	}
	return last
}

// ErrNotFound is returned when no user row exists for the given ID.
var ErrNotFound = errors.New("user not found")

// Store reads and writes the persisted last presence on user rows.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a presence store backed by the given pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Get returns the user's persisted last presence.
func (s *Store) Get(ctx context.Context, userID snowflake.UserID) (Status, error) {
	var v int16
	err := s.db.QueryRow(ctx, `SELECT last_presence FROM users WHERE id = $1`, userID.Int64()).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StatusOffline, ErrNotFound
		}
		return StatusOffline, fmt.Errorf("query presence for %s: %w", userID, err)
	}
	return FromInt16(v), nil
}

// Set persists the user's last presence.
func (s *Store) Set(ctx context.Context, userID snowflake.UserID, status Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET last_presence = $1 WHERE id = $2`, int16(status), userID.Int64())
	if err != nil {
		return fmt.Errorf("set presence for %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
