package user

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// Sentinel errors for the user package.
var (
	ErrNotFound          = errors.New("user not found")
	ErrAlreadyExists     = errors.New("username already taken")
	ErrInvalidUsername   = errors.New("username must be 3 to 32 characters of letters and digits, optionally separated by single dots or underscores")
	ErrDisplayNameLength = errors.New("display name must be between 1 and 32 characters")
)

// usernameRegex permits alphanumeric names with single dots or underscores as interior separators.
var usernameRegex = regexp.MustCompile(`^([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9]*(?:[._][a-zA-Z0-9]+)*[a-zA-Z0-9])$`)

// User holds the core identity fields read from the database. LastPresence is the status the user chose most recently;
// Presence is the status peers actually see, derived from LastPresence and gateway connectivity before serialisation.
type User struct {
	ID          snowflake.UserID `json:"id"`
	Username    string           `json:"username"`
	DisplayName *string          `json:"display_name"`
	Presence    presence.Status  `json:"presence"`

	LastPresence presence.Status `json:"-"`
}

// ApplyVisibility sets the serialised presence from the stored one: the chosen status while connected, Offline
// otherwise.
func (u *User) ApplyVisibility(connected bool) {
	u.Presence = presence.Displayed(u.LastPresence, connected)
}

// Credentials extends User with the password hash. Only repository methods that serve the authentication path return
// this type; all other read methods return *User to prevent credential leakage at the type level.
type Credentials struct {
	User
	PasswordHash string
}

// CreateParams groups the inputs for creating a new user. The password hash is stored in the secrets table in the same
// transaction as the user row.
type CreateParams struct {
	ID           snowflake.UserID
	Username     string
	PasswordHash string
}

// UpdateParams groups the optional fields for updating a user profile.
type UpdateParams struct {
	Username     *string
	DisplayName  *string
	LastPresence *presence.Status
}

// NormalizeUsername trims surrounding whitespace and lowercases the name.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateUsername checks the username against the allowed pattern and length bounds.
func ValidateUsername(name string) error {
	if len(name) < 3 || len(name) > 32 {
		return ErrInvalidUsername
	}
	if !usernameRegex.MatchString(name) {
		return ErrInvalidUsername
	}
	return nil
}

// NormalizeDisplayName trims surrounding whitespace from the pointed-to value. Nil values are left untouched.
func NormalizeDisplayName(name *string) {
	if name == nil {
		return
	}
	*name = strings.TrimSpace(*name)
}

// ValidateDisplayName checks that a non-nil display name is between 1 and 32 Unicode characters.
func ValidateDisplayName(name *string) error {
	if name == nil {
		return nil
	}
	if n := utf8.RuneCountInString(*name); n < 1 || n > 32 {
		return ErrDisplayNameLength
	}
	return nil
}

// Repository defines the data-access contract for user operations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) error
	GetByID(ctx context.Context, id snowflake.UserID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetCredentialsByUsername(ctx context.Context, username string) (*Credentials, error)
	Update(ctx context.Context, id snowflake.UserID, params UpdateParams) (*User, error)
	UpdatePasswordHash(ctx context.Context, id snowflake.UserID, hash string) error
	Delete(ctx context.Context, id snowflake.UserID) error
}
