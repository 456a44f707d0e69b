package user

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

func TestValidateUsername(t *testing.T) {
	t.Parallel()

	valid := []string{"abc", "user.name", "user_name", "a1b2c3", "Mixed99", strings.Repeat("a", 32)}
	for _, name := range valid {
		if err := ValidateUsername(name); err != nil {
			t.Errorf("ValidateUsername(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "ab", strings.Repeat("a", 33), ".leading", "trailing.", "two..dots", "sp ace", "emoji😀"}
	for _, name := range invalid {
		if err := ValidateUsername(name); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("ValidateUsername(%q) = %v, want ErrInvalidUsername", name, err)
		}
	}
}

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()

	if got := NormalizeUsername("  Alice  "); got != "alice" {
		t.Errorf("NormalizeUsername = %q, want %q", got, "alice")
	}
}

func TestValidateDisplayName(t *testing.T) {
	t.Parallel()

	if err := ValidateDisplayName(nil); err != nil {
		t.Errorf("ValidateDisplayName(nil) = %v, want nil", err)
	}

	ok := "Alice"
	if err := ValidateDisplayName(&ok); err != nil {
		t.Errorf("ValidateDisplayName(%q) = %v, want nil", ok, err)
	}

	empty := ""
	if err := ValidateDisplayName(&empty); !errors.Is(err, ErrDisplayNameLength) {
		t.Errorf("ValidateDisplayName(empty) = %v, want ErrDisplayNameLength", err)
	}

	long := strings.Repeat("x", 33)
	if err := ValidateDisplayName(&long); !errors.Is(err, ErrDisplayNameLength) {
		t.Errorf("ValidateDisplayName(long) = %v, want ErrDisplayNameLength", err)
	}
}

func TestApplyVisibility(t *testing.T) {
	t.Parallel()

	u := User{LastPresence: presence.StatusBusy}

	u.ApplyVisibility(true)
	if u.Presence != presence.StatusBusy {
		t.Errorf("connected presence = %v, want BUSY", u.Presence)
	}

	u.ApplyVisibility(false)
	if u.Presence != presence.StatusOffline {
		t.Errorf("disconnected presence = %v, want OFFLINE", u.Presence)
	}
}

func TestUserJSONShape(t *testing.T) {
	t.Parallel()

	u := User{
		ID:           snowflake.UserID(42),
		Username:     "alice",
		LastPresence: presence.StatusAway,
	}
	u.ApplyVisibility(true)

	data, err := json.Marshal(&u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"42","username":"alice","display_name":null,"presence":"AWAY"}`
	if string(data) != want {
		t.Errorf("marshal = %s, want %s", data, want)
	}
}
