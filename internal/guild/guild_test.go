package guild

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	if err := ValidateName("My Guild"); err != nil {
		t.Errorf("ValidateName(valid) = %v, want nil", err)
	}
	if err := ValidateName(""); !errors.Is(err, ErrNameLength) {
		t.Errorf("ValidateName(empty) = %v, want ErrNameLength", err)
	}
	if err := ValidateName(strings.Repeat("g", 101)); !errors.Is(err, ErrNameLength) {
		t.Errorf("ValidateName(long) = %v, want ErrNameLength", err)
	}
	if err := ValidateName(strings.Repeat("g", 100)); err != nil {
		t.Errorf("ValidateName(100 chars) = %v, want nil", err)
	}
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	if got := NormalizeName("  My Guild  "); got != "My Guild" {
		t.Errorf("NormalizeName = %q, want %q", got, "My Guild")
	}
}

func TestGuildJSONShape(t *testing.T) {
	t.Parallel()

	g := Guild{ID: snowflake.GuildID(7), Name: "general chat", OwnerID: snowflake.UserID(9)}
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"7","name":"general chat","owner_id":"9"}`
	if string(data) != want {
		t.Errorf("marshal = %s, want %s", data, want)
	}
}
