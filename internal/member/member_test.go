package member

import (
	"encoding/json"
	"testing"

	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
	"github.com/quarrel-chat/quarrel-server/internal/user"
)

func TestMemberJSONShape(t *testing.T) {
	t.Parallel()

	m := Member{
		User: user.User{
			ID:           snowflake.UserID(42),
			Username:     "alice",
			LastPresence: presence.StatusOnline,
		},
		GuildID:  snowflake.GuildID(7),
		JoinedAt: 1700000000,
	}
	m.User.ApplyVisibility(true)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"user":{"id":"42","username":"alice","display_name":null,"presence":"ONLINE"},` +
		`"guild_id":"7","nickname":null,"joined_at":1700000000}`
	if string(data) != want {
		t.Errorf("marshal = %s, want %s", data, want)
	}
}
