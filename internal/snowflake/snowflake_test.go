package snowflake

import (
	"encoding/json"
	"testing"
	"time"
)

func TestGeneratorUniqueness(t *testing.T) {
	t.Parallel()
	g := NewGenerator(1, 2)

	seen := make(map[ID]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := g.Next()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate snowflake generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestGeneratorMonotonic(t *testing.T) {
	t.Parallel()
	g := NewGenerator(0, 0)

	prev := g.Next()
	for i := 0; i < 5000; i++ {
		id := g.Next()
		if id <= prev {
			t.Fatalf("snowflake not monotonic: %s <= %s", id, prev)
		}
		prev = id
	}
}

func TestGeneratorEncodesFields(t *testing.T) {
	t.Parallel()
	g := NewGenerator(7, 3)

	before := time.Now()
	id := g.Next()
	after := time.Now()

	if id.MachineID() != 7 {
		t.Errorf("MachineID() = %d, want 7", id.MachineID())
	}
	if id.ProcessID() != 3 {
		t.Errorf("ProcessID() = %d, want 3", id.ProcessID())
	}

	created := id.CreatedAt()
	if created.Before(before.Truncate(time.Millisecond)) || created.After(after.Add(time.Millisecond)) {
		t.Errorf("CreatedAt() = %v, want between %v and %v", created, before, after)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	id := ID(175928847299117063)
	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"175928847299117063"` {
		t.Errorf("marshal = %s, want quoted decimal string", data)
	}

	var decoded ID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != id {
		t.Errorf("round trip = %s, want %s", decoded, id)
	}
}

func TestUnmarshalAcceptsBareInteger(t *testing.T) {
	t.Parallel()

	var id ID
	if err := json.Unmarshal([]byte(`175928847299117063`), &id); err != nil {
		t.Fatalf("unmarshal bare integer: %v", err)
	}
	if id != 175928847299117063 {
		t.Errorf("id = %d, want 175928847299117063", id)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "abc", "-5", "18446744073709551616"} {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", input)
		}
	}
}

func TestTypedIDsAreDistinct(t *testing.T) {
	t.Parallel()

	u := UserID(42)
	g := GuildID(42)
	if u.String() != g.String() {
		t.Errorf("String() differs for same raw value: %q vs %q", u.String(), g.String())
	}

	data, err := json.Marshal(struct {
		User  UserID  `json:"user"`
		Guild GuildID `json:"guild"`
	}{u, g})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"user":"42","guild":"42"}`
	if string(data) != want {
		t.Errorf("marshal = %s, want %s", data, want)
	}
}
