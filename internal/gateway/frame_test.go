package gateway

import (
	"errors"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	t.Parallel()

	t.Run("identify", func(t *testing.T) {
		t.Parallel()
		msg, err := ParseClientMessage([]byte(`{"event":"IDENTIFY","data":{"token":"abc.def.ghi"}}`))
		if err != nil {
			t.Fatalf("ParseClientMessage() error = %v", err)
		}
		id, ok := msg.(Identify)
		if !ok {
			t.Fatalf("message = %T, want Identify", msg)
		}
		if id.Token != "abc.def.ghi" {
			t.Errorf("token = %q, want %q", id.Token, "abc.def.ghi")
		}
	})

	t.Run("heartbeat", func(t *testing.T) {
		t.Parallel()
		msg, err := ParseClientMessage([]byte(`{"event":"HEARTBEAT"}`))
		if err != nil {
			t.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(Heartbeat); !ok {
			t.Fatalf("message = %T, want Heartbeat", msg)
		}
	})

	t.Run("unknown variant", func(t *testing.T) {
		t.Parallel()
		_, err := ParseClientMessage([]byte(`{"event":"RESUME","data":{}}`))
		if !errors.Is(err, ErrUnknownVariant) {
			t.Errorf("error = %v, want ErrUnknownVariant", err)
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		t.Parallel()
		_, err := ParseClientMessage([]byte(`{"event":`))
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("error = %v, want ErrInvalidPayload", err)
		}
	})

	t.Run("malformed identify data", func(t *testing.T) {
		t.Parallel()
		_, err := ParseClientMessage([]byte(`{"event":"IDENTIFY","data":[1,2]}`))
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("error = %v, want ErrInvalidPayload", err)
		}
	})
}
