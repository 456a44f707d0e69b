package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire names for client-to-server messages.
const (
	MessageIdentify  = "IDENTIFY"
	MessageHeartbeat = "HEARTBEAT"
)

var (
	// ErrInvalidPayload is returned when an inbound frame is not valid JSON
	// or does not match the envelope shape.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrUnknownVariant is returned when an inbound envelope names an event
	// the gateway does not recognise.
	ErrUnknownVariant = errors.New("unknown event variant")
)

// ClientMessage is one parsed client-to-server frame.
type ClientMessage interface {
	clientMessage()
}

// Identify carries the access token that authenticates a fresh connection.
type Identify struct {
	Token string `json:"token"`
}

func (Identify) clientMessage() {}

// Heartbeat is the client's periodic liveness signal.
type Heartbeat struct{}

func (Heartbeat) clientMessage() {}

// ParseClientMessage decodes one inbound text frame into the client message
// algebra. A malformed frame yields ErrInvalidPayload; a well-formed frame
// naming an unsupported event yields ErrUnknownVariant. Both must end the
// connection with an invalid-payload close.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}

	switch env.Event {
	case MessageIdentify:
		var id Identify
		if err := json.Unmarshal(env.Data, &id); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
		}
		return id, nil
	case MessageHeartbeat:
		return Heartbeat{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, env.Event)
	}
}
