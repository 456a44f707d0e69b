package gateway

import (
	"errors"
	"sync"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

var (
	// ErrHandleClosed is returned when enqueueing on a handle whose writer
	// has already exited.
	ErrHandleClosed = errors.New("handle closed")

	// ErrQueueFull is returned when a handle's outbound queue is full. The
	// registry treats this as a slow consumer and disconnects the session.
	ErrQueueFull = errors.New("outbound queue full")
)

// Outbound is one item on a handle's send queue: either a pre-serialised
// event frame or an instruction for the writer to close the connection.
type Outbound struct {
	Frame []byte
	Close *CloseInstruction
}

// CloseInstruction tells the writer to emit a close frame and exit.
type CloseInstruction struct {
	Code   int
	Reason string
}

// Handle is the in-memory representation of one live, authenticated socket
// session. The registry holds at most one handle per user; its outbound
// queue is drained by exactly one writer goroutine.
type Handle struct {
	// UserID is the authenticated owner, immutable for the handle's lifetime.
	UserID snowflake.UserID

	out  chan Outbound
	done chan struct{}

	// bus broadcasts parsed inbound client messages to the heartbeat
	// watchdog and any future consumers.
	bus *messageBus

	mu     sync.RWMutex
	guilds map[snowflake.GuildID]struct{}

	closeOnce sync.Once
}

// NewHandle builds a handle for an authenticated user with the given initial
// guild membership and outbound queue capacity.
func NewHandle(userID snowflake.UserID, guildIDs []snowflake.GuildID, queueSize int) *Handle {
	guilds := make(map[snowflake.GuildID]struct{}, len(guildIDs))
	for _, g := range guildIDs {
		guilds[g] = struct{}{}
	}
	return &Handle{
		UserID: userID,
		out:    make(chan Outbound, queueSize),
		done:   make(chan struct{}),
		bus:    newMessageBus(),
		guilds: guilds,
	}
}

// Enqueue places an outbound item on the send queue without blocking. It
// fails with ErrHandleClosed once the writer has exited and with
// ErrQueueFull when the consumer cannot keep up.
func (h *Handle) Enqueue(out Outbound) error {
	select {
	case <-h.done:
		return ErrHandleClosed
	default:
	}
	select {
	case h.out <- out:
		return nil
	case <-h.done:
		return ErrHandleClosed
	default:
		return ErrQueueFull
	}
}

// EnqueueClose asks the writer to emit a close frame. A full queue is
// tolerated: the session is being torn down either way, so the instruction
// falls through to the writer's shutdown path.
func (h *Handle) EnqueueClose(code int, reason string) {
	_ = h.Enqueue(Outbound{Close: &CloseInstruction{Code: code, Reason: reason}})
}

// shutdown marks the handle dead. Producers fail fast afterwards and the
// writer stops draining. Idempotent.
func (h *Handle) shutdown() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Done is closed when the handle is shut down.
func (h *Handle) Done() <-chan struct{} { return h.done }

// AddGuild records a committed guild membership on the routing filter.
func (h *Handle) AddGuild(g snowflake.GuildID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.guilds[g] = struct{}{}
}

// RemoveGuild drops a guild from the routing filter.
func (h *Handle) RemoveGuild(g snowflake.GuildID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.guilds, g)
}

// InGuild reports whether the handle's user is currently a member of g.
func (h *Handle) InGuild(g snowflake.GuildID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.guilds[g]
	return ok
}

// GuildIDs returns a snapshot of the handle's guild membership. Callers get
// a copy so the handle's lock is never held across a send.
func (h *Handle) GuildIDs() []snowflake.GuildID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]snowflake.GuildID, 0, len(h.guilds))
	for g := range h.guilds {
		ids = append(ids, g)
	}
	return ids
}

// sharesAnyGuild reports whether the handle's membership intersects ids.
func (h *Handle) sharesAnyGuild(ids []snowflake.GuildID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, g := range ids {
		if _, ok := h.guilds[g]; ok {
			return true
		}
	}
	return false
}

// subscriberBuffer bounds each bus subscriber's channel. Inbound traffic is
// heartbeats and the odd stray frame, so a small buffer is plenty; a full
// subscriber drops the message rather than stalling the reader.
const subscriberBuffer = 16

// messageBus fans parsed inbound client messages out to subscribers. The
// reader publishes; the heartbeat watchdog subscribes.
type messageBus struct {
	mu   sync.Mutex
	subs []chan ClientMessage
}

func newMessageBus() *messageBus {
	return &messageBus{}
}

// Subscribe registers a new consumer. The returned cancel func must be
// called when the consumer exits.
func (b *messageBus) Subscribe() (<-chan ClientMessage, func()) {
	ch := make(chan ClientMessage, subscriberBuffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

// Publish delivers msg to every subscriber without blocking.
func (b *messageBus) Publish(msg ClientMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub <- msg:
		default:
		}
	}
}
