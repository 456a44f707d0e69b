package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/channel"
	"github.com/quarrel-chat/quarrel-server/internal/config"
	"github.com/quarrel-chat/quarrel-server/internal/guild"
	"github.com/quarrel-chat/quarrel-server/internal/member"
	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
	"github.com/quarrel-chat/quarrel-server/internal/user"
)

const (
	// maxMessageSize is the maximum size in bytes of a single inbound WebSocket message.
	maxMessageSize = 4096

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
)

// TokenValidator authenticates an IDENTIFY token and returns the user it was
// minted for.
type TokenValidator func(token string) (snowflake.UserID, error)

// UserStore loads user profiles for the handshake and the READY payload.
type UserStore interface {
	GetByID(ctx context.Context, id snowflake.UserID) (*user.User, error)
}

// GuildStore loads the guilds a user belongs to for the READY payload.
type GuildStore interface {
	GetAllForUser(ctx context.Context, userID snowflake.UserID) ([]guild.Guild, error)
}

// ChannelStore loads a guild's channels for the seeder.
type ChannelStore interface {
	GetAllForGuild(ctx context.Context, guildID snowflake.GuildID) ([]channel.Channel, error)
}

// MemberStore loads memberships for the seeder and the routing filter.
type MemberStore interface {
	GetAllForGuild(ctx context.Context, guildID snowflake.GuildID) ([]member.Member, error)
	GuildIDsForUser(ctx context.Context, userID snowflake.UserID) ([]snowflake.GuildID, error)
}

// PresenceStore reads a user's persisted presence.
type PresenceStore interface {
	Get(ctx context.Context, userID snowflake.UserID) (presence.Status, error)
}

// Hub drives gateway connections: it walks each fresh socket through the
// HELLO, IDENTIFY, READY handshake, registers the resulting handle, and runs
// the per-connection pipeline until the session ends.
type Hub struct {
	registry *Registry
	cfg      *config.Config
	validate TokenValidator

	users     UserStore
	guilds    GuildStore
	channels  ChannelStore
	members   MemberStore
	presences PresenceStore

	log zerolog.Logger
}

// NewHub creates a hub dispatching through the given registry.
func NewHub(
	registry *Registry,
	cfg *config.Config,
	validate TokenValidator,
	users UserStore,
	guilds GuildStore,
	channels ChannelStore,
	members MemberStore,
	presences PresenceStore,
	logger zerolog.Logger,
) *Hub {
	return &Hub{
		registry:  registry,
		cfg:       cfg,
		validate:  validate,
		users:     users,
		guilds:    guilds,
		channels:  channels,
		members:   members,
		presences: presences,
		log:       logger.With().Str("component", "gateway").Logger(),
	}
}

// Registry returns the hub's connection registry for event producers.
func (h *Hub) Registry() *Registry { return h.registry }

// Shutdown asks every live session to close. Writers flush the close frame
// and the per-connection drivers tear the sessions down.
func (h *Hub) Shutdown() {
	h.registry.Shutdown(CloseNormal, "server shutting down")
}

// ServeConn owns an upgraded WebSocket connection for its whole life: HELLO,
// handshake, pipeline, teardown. It returns when the session is over.
func (h *Hub) ServeConn(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxMessageSize)

	hello := Hello{HeartbeatInterval: int(h.cfg.GatewayHeartbeatInterval.Milliseconds())}
	frame, err := EncodeEvent(hello)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode HELLO")
		h.closeConn(conn, CloseServerError, "internal error")
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return
	}

	handle, usr, ok := h.handshake(conn)
	if !ok {
		return
	}
	h.runSession(conn, handle, usr)
}

// handshake awaits IDENTIFY, authenticates it, loads the user and their
// membership, and registers a handle. On any failure it emits exactly one
// close frame and reports no registration.
func (h *Hub) handshake(conn *websocket.Conn) (*Handle, *user.User, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.GatewayHandshakeTimeout))

	mt, raw, err := conn.ReadMessage()
	if err != nil {
		h.closeConn(conn, ClosePolicyViolation, "IDENTIFY expected")
		return nil, nil, false
	}
	if mt == websocket.BinaryMessage {
		h.closeConn(conn, CloseUnsupportedData, "binary frames are not supported")
		return nil, nil, false
	}

	msg, err := ParseClientMessage(raw)
	if err != nil {
		h.closeConn(conn, CloseInvalidPayload, "invalid payload")
		return nil, nil, false
	}
	identify, ok := msg.(Identify)
	if !ok {
		h.closeConn(conn, CloseInvalidPayload, "IDENTIFY expected")
		return nil, nil, false
	}

	userID, err := h.validate(identify.Token)
	if err != nil {
		h.closeConn(conn, ClosePolicyViolation, "Invalid token")
		return nil, nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.GatewayHandshakeTimeout)
	defer cancel()

	usr, err := h.users.GetByID(ctx, userID)
	if err != nil {
		// An unknown subject reads the same as a bad signature on the wire.
		if errors.Is(err, user.ErrNotFound) {
			h.closeConn(conn, ClosePolicyViolation, "Invalid token")
		} else {
			h.log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to load user during handshake")
			h.closeConn(conn, CloseServerError, "internal error")
		}
		return nil, nil, false
	}

	guildIDs, err := h.members.GuildIDsForUser(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to load membership during handshake")
		h.closeConn(conn, CloseServerError, "internal error")
		return nil, nil, false
	}

	handle := NewHandle(userID, guildIDs, h.cfg.GatewaySendQueueSize)
	h.registry.Insert(handle)

	// The heartbeat watchdog owns liveness from here on.
	_ = conn.SetReadDeadline(time.Time{})
	return handle, usr, true
}

// runSession runs the four pipeline tasks. The connection ends when any of
// writer, reader, or watchdog exits; the seeder is one-shot and cancellable.
func (h *Hub) runSession(conn *websocket.Conn, handle *Handle, usr *user.User) {
	log := h.log.With().Stringer("user_id", handle.UserID).Logger()
	log.Debug().Msg("Session started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Unblock the reader once the first task exits.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		defer cancel()
		h.writer(ctx, conn, handle, log)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		h.reader(conn, handle)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		h.watchdog(ctx, handle)
	}()
	go func() {
		defer wg.Done()
		h.seed(ctx, handle, usr, log)
	}()
	wg.Wait()

	guildIDs := handle.GuildIDs()
	h.registry.Remove(handle)
	handle.shutdown()
	log.Debug().Msg("Session ended")

	// A replacement session owns the user's presence from here on.
	if h.registry.IsConnected(handle.UserID) {
		return
	}

	offCtx, offCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer offCancel()
	last, err := h.presences.Get(offCtx, handle.UserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read presence during teardown")
		return
	}
	if last != presence.StatusOffline {
		h.registry.Dispatch(PresenceUpdate{
			UserID:   handle.UserID,
			Presence: presence.StatusOffline,
			Guilds:   guildIDs,
		})
	}
}

// writer drains the handle's outbound queue onto the socket. It is the only
// goroutine writing data frames, so outbound order is enqueue order.
func (h *Hub) writer(ctx context.Context, conn *websocket.Conn, handle *Handle, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			// A protocol violation enqueues its close instruction before the
			// session context is cancelled, so the queue must be checked one
			// last time or the peer sees an abnormal closure instead of the
			// close code.
			h.flushClose(conn, handle)
			return
		case <-handle.Done():
			// Evicted by the registry while the session was live.
			h.closeConn(conn, ClosePolicyViolation, "outbound queue overflow")
			return
		case out := <-handle.out:
			if out.Close != nil {
				h.closeConn(conn, out.Close.Code, out.Close.Reason)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, out.Frame); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

// flushClose drains any close instruction already sitting on the outbound
// queue and emits it. Queued data frames are discarded; the session is over.
func (h *Hub) flushClose(conn *websocket.Conn, handle *Handle) {
	for {
		select {
		case out := <-handle.out:
			if out.Close != nil {
				h.closeConn(conn, out.Close.Code, out.Close.Reason)
				return
			}
		default:
			return
		}
	}
}

// reader parses inbound frames onto the handle's message bus. It exits on a
// close frame, a read error, or a protocol violation; it never writes to the
// socket directly.
func (h *Hub) reader(conn *websocket.Conn, handle *Handle) {
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.BinaryMessage {
			handle.EnqueueClose(CloseUnsupportedData, "binary frames are not supported")
			return
		}
		msg, err := ParseClientMessage(raw)
		if err != nil {
			handle.EnqueueClose(CloseInvalidPayload, "invalid payload")
			return
		}
		handle.bus.Publish(msg)
	}
}

// watchdog acknowledges heartbeats and severs connections that stop sending
// them. It reads the handle only through the bus and SendTo, never holding
// any lock across a wait.
func (h *Hub) watchdog(ctx context.Context, handle *Handle) {
	msgs, unsubscribe := handle.bus.Subscribe()
	defer unsubscribe()

	window := h.cfg.GatewayHeartbeatInterval + h.cfg.GatewayHeartbeatGrace
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-msgs:
			if _, ok := msg.(Heartbeat); !ok {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(window)
			h.registry.SendTo(handle.UserID, HeartbeatAck{})
		case <-timer.C:
			handle.EnqueueClose(ClosePolicyViolation, "No HEARTBEAT received within timeframe")
			return
		}
	}
}

// seed sends READY and one GUILD_CREATE per guild, then announces the user's
// presence to their peers. It stops early if the session ends first.
func (h *Hub) seed(ctx context.Context, handle *Handle, usr *user.User, log zerolog.Logger) {
	events, err := h.assembleReady(ctx, usr)
	if err != nil {
		log.Error().Err(err).Msg("Failed to assemble READY")
		handle.EnqueueClose(CloseServerError, "internal error")
		return
	}

	for _, e := range events {
		if ctx.Err() != nil {
			return
		}
		frame, err := EncodeEvent(e)
		if err != nil {
			log.Error().Err(err).Str("event", e.EventName()).Msg("Failed to encode seed event")
			handle.EnqueueClose(CloseServerError, "internal error")
			return
		}
		if err := handle.Enqueue(Outbound{Frame: frame}); err != nil {
			return
		}
	}

	if usr.LastPresence != presence.StatusOffline {
		h.registry.Dispatch(PresenceUpdate{
			UserID:   handle.UserID,
			Presence: usr.LastPresence,
			Guilds:   handle.GuildIDs(),
		})
	}
}

// assembleReady builds the seed sequence: READY first, then a GUILD_CREATE
// snapshot per guild with each member's displayed presence filled in.
func (h *Hub) assembleReady(ctx context.Context, usr *user.User) ([]Event, error) {
	self := *usr
	self.ApplyVisibility(true)

	guilds, err := h.guilds.GetAllForUser(ctx, usr.ID)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(guilds)+1)
	events = append(events, Ready{User: self, Guilds: guilds})

	for _, g := range guilds {
		members, err := h.members.GetAllForGuild(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		for i := range members {
			members[i].User.ApplyVisibility(h.registry.IsConnected(members[i].User.ID))
		}
		channels, err := h.channels.GetAllForGuild(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		events = append(events, GuildCreate{Guild: g, Members: members, Channels: channels})
	}
	return events, nil
}

// closeConn emits a close frame and closes the connection.
func (h *Hub) closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
