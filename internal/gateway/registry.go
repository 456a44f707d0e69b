package gateway

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// Registry is the process-wide mapping from user ID to connection handle.
// Dispatchers read it concurrently; membership mutators touch only the
// per-handle guild set, so no registry lock is ever held across a send.
type Registry struct {
	mu      sync.RWMutex
	handles map[snowflake.UserID]*Handle

	log zerolog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		handles: make(map[snowflake.UserID]*Handle),
		log:     logger.With().Str("component", "gateway-registry").Logger(),
	}
}

// Insert installs a handle for its user. If the user already has a live
// session, that session is told to close with "replaced by new session" and
// the new handle takes its place.
func (r *Registry) Insert(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.handles[h.UserID]; ok {
		if err := old.Enqueue(Outbound{Close: &CloseInstruction{Code: CloseNormal, Reason: "replaced by new session"}}); err != nil {
			old.shutdown()
		}
		r.log.Debug().Stringer("user_id", h.UserID).Msg("Session replaced by new connection")
	}
	r.handles[h.UserID] = h
}

// Remove drops the handle from the registry if it is still the current one
// for its user. A handle displaced by a newer session leaves the newer
// session untouched. Idempotent.
func (r *Registry) Remove(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handles[h.UserID]; ok && current == h {
		delete(r.handles, h.UserID)
	}
}

// AddMember records a committed guild join on the user's routing filter.
// No-op if the user is not connected.
func (r *Registry) AddMember(userID snowflake.UserID, guildID snowflake.GuildID) {
	if h := r.handleOf(userID); h != nil {
		h.AddGuild(guildID)
	}
}

// RemoveMember records a committed guild leave on the user's routing filter.
// No-op if the user is not connected.
func (r *Registry) RemoveMember(userID snowflake.UserID, guildID snowflake.GuildID) {
	if h := r.handleOf(userID); h != nil {
		h.RemoveGuild(guildID)
	}
}

// IsConnected reports whether the user has a live session.
func (r *Registry) IsConnected(userID snowflake.UserID) bool {
	return r.handleOf(userID) != nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// SharesGuildsWith reports whether both users are connected and their guild
// sets intersect.
func (r *Registry) SharesGuildsWith(a, b snowflake.UserID) bool {
	ha := r.handleOf(a)
	hb := r.handleOf(b)
	if ha == nil || hb == nil {
		return false
	}
	return hb.sharesAnyGuild(ha.GuildIDs())
}

// SendTo serialises the event and enqueues it for one user. Undeliverable
// handles are evicted; a disconnected user is a silent no-op.
func (r *Registry) SendTo(userID snowflake.UserID, e Event) {
	h := r.handleOf(userID)
	if h == nil {
		return
	}
	frame, err := EncodeEvent(e)
	if err != nil {
		r.log.Error().Err(err).Str("event", e.EventName()).Msg("Failed to encode event")
		return
	}
	if err := h.Enqueue(Outbound{Frame: frame}); err != nil {
		r.evict(h, err)
	}
}

// DropSession asks the user's writer to close the connection with the given
// code and reason. No-op if the user is not connected.
func (r *Registry) DropSession(userID snowflake.UserID, code int, reason string) {
	if h := r.handleOf(userID); h != nil {
		h.EnqueueClose(code, reason)
	}
}

// Dispatch delivers the event to every eligible connected session. The
// payload is serialised once and shared across recipients. Guild-scoped
// events reach current members of that guild; user-scoped events reach the
// subject and everyone sharing a guild with them; unscoped events reach
// everyone. Handles that cannot accept the event are evicted after the
// sweep, never aborting it.
func (r *Registry) Dispatch(e Event) {
	frame, err := EncodeEvent(e)
	if err != nil {
		r.log.Error().Err(err).Str("event", e.EventName()).Msg("Failed to encode event")
		return
	}

	guildID, guildScoped := e.GuildScope()
	userID, userScoped := e.UserScope()

	// For a user-scoped event the subject's membership decides who counts
	// as a peer. When the subject has already disconnected (an offline
	// presence update) the event's own membership snapshot fills in.
	var subjectGuilds []snowflake.GuildID
	if !guildScoped && userScoped {
		if subject := r.handleOf(userID); subject != nil {
			subjectGuilds = subject.GuildIDs()
		} else if hinter, ok := e.(guildHinter); ok {
			subjectGuilds = hinter.guildHint()
		}
	}

	var stale []*Handle
	var staleErr error
	for _, h := range r.snapshot() {
		var deliver bool
		switch {
		case guildScoped:
			deliver = h.InGuild(guildID)
		case userScoped:
			deliver = h.UserID == userID || h.sharesAnyGuild(subjectGuilds)
		default:
			deliver = true
		}
		if !deliver {
			continue
		}
		if err := h.Enqueue(Outbound{Frame: frame}); err != nil {
			stale = append(stale, h)
			staleErr = err
		}
	}
	for _, h := range stale {
		r.evict(h, staleErr)
	}
}

// Shutdown tells every live session to close. Used on server drain.
func (r *Registry) Shutdown(code int, reason string) {
	for _, h := range r.snapshot() {
		h.EnqueueClose(code, reason)
	}
}

func (r *Registry) handleOf(userID snowflake.UserID) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[userID]
}

// snapshot copies the handle list so iteration never holds the registry lock
// across an enqueue.
func (r *Registry) snapshot() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	return handles
}

// evict shuts down a handle whose queue is dead or saturated and removes it.
// The dying writer's session driver finishes the socket-level cleanup.
func (r *Registry) evict(h *Handle, cause error) {
	r.log.Warn().
		Err(cause).
		Stringer("user_id", h.UserID).
		Msg("Evicting undeliverable session")
	h.shutdown()
	r.Remove(h)
}
