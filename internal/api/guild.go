package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/auth"
	"github.com/quarrel-chat/quarrel-server/internal/channel"
	"github.com/quarrel-chat/quarrel-server/internal/gateway"
	"github.com/quarrel-chat/quarrel-server/internal/guild"
	"github.com/quarrel-chat/quarrel-server/internal/httputil"
	"github.com/quarrel-chat/quarrel-server/internal/member"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// GuildHandler serves guild and membership endpoints.
type GuildHandler struct {
	guilds   guild.Repository
	members  member.Repository
	channels channel.Repository
	registry *gateway.Registry
	ids      *snowflake.Generator
	log      zerolog.Logger
}

// NewGuildHandler creates a new guild handler.
func NewGuildHandler(
	guilds guild.Repository,
	members member.Repository,
	channels channel.Repository,
	registry *gateway.Registry,
	ids *snowflake.Generator,
	logger zerolog.Logger,
) *GuildHandler {
	return &GuildHandler{
		guilds:   guilds,
		members:  members,
		channels: channels,
		registry: registry,
		ids:      ids,
		log:      logger,
	}
}

type createGuildRequest struct {
	Name string `json:"name"`
}

// ListGuilds handles GET /api/v1/guilds. It returns the guilds the
// authenticated user belongs to.
func (h *GuildHandler) ListGuilds(c fiber.Ctx) error {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}

	guilds, err := h.guilds.GetAllForUser(c, userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "guild").Msg("list guilds failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	return httputil.Success(c, guilds)
}

// CreateGuild handles POST /api/v1/guilds. The creator becomes the owner and
// first member, and the guild starts with a default text channel.
func (h *GuildHandler) CreateGuild(c fiber.Ctx) error {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}

	var body createGuildRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid request body")
	}

	name := guild.NormalizeName(body.Name)
	if err := guild.ValidateName(name); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, err.Error())
	}

	g := guild.Guild{ID: h.ids.NextGuildID(), Name: name, OwnerID: userID}
	general := channel.Channel{ID: h.ids.NextChannelID(), GuildID: g.ID, Name: channel.DefaultName}
	if err := h.guilds.CreateWithDefaults(c, g, general.ID, general.Name, time.Now().Unix()); err != nil {
		h.log.Error().Err(err).Str("handler", "guild").Msg("create guild failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	// Membership is committed; now the routing filter, then the event.
	h.registry.AddMember(userID, g.ID)

	owner, err := h.members.Get(c, userID, g.ID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "guild").Msg("load owner member failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	owner.User.ApplyVisibility(h.registry.IsConnected(userID))

	h.registry.Dispatch(gateway.GuildCreate{
		Guild:    g,
		Members:  []member.Member{*owner},
		Channels: []channel.Channel{general},
	})

	return httputil.SuccessStatus(c, fiber.StatusCreated, g)
}

// GetGuild handles GET /api/v1/guilds/:guildID. Members only.
func (h *GuildHandler) GetGuild(c fiber.Ctx) error {
	_, guildID, err := h.memberOf(c)
	if err != nil {
		return err
	}

	g, err := h.guilds.GetByID(c, guildID)
	if err != nil {
		return h.mapGuildError(c, err)
	}
	return httputil.Success(c, g)
}

// DeleteGuild handles DELETE /api/v1/guilds/:guildID. Owner only. Members
// are told the guild is gone before their routing filters are trimmed.
func (h *GuildHandler) DeleteGuild(c fiber.Ctx) error {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}
	guildID, err := snowflake.ParseGuildID(c.Params("guildID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid guild ID format")
	}

	g, err := h.guilds.GetByID(c, guildID)
	if err != nil {
		return h.mapGuildError(c, err)
	}
	if g.OwnerID != userID {
		return httputil.Fail(c, fiber.StatusForbidden, httputil.CodeForbidden, "Only the owner can delete a guild")
	}

	members, err := h.members.GetAllForGuild(c, guildID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "guild").Msg("list members failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	if err := h.guilds.Delete(c, guildID); err != nil {
		return h.mapGuildError(c, err)
	}

	h.registry.Dispatch(gateway.GuildRemove{ID: guildID})
	for _, m := range members {
		h.registry.RemoveMember(m.User.ID, guildID)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// JoinGuild handles POST /api/v1/guilds/:guildID/members.
func (h *GuildHandler) JoinGuild(c fiber.Ctx) error {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}
	guildID, err := snowflake.ParseGuildID(c.Params("guildID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid guild ID format")
	}

	if _, err := h.guilds.GetByID(c, guildID); err != nil {
		return h.mapGuildError(c, err)
	}

	if err := h.members.Add(c, userID, guildID, time.Now().Unix()); err != nil {
		if errors.Is(err, member.ErrAlreadyExists) {
			return httputil.Fail(c, fiber.StatusConflict, httputil.CodeConflict, "Already a member of this guild")
		}
		h.log.Error().Err(err).Str("handler", "guild").Msg("add member failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	h.registry.AddMember(userID, guildID)

	m, err := h.members.Get(c, userID, guildID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "guild").Msg("load member failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	m.User.ApplyVisibility(h.registry.IsConnected(userID))

	h.registry.Dispatch(gateway.MemberCreate{Member: *m})
	return httputil.SuccessStatus(c, fiber.StatusCreated, m)
}

// LeaveGuild handles DELETE /api/v1/guilds/:guildID/members/@me. The order
// matters: commit the removal, dispatch MEMBER_REMOVE while the departing
// user's routing filter still lists the guild, trim the filter, then tell
// the departing user directly that the guild is gone for them.
func (h *GuildHandler) LeaveGuild(c fiber.Ctx) error {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}
	guildID, err := snowflake.ParseGuildID(c.Params("guildID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid guild ID format")
	}

	g, err := h.guilds.GetByID(c, guildID)
	if err != nil {
		return h.mapGuildError(c, err)
	}
	if g.OwnerID == userID {
		return httputil.Fail(c, fiber.StatusForbidden, httputil.CodeForbidden, guild.ErrOwnerLeaves.Error())
	}

	if err := h.members.Remove(c, userID, guildID); err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Not a member of this guild")
		}
		h.log.Error().Err(err).Str("handler", "guild").Msg("remove member failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	h.registry.Dispatch(gateway.MemberRemove{ID: userID, GuildID: guildID})
	h.registry.RemoveMember(userID, guildID)
	h.registry.SendTo(userID, gateway.GuildRemove{ID: guildID})

	return c.SendStatus(fiber.StatusNoContent)
}

// memberOf parses :guildID and checks the caller's membership.
func (h *GuildHandler) memberOf(c fiber.Ctx) (snowflake.UserID, snowflake.GuildID, error) {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return 0, 0, httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}
	guildID, err := snowflake.ParseGuildID(c.Params("guildID"))
	if err != nil {
		return 0, 0, httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid guild ID format")
	}
	if _, err := h.members.Get(c, userID, guildID); err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return 0, 0, httputil.Fail(c, fiber.StatusForbidden, httputil.CodeForbidden, "Not a member of this guild")
		}
		h.log.Error().Err(err).Str("handler", "guild").Msg("membership check failed")
		return 0, 0, httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	return userID, guildID, nil
}

// mapGuildError converts guild-layer errors to HTTP responses.
func (h *GuildHandler) mapGuildError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, guild.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Guild not found")
	case errors.Is(err, guild.ErrNameLength):
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("handler", "guild").Msg("unhandled guild repository error")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
}
