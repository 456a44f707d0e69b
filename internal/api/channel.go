package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/auth"
	"github.com/quarrel-chat/quarrel-server/internal/channel"
	"github.com/quarrel-chat/quarrel-server/internal/gateway"
	"github.com/quarrel-chat/quarrel-server/internal/httputil"
	"github.com/quarrel-chat/quarrel-server/internal/member"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// ChannelHandler serves channel endpoints.
type ChannelHandler struct {
	channels channel.Repository
	members  member.Repository
	registry *gateway.Registry
	ids      *snowflake.Generator
	log      zerolog.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(
	channels channel.Repository,
	members member.Repository,
	registry *gateway.Registry,
	ids *snowflake.Generator,
	logger zerolog.Logger,
) *ChannelHandler {
	return &ChannelHandler{
		channels: channels,
		members:  members,
		registry: registry,
		ids:      ids,
		log:      logger,
	}
}

type createChannelRequest struct {
	Name string `json:"name"`
}

// ListChannels handles GET /api/v1/guilds/:guildID/channels. Members only.
func (h *ChannelHandler) ListChannels(c fiber.Ctx) error {
	guildID, err := h.requireMembership(c)
	if err != nil {
		return err
	}

	channels, err := h.channels.GetAllForGuild(c, guildID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "channel").Msg("list channels failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	return httputil.Success(c, channels)
}

// CreateChannel handles POST /api/v1/guilds/:guildID/channels.
func (h *ChannelHandler) CreateChannel(c fiber.Ctx) error {
	guildID, err := h.requireMembership(c)
	if err != nil {
		return err
	}

	var body createChannelRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid request body")
	}

	name := channel.NormalizeName(body.Name)
	if err := channel.ValidateName(name); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, err.Error())
	}

	ch := channel.Channel{ID: h.ids.NextChannelID(), GuildID: guildID, Name: name}
	if err := h.channels.Create(c, ch); err != nil {
		h.log.Error().Err(err).Str("handler", "channel").Msg("create channel failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	h.registry.Dispatch(gateway.ChannelCreate{Channel: ch})
	return httputil.SuccessStatus(c, fiber.StatusCreated, ch)
}

// DeleteChannel handles DELETE /api/v1/channels/:channelID.
func (h *ChannelHandler) DeleteChannel(c fiber.Ctx) error {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}
	channelID, err := snowflake.ParseChannelID(c.Params("channelID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid channel ID format")
	}

	ch, err := h.channels.GetByID(c, channelID)
	if err != nil {
		return h.mapChannelError(c, err)
	}
	if _, err := h.members.Get(c, userID, ch.GuildID); err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusForbidden, httputil.CodeForbidden, "Not a member of this guild")
		}
		h.log.Error().Err(err).Str("handler", "channel").Msg("membership check failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	if err := h.channels.Delete(c, channelID); err != nil {
		return h.mapChannelError(c, err)
	}

	h.registry.Dispatch(gateway.ChannelRemove{ID: channelID, GuildID: ch.GuildID})
	return c.SendStatus(fiber.StatusNoContent)
}

// requireMembership parses :guildID and checks the caller belongs to it.
func (h *ChannelHandler) requireMembership(c fiber.Ctx) (snowflake.GuildID, error) {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return 0, httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}
	guildID, err := snowflake.ParseGuildID(c.Params("guildID"))
	if err != nil {
		return 0, httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid guild ID format")
	}
	if _, err := h.members.Get(c, userID, guildID); err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return 0, httputil.Fail(c, fiber.StatusForbidden, httputil.CodeForbidden, "Not a member of this guild")
		}
		h.log.Error().Err(err).Str("handler", "channel").Msg("membership check failed")
		return 0, httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	return guildID, nil
}

// mapChannelError converts channel-layer errors to HTTP responses.
func (h *ChannelHandler) mapChannelError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, channel.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Channel not found")
	default:
		h.log.Error().Err(err).Str("handler", "channel").Msg("unhandled channel repository error")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
}
