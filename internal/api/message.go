package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/auth"
	"github.com/quarrel-chat/quarrel-server/internal/channel"
	"github.com/quarrel-chat/quarrel-server/internal/gateway"
	"github.com/quarrel-chat/quarrel-server/internal/httputil"
	"github.com/quarrel-chat/quarrel-server/internal/member"
	"github.com/quarrel-chat/quarrel-server/internal/message"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// MessageHandler serves message endpoints.
type MessageHandler struct {
	messages   message.Repository
	channels   channel.Repository
	members    member.Repository
	registry   *gateway.Registry
	ids        *snowflake.Generator
	maxContent int
	log        zerolog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(
	messages message.Repository,
	channels channel.Repository,
	members member.Repository,
	registry *gateway.Registry,
	ids *snowflake.Generator,
	maxContent int,
	logger zerolog.Logger,
) *MessageHandler {
	return &MessageHandler{
		messages:   messages,
		channels:   channels,
		members:    members,
		registry:   registry,
		ids:        ids,
		maxContent: maxContent,
		log:        logger,
	}
}

type createMessageRequest struct {
	Content string  `json:"content"`
	Nonce   *string `json:"nonce"`
}

// ListMessages handles GET /api/v1/channels/:channelID/messages.
func (h *MessageHandler) ListMessages(c fiber.Ctx) error {
	ch, err := h.channelForMember(c)
	if err != nil {
		return err
	}

	var before snowflake.MessageID
	if raw := c.Query("before"); raw != "" {
		id, err := snowflake.ParseMessageID(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid before parameter")
		}
		before = id
	}

	rawLimit, _ := strconv.Atoi(c.Query("limit"))
	limit := message.ClampLimit(rawLimit)

	messages, err := h.messages.GetChannelPage(c, ch.ID, before, limit)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "message").Msg("list messages failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	return httputil.Success(c, messages)
}

// CreateMessage handles POST /api/v1/channels/:channelID/messages. The nonce
// is echoed back on the response and the gateway event so senders can match
// their optimistic message; it is never stored.
func (h *MessageHandler) CreateMessage(c fiber.Ctx) error {
	ch, err := h.channelForMember(c)
	if err != nil {
		return err
	}
	userID, _ := auth.UserIDFromCtx(c)

	var body createMessageRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid request body")
	}

	content, err := message.ValidateContent(body.Content, h.maxContent)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	id := h.ids.NextMessageID()
	if err := h.messages.Create(c, message.CreateParams{
		ID:        id,
		ChannelID: ch.ID,
		AuthorID:  userID,
		Content:   content,
	}); err != nil {
		return h.mapMessageError(c, err)
	}

	msg, err := h.messages.GetByID(c, id)
	if err != nil {
		return h.mapMessageError(c, err)
	}
	msg.Nonce = body.Nonce
	if msg.Author != nil {
		msg.Author.ApplyVisibility(h.registry.IsConnected(msg.Author.ID))
	}

	h.registry.Dispatch(gateway.MessageCreate{Message: *msg, GuildID: ch.GuildID})
	return httputil.SuccessStatus(c, fiber.StatusCreated, msg)
}

// channelForMember parses :channelID and checks the caller belongs to the
// channel's guild.
func (h *MessageHandler) channelForMember(c fiber.Ctx) (*channel.Channel, error) {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return nil, httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}
	channelID, err := snowflake.ParseChannelID(c.Params("channelID"))
	if err != nil {
		return nil, httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid channel ID format")
	}

	ch, err := h.channels.GetByID(c, channelID)
	if err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return nil, httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Channel not found")
		}
		h.log.Error().Err(err).Str("handler", "message").Msg("load channel failed")
		return nil, httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	if _, err := h.members.Get(c, userID, ch.GuildID); err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return nil, httputil.Fail(c, fiber.StatusForbidden, httputil.CodeForbidden, "Not a member of this guild")
		}
		h.log.Error().Err(err).Str("handler", "message").Msg("membership check failed")
		return nil, httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	return ch, nil
}

// mapMessageError converts message-layer errors to HTTP responses.
func (h *MessageHandler) mapMessageError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, message.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Message not found")
	case errors.Is(err, message.ErrEmptyContent), errors.Is(err, message.ErrContentTooLong):
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("handler", "message").Msg("unhandled message repository error")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
}
