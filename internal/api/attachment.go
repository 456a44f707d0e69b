package api

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/attachment"
	"github.com/quarrel-chat/quarrel-server/internal/auth"
	"github.com/quarrel-chat/quarrel-server/internal/channel"
	"github.com/quarrel-chat/quarrel-server/internal/httputil"
	"github.com/quarrel-chat/quarrel-server/internal/member"
	"github.com/quarrel-chat/quarrel-server/internal/message"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
)

// AttachmentHandler serves attachment upload and download endpoints.
type AttachmentHandler struct {
	attachments attachment.Repository
	store       *attachment.Store
	messages    message.Repository
	channels    channel.Repository
	members     member.Repository
	log         zerolog.Logger
}

// NewAttachmentHandler creates a new attachment handler.
func NewAttachmentHandler(
	attachments attachment.Repository,
	store *attachment.Store,
	messages message.Repository,
	channels channel.Repository,
	members member.Repository,
	logger zerolog.Logger,
) *AttachmentHandler {
	return &AttachmentHandler{
		attachments: attachments,
		store:       store,
		messages:    messages,
		channels:    channels,
		members:     members,
		log:         logger,
	}
}

// Upload handles POST /api/v1/channels/:channelID/messages/:messageID/attachments.
// The multipart "file" part becomes the next attachment ordinal on the message.
func (h *AttachmentHandler) Upload(c fiber.Ctx) error {
	msg, ch, err := h.messageForMember(c)
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Missing file part")
	}

	existing, err := h.attachments.GetForMessage(c, msg.ID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "attachment").Msg("list attachments failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	if len(existing) >= attachment.MaxPerMessage {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Attachment limit reached for this message")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Unreadable file part")
	}
	defer file.Close()

	content := make([]byte, fileHeader.Size)
	if _, err := io.ReadFull(file, content); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Unreadable file part")
	}

	a := attachment.Attachment{
		ID:          len(existing) + 1,
		MessageID:   msg.ID,
		ChannelID:   ch.ID,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
	}

	if err := h.store.Upload(c, a, content); err != nil {
		h.log.Error().Err(err).Str("handler", "attachment").Msg("object upload failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	if err := h.attachments.Create(c, a); err != nil {
		h.log.Error().Err(err).Str("handler", "attachment").Msg("create attachment row failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, a)
}

// Download handles GET /api/v1/channels/:channelID/messages/:messageID/attachments/:attachmentID.
func (h *AttachmentHandler) Download(c fiber.Ctx) error {
	msg, _, err := h.messageForMember(c)
	if err != nil {
		return err
	}

	ordinal, err := strconv.Atoi(c.Params("attachmentID"))
	if err != nil || ordinal < 1 {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid attachment ID format")
	}

	a, err := h.attachments.Get(c, msg.ID, ordinal)
	if err != nil {
		if errors.Is(err, attachment.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Attachment not found")
		}
		h.log.Error().Err(err).Str("handler", "attachment").Msg("load attachment failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	content, err := h.store.Download(c, *a)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "attachment").Msg("object download failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	if a.ContentType != "" {
		c.Set(fiber.HeaderContentType, a.ContentType)
	}
	return c.Send(content)
}

// messageForMember parses :channelID and :messageID, checks membership on
// the channel's guild, and checks the message belongs to the channel.
func (h *AttachmentHandler) messageForMember(c fiber.Ctx) (*message.Message, *channel.Channel, error) {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return nil, nil, httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}
	channelID, err := snowflake.ParseChannelID(c.Params("channelID"))
	if err != nil {
		return nil, nil, httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid channel ID format")
	}
	messageID, err := snowflake.ParseMessageID(c.Params("messageID"))
	if err != nil {
		return nil, nil, httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid message ID format")
	}

	ch, err := h.channels.GetByID(c, channelID)
	if err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return nil, nil, httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Channel not found")
		}
		h.log.Error().Err(err).Str("handler", "attachment").Msg("load channel failed")
		return nil, nil, httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	if _, err := h.members.Get(c, userID, ch.GuildID); err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return nil, nil, httputil.Fail(c, fiber.StatusForbidden, httputil.CodeForbidden, "Not a member of this guild")
		}
		h.log.Error().Err(err).Str("handler", "attachment").Msg("membership check failed")
		return nil, nil, httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}

	msg, err := h.messages.GetByID(c, messageID)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return nil, nil, httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Message not found")
		}
		h.log.Error().Err(err).Str("handler", "attachment").Msg("load message failed")
		return nil, nil, httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
	if msg.ChannelID != ch.ID {
		return nil, nil, httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Message not found")
	}
	return msg, ch, nil
}
