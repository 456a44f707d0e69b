package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/quarrel-chat/quarrel-server/internal/auth"
	"github.com/quarrel-chat/quarrel-server/internal/gateway"
	"github.com/quarrel-chat/quarrel-server/internal/httputil"
	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/user"
)

// UserHandler serves the authenticated user's profile endpoints.
type UserHandler struct {
	users    user.Repository
	registry *gateway.Registry
	log      zerolog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users user.Repository, registry *gateway.Registry, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, registry: registry, log: logger}
}

type updateMeRequest struct {
	DisplayName *string `json:"display_name"`
	Presence    *string `json:"presence"`
}

// GetMe handles GET /api/v1/users/@me.
func (h *UserHandler) GetMe(c fiber.Ctx) error {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}

	u, err := h.users.GetByID(c, userID)
	if err != nil {
		return h.mapUserError(c, err)
	}
	u.ApplyVisibility(h.registry.IsConnected(u.ID))
	return httputil.Success(c, u)
}

// UpdateMe handles PATCH /api/v1/users/@me. A presence change is persisted
// first and then announced to the user's guild peers through the gateway.
func (h *UserHandler) UpdateMe(c fiber.Ctx) error {
	userID, ok := auth.UserIDFromCtx(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.CodeUnauthorized, "Missing user identity")
	}

	var body updateMeRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Invalid request body")
	}
	if body.DisplayName == nil && body.Presence == nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Nothing to update")
	}

	params := user.UpdateParams{DisplayName: body.DisplayName}
	if body.Presence != nil {
		status, err := presence.ParseStatus(*body.Presence)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeBadRequest, "Unknown presence")
		}
		params.LastPresence = &status
	}

	u, err := h.users.Update(c, userID, params)
	if err != nil {
		return h.mapUserError(c, err)
	}

	if params.LastPresence != nil {
		h.registry.Dispatch(gateway.PresenceUpdate{
			UserID:   userID,
			Presence: presence.Displayed(*params.LastPresence, h.registry.IsConnected(userID)),
		})
	}

	u.ApplyVisibility(h.registry.IsConnected(u.ID))
	return httputil.Success(c, u)
}

// mapUserError converts user-layer errors to HTTP responses.
func (h *UserHandler) mapUserError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, user.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "User not found")
	default:
		h.log.Error().Err(err).Str("handler", "user").Msg("unhandled user repository error")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternal, "An internal error occurred")
	}
}
