package api

import (
	"errors"
	"strings"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/identity"
	"github.com/example/realtime-chat/modules/store"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

const maxUserListLimit = 100

var errInvalidSince = domain.NewError(domain.ErrValidation, "Invalid since timestamp, use RFC 3339")

// Handlers contains the REST handlers of the API.
type Handlers struct {
	identity identity.IdentityPort
	store    store.StorePort
	logger   types.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(identityPort identity.IdentityPort, storePort store.StorePort, logger types.Logger) *Handlers {
	return &Handlers{
		identity: identityPort,
		store:    storePort,
		logger:   logger,
	}
}

// Register handles POST /api/v1/auth/register.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return badRequest(c, "Username, email and password are required")
	}

	resp, err := h.identity.Register(c.UserContext(), identity.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return h.fail(c, err, "Failed to register")
	}
	return c.Status(fiber.StatusCreated).JSON(tokenResponse(resp))
}

// Login handles POST /api/v1/auth/login.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "Email and password are required")
	}

	resp, err := h.identity.Login(c.UserContext(), identity.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return h.fail(c, err, "Failed to log in")
	}
	return c.JSON(tokenResponse(resp))
}

func tokenResponse(resp *identity.AuthResponse) TokenResponse {
	return TokenResponse{
		Token:     resp.Token,
		TokenType: "Bearer",
		ExpiresAt: resp.ExpiresAt,
		User:      resp.User,
	}
}

// Me handles GET /api/v1/users/me.
func (h *Handlers) Me(c *fiber.Ctx) error {
	user, err := h.identity.GetUser(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return h.fail(c, err, "Failed to load user")
	}
	return c.JSON(user)
}

// UpdateProfile handles PUT /api/v1/users/me.
func (h *Handlers) UpdateProfile(c *fiber.Ctx) error {
	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Username == nil && req.Avatar == nil {
		return badRequest(c, "Username or avatar is required")
	}

	user, err := h.identity.UpdateProfile(c.UserContext(), identity.UpdateProfileRequest{
		UserID:   currentUser(c).ID,
		Username: req.Username,
		Avatar:   req.Avatar,
	})
	if err != nil {
		return h.fail(c, err, "Failed to update profile")
	}
	return c.JSON(user)
}

// ListUsers handles GET /api/v1/users?q=&limit=.
func (h *Handlers) ListUsers(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", maxUserListLimit)
	if limit <= 0 || limit > maxUserListLimit {
		limit = maxUserListLimit
	}
	users, err := h.identity.ListUsers(c.UserContext(), identity.ListUsersRequest{
		ExcludeID: currentUser(c).ID,
		Search:    c.Query("q"),
		Limit:     limit,
	})
	if err != nil {
		return h.fail(c, err, "Failed to list users")
	}
	return c.JSON(UserListResponse{Users: users})
}

// GetUser handles GET /api/v1/users/:id.
func (h *Handlers) GetUser(c *fiber.Ctx) error {
	user, err := h.identity.GetUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "Failed to load user")
	}
	return c.JSON(user)
}

// ConversationMessages handles GET /api/v1/users/:id/messages.
func (h *Handlers) ConversationMessages(c *fiber.Ctx) error {
	q, err := parseHistoryQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	messages, err := h.store.ConversationMessages(c.UserContext(), currentUser(c).ID, c.Params("id"), q)
	if err != nil {
		return h.fail(c, err, "Failed to load messages")
	}
	return c.JSON(MessageListResponse{Messages: messages, Count: len(messages)})
}

// SentMessages handles GET /api/v1/messages, the caller's own messages.
func (h *Handlers) SentMessages(c *fiber.Ctx) error {
	q, err := parseHistoryQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	messages, err := h.store.SenderMessages(c.UserContext(), currentUser(c).ID, q)
	if err != nil {
		return h.fail(c, err, "Failed to load messages")
	}
	return c.JSON(MessageListResponse{Messages: messages, Count: len(messages)})
}

// ListChannels handles GET /api/v1/channels.
func (h *Handlers) ListChannels(c *fiber.Ctx) error {
	channels, err := h.store.ListChannels(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return h.fail(c, err, "Failed to list channels")
	}
	return c.JSON(ChannelListResponse{Channels: channels})
}

// CreateChannel handles POST /api/v1/channels.
func (h *Handlers) CreateChannel(c *fiber.Ctx) error {
	var req CreateChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	channel, err := h.store.CreateChannel(c.UserContext(), store.CreateChannelRequest{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		CreatedBy:   currentUser(c).ID,
	})
	if err != nil {
		return h.fail(c, err, "Failed to create channel")
	}
	return c.Status(fiber.StatusCreated).JSON(channel)
}

// JoinChannel handles POST /api/v1/channels/:id/join.
func (h *Handlers) JoinChannel(c *fiber.Ctx) error {
	if err := h.store.JoinChannel(c.UserContext(), c.Params("id"), currentUser(c).ID); err != nil {
		return h.fail(c, err, "Failed to join channel")
	}
	return c.JSON(StatusResponse{Message: "Joined channel successfully"})
}

// LeaveChannel handles POST /api/v1/channels/:id/leave.
func (h *Handlers) LeaveChannel(c *fiber.Ctx) error {
	if err := h.store.LeaveChannel(c.UserContext(), c.Params("id"), currentUser(c).ID); err != nil {
		return h.fail(c, err, "Failed to leave channel")
	}
	return c.JSON(StatusResponse{Message: "Left channel successfully"})
}

// ChannelMessages handles GET /api/v1/channels/:id/messages.
func (h *Handlers) ChannelMessages(c *fiber.Ctx) error {
	q, err := parseHistoryQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	messages, err := h.store.ChannelMessages(c.UserContext(), currentUser(c).ID, c.Params("id"), q)
	if err != nil {
		return h.fail(c, err, "Failed to load messages")
	}
	return c.JSON(MessageListResponse{Messages: messages, Count: len(messages)})
}

// parseHistoryQuery reads q, since (RFC 3339) and limit.
func parseHistoryQuery(c *fiber.Ctx) (store.Query, error) {
	q := store.Query{
		Search: strings.TrimSpace(c.Query("q")),
		Limit:  c.QueryInt("limit", 0),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return store.Query{}, errInvalidSince
		}
		q.Since = &since
	}
	return q, nil
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}

// fail maps a categorized error to its HTTP status.
func (h *Handlers) fail(c *fiber.Ctx, err error, fallback string) error {
	status := fiber.StatusInternalServerError
	code := "server_error"
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		status, code = fiber.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrAuthorization):
		status, code = fiber.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		status, code = fiber.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrValidation):
		status, code = fiber.StatusBadRequest, "bad_request"
	default:
		h.logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:   code,
		Message: domain.ClientMessage(err, fallback),
	})
}
