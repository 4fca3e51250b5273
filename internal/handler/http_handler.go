package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/service"
	"github.com/weiawesome/wes-support-chat/pkg/log"
	"github.com/weiawesome/wes-support-chat/pkg/middleware"
	"github.com/weiawesome/wes-support-chat/pkg/response"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	identityKey  = "identity"
)

// IdentityResolver loads the identity behind a validated user id.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string) (*domain.Identity, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(ctx context.Context) error

// HTTPHandler serves chat and notification history over REST.
type HTTPHandler struct {
	chatService         service.ChatService
	notificationService service.NotificationService
	authMiddleware      *middleware.AuthMiddleware
	identities          IdentityResolver
	health              HealthChecker
}

func NewHTTPHandler(
	chatService service.ChatService,
	notificationService service.NotificationService,
	authMiddleware *middleware.AuthMiddleware,
	identities IdentityResolver,
	health HealthChecker,
) *HTTPHandler {
	return &HTTPHandler{
		chatService:         chatService,
		notificationService: notificationService,
		authMiddleware:      authMiddleware,
		identities:          identities,
		health:              health,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.Use(h.authMiddleware.RequireAuth(), h.requireIdentity())
	{
		chats := api.Group("/chats")
		{
			chats.GET("", h.ListChats)
			chats.GET("/:session_id/messages", h.GetMessages)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", h.ListNotifications)
			notifications.GET("/unread-count", h.UnreadCount)
			notifications.PATCH("/:id/read", h.MarkRead)
			notifications.POST("/read-all", h.MarkAllRead)
		}
	}

	r.GET("/health", h.HealthCheck)
}

// requireIdentity replaces the token's role claim with the stored identity.
func (h *HTTPHandler) requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := h.identities.Resolve(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}
		c.Set(identityKey, *identity)
		c.Next()
	}
}

func currentIdentity(c *gin.Context) domain.Identity {
	identity, _ := c.MustGet(identityKey).(domain.Identity)
	return identity
}

func (h *HTTPHandler) ListChats(c *gin.Context) {
	page, limit, ok := parsePage(c)
	if !ok {
		return
	}

	sessions, total, err := h.chatService.ListSessions(c.Request.Context(), currentIdentity(c), page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Paginated(c, sessions, total, page, limit)
}

func (h *HTTPHandler) GetMessages(c *gin.Context) {
	sessionID := c.Param("session_id")

	limit := maxLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	page, err := h.chatService.History(c.Request.Context(), currentIdentity(c), sessionID, c.Query("cursor"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, page)
}

func (h *HTTPHandler) ListNotifications(c *gin.Context) {
	page, limit, ok := parsePage(c)
	if !ok {
		return
	}
	unreadOnly, err := strconv.ParseBool(c.DefaultQuery("unread_only", "false"))
	if err != nil {
		response.BadRequest(c, "unread_only must be a boolean")
		return
	}

	result, err := h.notificationService.List(c.Request.Context(), currentIdentity(c).ID, unreadOnly, page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

func (h *HTTPHandler) UnreadCount(c *gin.Context) {
	count, err := h.notificationService.UnreadCount(c.Request.Context(), currentIdentity(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"count": count})
}

func (h *HTTPHandler) MarkRead(c *gin.Context) {
	if err := h.notificationService.MarkRead(c.Request.Context(), currentIdentity(c).ID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"id": c.Param("id"), "is_read": true})
}

func (h *HTTPHandler) MarkAllRead(c *gin.Context) {
	changed, err := h.notificationService.MarkAllRead(c.Request.Context(), currentIdentity(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"updated": changed})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			l := log.Ctx(c.Request.Context())
			l.Warn().Err(err).Msg("health check failed")
			response.ServiceUnavailable(c, "database unreachable")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	code, reason := domain.ErrorCode(err)

	status := http.StatusInternalServerError
	switch code {
	case domain.ErrCodeUnauthorized:
		status = http.StatusUnauthorized
	case domain.ErrCodeNotFound:
		status = http.StatusNotFound
	case domain.ErrCodeForbidden:
		status = http.StatusForbidden
	case domain.ErrCodeSessionClosed:
		status = http.StatusConflict
	case domain.ErrCodeBadRequest:
		status = http.StatusBadRequest
	case domain.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	response.Error(c, status, code, reason)
}

func parsePage(c *gin.Context) (page, limit int, ok bool) {
	page, limit = 1, defaultLimit
	if v := c.Query("page"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "page must be a positive integer")
			return 0, 0, false
		}
		page = parsed
	}
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = parsed
		if limit > maxLimit {
			limit = maxLimit
		}
	}
	return page, limit, true
}
