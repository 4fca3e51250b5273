package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-support-chat/internal/audit"
	"github.com/weiawesome/wes-support-chat/internal/config"
	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/hub"
	"github.com/weiawesome/wes-support-chat/internal/service"
	"github.com/weiawesome/wes-support-chat/pkg/log"
	"github.com/weiawesome/wes-support-chat/pkg/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Authenticator resolves the handshake credential.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
}

type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	auth    Authenticator
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, auth Authenticator, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		auth:    auth,
		wsCfg:   wsCfg,
	}
}

// HandleWebSocket authenticates before upgrading, so a refused handshake is
// a plain HTTP error and no connection state is ever created for it.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := log.Ctx(ctx)

	identity, err := h.auth.Authenticate(ctx, middleware.TokenFromRequest(r))
	if err != nil {
		code, reason := domain.ErrorCode(err)
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", reason, "websocket handshake refused")
		writeJSON(w, handshakeStatus(err), domain.NewErrorEvent(code, reason))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), *identity, h.hub, conn, h.wsCfg)
	client.WithLogger(l)

	if err := h.service.Connect(client.Context(), client); err != nil {
		l.Error().Err(err).Msg("failed to greet client")
	}

	go client.WritePump()
	go client.ReadPump(h.handleMessage, h.handleClose)
}

func (h *WSHandler) handleClose(client *hub.Client) {
	h.service.Disconnect(client.Context(), client)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		h.reply(client, base.Type, &domain.ValidationError{Field: "message", Reason: "invalid JSON"})
		return
	}

	ctx := client.Context()
	var err error

	switch base.Type {
	case domain.MsgTypeStartSession:
		var msg domain.StartSessionMessage
		if err = json.Unmarshal(message, &msg); err == nil {
			_, err = h.service.StartSession(ctx, client, msg.Subject)
		}

	case domain.MsgTypeJoinSession:
		var msg domain.SessionRefMessage
		if err = decodeSessionRef(message, &msg); err == nil {
			_, err = h.service.JoinSession(ctx, client, msg.SessionID)
		}

	case domain.MsgTypeAdmitAgent:
		var msg domain.SessionRefMessage
		if err = decodeSessionRef(message, &msg); err == nil {
			_, err = h.service.AdmitAgent(ctx, client, msg.SessionID)
		}

	case domain.MsgTypeCloseSession:
		var msg domain.SessionRefMessage
		if err = decodeSessionRef(message, &msg); err == nil {
			_, err = h.service.CloseSession(ctx, client, msg.SessionID)
		}

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageMessage
		if err = json.Unmarshal(message, &msg); err == nil {
			if msg.SessionID == "" {
				err = &domain.ValidationError{Field: "session_id", Reason: "is required"}
			} else {
				_, err = h.service.Send(ctx, client, msg.SessionID, msg.Body)
			}
		}

	case domain.MsgTypeMarkRead:
		var msg domain.MarkReadMessage
		if err = json.Unmarshal(message, &msg); err == nil {
			err = h.service.MarkRead(ctx, client, msg.NotificationID)
		}

	case domain.MsgTypePing:
		err = client.SendMessage(&domain.BaseMessage{Type: domain.MsgTypePong})

	default:
		err = &domain.ValidationError{Field: "type", Reason: "unknown message type"}
	}

	if err != nil {
		h.reply(client, base.Type, err)
	}
}

// reply reports a failed intent to the originating connection only.
func (h *WSHandler) reply(client *hub.Client, intent string, err error) {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		err = &domain.ValidationError{Field: "message", Reason: "invalid " + intent + " payload"}
	}

	code, _ := domain.ErrorCode(err)
	l := log.Ctx(client.Context())
	logLevel(&l, code).Err(err).Str("intent", intent).Msg("intent failed")

	if sendErr := client.SendMessage(domain.ErrorEventFrom(err)); sendErr != nil {
		l.Warn().Err(sendErr).Msg("failed to send error event")
	}
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux, logger zerolog.Logger) {
	mux.Handle("/ws", log.HTTPMiddleware(logger)(http.HandlerFunc(h.HandleWebSocket)))
}

func decodeSessionRef(data []byte, msg *domain.SessionRefMessage) error {
	if err := json.Unmarshal(data, msg); err != nil {
		return err
	}
	if msg.SessionID == "" {
		return &domain.ValidationError{Field: "session_id", Reason: "is required"}
	}
	return nil
}

func handshakeStatus(err error) int {
	var authErr *domain.AuthError
	var transientErr *domain.TransientStoreError
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &transientErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// logLevel keeps client mistakes out of the error stream.
func logLevel(l *zerolog.Logger, code string) *zerolog.Event {
	switch code {
	case domain.ErrCodeUnavailable, domain.ErrCodeInternalError:
		return l.Error()
	default:
		return l.Debug()
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
