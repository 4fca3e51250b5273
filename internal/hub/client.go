package hub

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-support-chat/internal/config"
	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/pkg/log"
)

const defaultSendBuffer = 256

// Client is one authenticated websocket connection. Identity is fixed at
// handshake.
type Client struct {
	ID       string
	Identity domain.Identity
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	logger   zerolog.Logger
	config   config.WebSocketConfig
}

func NewClient(id string, identity domain.Identity, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	size := cfg.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &Client{
		ID:       id,
		Identity: identity,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, size),
		logger:   log.ConnLogger(log.L(), id, identity.ID, string(identity.Role)),
		config:   cfg,
	}
}

// WithLogger replaces the connection logger, e.g. with the request-scoped
// logger of the upgrade request.
func (c *Client) WithLogger(l zerolog.Logger) {
	c.logger = log.ConnLogger(l, c.ID, c.Identity.ID, string(c.Identity.Role))
}

// Context returns a context carrying the connection logger.
func (c *Client) Context() context.Context {
	return log.WithLogger(context.Background(), c.logger)
}

// SendMessage queues a JSON event for this connection only.
func (c *Client) SendMessage(message interface{}) error {
	return c.Hub.SendJSON(c, message)
}

// ReadPump reads frames until the connection fails, handing each to
// handler. onClose runs once the loop ends, before the hub forgets the
// client.
func (c *Client) ReadPump(handler func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		if onClose != nil {
			onClose(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

// WritePump drains Send to the socket and pings on an interval. A closed
// Send channel ends the connection with a close frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				c.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
