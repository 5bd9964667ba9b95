package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/pkg/response"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TokenValidator returns the user behind a session token.
type TokenValidator func(token string) (uuid.UUID, error)

// AccessChecker reports whether a user may watch an event's feed.
type AccessChecker interface {
	CanViewEvent(ctx context.Context, userID, eventID uuid.UUID) (bool, error)
}

// Client is one organizer dashboard connection.
type Client struct {
	ID      string
	EventID uuid.UUID
	UserID  uuid.UUID
	hub     *Hub
	conn    *websocket.Conn
	send    chan WSMessage
	logger  *zap.Logger
}

// NewUpgrader builds the WebSocket upgrader. allowedOrigins is "*" or a comma-separated list.
func NewUpgrader(allowedOrigins string) websocket.Upgrader {
	allowAll := false
	origins := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			origins[o] = true
		}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || origins[origin]
		},
	}
}

// ServeWs handles GET /ws/events/:id?token=. Browsers cannot set headers on WebSocket
// requests, so the session token travels in the query string.
func ServeWs(hub *Hub, upgrader websocket.Upgrader, validate TokenValidator, access AccessChecker, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		eventID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid event id")
			return
		}
		token := c.Query("token")
		if token == "" {
			response.Unauthorized(c, "token required")
			return
		}
		userID, err := validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		ok, err := access.CanViewEvent(c.Request.Context(), userID, eventID)
		if err != nil {
			logger.Error("realtime access check", zap.String("event_id", eventID.String()), zap.Error(err))
			response.Internal(c, "failed to authorize")
			return
		}
		if !ok {
			response.NotFound(c, "event not found")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{
			ID:      uuid.New().String(),
			EventID: eventID,
			UserID:  userID,
			hub:     hub,
			conn:    conn,
			send:    make(chan WSMessage, 64),
			logger:  logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// readPump only serves heartbeats; the feed is server to client.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		if msg.Event == "ping" {
			select {
			case c.send <- WSMessage{Event: "pong"}:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
