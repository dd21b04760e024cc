package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout    = 10 * time.Second
	readIdleTimeout = 60 * time.Second
	pingInterval    = readIdleTimeout * 9 / 10
	maxInboundBytes = 1024
	sendBuffer      = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Client is one browser connection watching challenge standings
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage is a subscription control frame sent by the browser
type ClientMessage struct {
	Type        string `json:"type"`
	ChallengeID int64  `json:"challenge_id,omitempty"`
}

// NewClient creates a client bound to hub
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With("client_id", id),
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	}
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		var msg ClientMessage
		err := c.conn.ReadJSON(&msg)
		if err == nil {
			c.handleMessage(msg)
			continue
		}

		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			c.sendError("invalid message format")
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			c.logger.Warn("websocket read failed", "error", err)
		}
		return
	}
}

func (c *Client) handleMessage(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.ChallengeID <= 0 {
			c.sendError("challenge_id required for subscribe")
			return
		}
		c.hub.Subscribe(c, msg.ChallengeID)
		c.sendAck("subscribed", msg.ChallengeID)
	case MessageTypeUnsubscribe:
		if msg.ChallengeID > 0 {
			c.hub.Unsubscribe(c, msg.ChallengeID)
			c.sendAck("unsubscribed", msg.ChallengeID)
		}
	case MessageTypePing:
		c.queue(Message{Type: MessageTypePong, Timestamp: time.Now()})
	default:
		c.logger.Debug("ignoring client message", "type", msg.Type)
	}
}

// writeLoop sends every queued payload as its own text frame so each
// frame is a complete JSON document.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, open := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !open {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(text string) {
	c.queue(Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": text},
		Timestamp: time.Now(),
	})
}

func (c *Client) sendAck(action string, challengeID int64) {
	c.queue(Message{
		Type:        action,
		ChallengeID: challengeID,
		Data:        map[string]string{"status": "ok"},
		Timestamp:   time.Now(),
	})
}

// queue drops the message when the send buffer is full
func (c *Client) queue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// challengeFromQuery reads the optional challenge_id query parameter.
func challengeFromQuery(r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("challenge_id")
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ServeWs upgrades the request and registers the client. A challenge_id
// query parameter subscribes the client immediately.
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	challengeID, ok := challengeFromQuery(r)
	if !ok {
		http.Error(w, "invalid challenge_id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)
	if challengeID > 0 {
		hub.Subscribe(client, challengeID)
	}

	go client.writeLoop()
	go client.readLoop()

	client.logger.Debug("websocket connected", "challenge_id", challengeID)
}
