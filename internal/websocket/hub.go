package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/retro-leaderboard/internal/domain"
)

// Message types
const (
	MessageTypeStandingsUpdate = "standings_update"
	MessageTypeSubscribe       = "subscribe"
	MessageTypeUnsubscribe     = "unsubscribe"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeError           = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type        string    `json:"type"`
	ChallengeID int64     `json:"challenge_id,omitempty"`
	Data        any       `json:"data,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// StandingsUpdate carries the standings of one challenge
type StandingsUpdate struct {
	ChallengeID int64             `json:"challenge_id"`
	Standings   []domain.Standing `json:"standings"`
}

// Hub tracks connected clients and their challenge subscriptions
type Hub struct {
	// subscribers by challenge ID
	clients    map[int64]map[*Client]bool
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client      *Client
	challengeID int64
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[int64]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.removeClient(client)

		case req := <-h.subscribe:
			if h.addSubscription(req.client, req.challengeID) {
				h.logger.Debug("client subscribed", "client_id", req.client.id, "challenge_id", req.challengeID)
			}

		case req := <-h.unsubscribe:
			h.mu.Lock()
			h.dropSubscription(req.client, req.challengeID)
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "challenge_id", req.challengeID)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client]; !ok {
		return
	}
	delete(h.allClients, client)
	for challengeID := range h.clients {
		h.dropSubscription(client, challengeID)
	}
	close(client.send)
	h.logger.Debug("client unregistered", "client_id", client.id)
}

// addSubscription ignores clients that are no longer registered, since their
// send channel is already closed
func (h *Hub) addSubscription(client *Client, challengeID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.allClients[client] {
		return false
	}
	if _, ok := h.clients[challengeID]; !ok {
		h.clients[challengeID] = make(map[*Client]bool)
	}
	h.clients[challengeID][client] = true
	return true
}

// dropSubscription must be called with mu held
func (h *Hub) dropSubscription(client *Client, challengeID int64) {
	clients, ok := h.clients[challengeID]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, challengeID)
	}
}

func (h *Hub) deliver(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.allClients
	if message.ChallengeID != 0 {
		targets = h.clients[message.ChallengeID]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// BroadcastStandings sends fresh standings to the challenge's subscribers
func (h *Hub) BroadcastStandings(challengeID int64, standings []domain.Standing) {
	message := &Message{
		Type:        MessageTypeStandingsUpdate,
		ChallengeID: challengeID,
		Data: StandingsUpdate{
			ChallengeID: challengeID,
			Standings:   standings,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a challenge subscription
func (h *Hub) Subscribe(client *Client, challengeID int64) {
	h.subscribe <- &subscriptionRequest{client: client, challengeID: challengeID}
}

// Unsubscribe removes a client from a challenge subscription
func (h *Hub) Unsubscribe(client *Client, challengeID int64) {
	h.unsubscribe <- &subscriptionRequest{client: client, challengeID: challengeID}
}

// GetSubscriberCount returns the number of subscribers for a challenge
func (h *Hub) GetSubscriberCount(challengeID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[challengeID])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
