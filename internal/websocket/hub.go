// Package websocket pushes leaderboard changes to connected game clients.
// Clients subscribe to "global" or to "game:<game>" channels.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/advent-arcade/internal/domain"
)

// Message types
const (
	MessageTypeConnected    = "connected"
	MessageTypeGameUpdate   = "game_update"
	MessageTypeGlobalUpdate = "global_update"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// GlobalChannel carries global leaderboard updates
const GlobalChannel = "global"

const gameChannelPrefix = "game:"

// GameChannel returns the channel carrying updates of one game
func GameChannel(game string) string {
	return gameChannelPrefix + game
}

// ValidChannel reports whether name is a channel clients may subscribe to
func ValidChannel(name string) bool {
	if name == GlobalChannel {
		return true
	}
	game, ok := strings.CutPrefix(name, gameChannelPrefix)
	return ok && game != "" && len(game) <= 64
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// GameUpdate is pushed after a score was accepted for a game
type GameUpdate struct {
	Game    string               `json:"game"`
	Latest  domain.SubmitResult  `json:"latest"`
	Entries []domain.RankedEntry `json:"entries"`
}

// GlobalUpdate carries the refreshed global leaderboard
type GlobalUpdate struct {
	Rows []domain.GlobalLeaderboardRow `json:"rows"`
}

// Stats describes the hub's current connections
type Stats struct {
	Connections int            `json:"connections"`
	Channels    map[string]int `json:"channels"`
}

type subscription struct {
	client  *Client
	channel string
	add     bool
}

// Hub tracks connected clients and fans messages out per channel. All
// membership changes and broadcasts go through Run so they apply in order.
type Hub struct {
	channels map[string]map[*Client]struct{}
	clients  map[*Client]struct{}

	register      chan *Client
	unregister    chan *Client
	subscriptions chan subscription
	broadcast     chan *Message

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		channels:      make(map[string]map[*Client]struct{}),
		clients:       make(map[*Client]struct{}),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscriptions: make(chan subscription, 64),
		broadcast:     make(chan *Message, 256),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			for _, ch := range client.initial {
				h.join(client, ch)
			}
			h.mu.Unlock()
			client.queue(&Message{
				Type:      MessageTypeConnected,
				Data:      map[string]interface{}{"client_id": client.id, "channels": client.initial},
				Timestamp: time.Now(),
			})
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for ch := range h.channels {
					h.leave(client, ch)
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case sub := <-h.subscriptions:
			h.mu.Lock()
			_, connected := h.clients[sub.client]
			if connected {
				if sub.add {
					h.join(sub.client, sub.channel)
				} else {
					h.leave(sub.client, sub.channel)
				}
			}
			h.mu.Unlock()
			if connected && sub.add {
				sub.client.queue(&Message{
					Type:      MessageTypeSubscribed,
					Channel:   sub.channel,
					Timestamp: time.Now(),
				})
			}

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// join and leave expect h.mu to be held
func (h *Hub) join(c *Client, channel string) {
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[*Client]struct{})
		h.channels[channel] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leave(c *Client, channel string) {
	members, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.channels, channel)
	}
}

// closeAll drops every connection. The read pumps notice and exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.clients = make(map[*Client]struct{})
	h.channels = make(map[string]map[*Client]struct{})
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// deliver sends a message to every subscriber of its channel
func (h *Hub) deliver(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.channels[message.Channel] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) publish(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "channel", message.Channel)
	}
}

// BroadcastGameUpdate pushes a game's standings after a submission
func (h *Hub) BroadcastGameUpdate(game string, latest domain.SubmitResult, entries []domain.RankedEntry) {
	h.publish(&Message{
		Type:    MessageTypeGameUpdate,
		Channel: GameChannel(game),
		Data: GameUpdate{
			Game:    game,
			Latest:  latest,
			Entries: entries,
		},
		Timestamp: time.Now(),
	})
}

// BroadcastGlobalUpdate pushes the global leaderboard
func (h *Hub) BroadcastGlobalUpdate(rows []domain.GlobalLeaderboardRow) {
	h.publish(&Message{
		Type:      MessageTypeGlobalUpdate,
		Channel:   GlobalChannel,
		Data:      GlobalUpdate{Rows: rows},
		Timestamp: time.Now(),
	})
}

// Subscribers returns the number of clients on a channel
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// HasSubscribers reports whether anyone listens on channel
func (h *Hub) HasSubscribers(channel string) bool {
	return h.Subscribers(channel) > 0
}

// Stats returns the connection count and per-channel subscriber counts
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{
		Connections: len(h.clients),
		Channels:    make(map[string]int, len(h.channels)),
	}
	for ch, members := range h.channels {
		s.Channels[ch] = len(members)
	}
	return s
}

func (h *Hub) subscribe(c *Client, channel string, add bool) {
	select {
	case h.subscriptions <- subscription{client: c, channel: channel, add: add}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}
