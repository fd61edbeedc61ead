// Package notify fans conversion notifications out to push-channel clients.
package notify

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tinoosan/tubeconv/internal/data"
	"github.com/tinoosan/tubeconv/internal/metrics"
)

// DefaultClientBuffer is the number of notifications queued per client
// before further ones are dropped.
const DefaultClientBuffer = 32

// Client is one push-channel connection. It may be in several rooms.
type Client struct {
	id string
	ch chan data.Notification
}

func (c *Client) ID() string { return c.id }

// C delivers the notifications addressed to the client.
func (c *Client) C() <-chan data.Notification { return c.ch }

// Hub groups clients into rooms keyed by conversion token.
type Hub struct {
	log    *slog.Logger
	buffer int

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	members map[*Client]map[string]struct{}
}

func NewHub(l *slog.Logger) *Hub {
	if l == nil {
		l = slog.Default()
	}
	return &Hub{
		log:     l,
		buffer:  DefaultClientBuffer,
		rooms:   make(map[string]map[*Client]struct{}),
		members: make(map[*Client]map[string]struct{}),
	}
}

// NewClient allocates a client that is in no room yet.
func (h *Hub) NewClient() *Client {
	return &Client{id: uuid.NewString(), ch: make(chan data.Notification, h.buffer)}
}

// Join adds c to the room of token.
func (h *Hub) Join(token string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[token]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[token] = room
	}
	room[c] = struct{}{}
	joined, ok := h.members[c]
	if !ok {
		joined = make(map[string]struct{})
		h.members[c] = joined
	}
	joined[token] = struct{}{}
}

// Leave removes c from every room it joined.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for token := range h.members[c] {
		room := h.rooms[token]
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, token)
		}
	}
	delete(h.members, c)
}

// Members returns how many clients are in the room of token.
func (h *Hub) Members(token string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[token])
}

// Publish delivers n to every client in the room of token without
// blocking. Clients whose queue is full miss the notification, except for
// terminal ones: those displace the oldest queued notification instead.
func (h *Hub) Publish(token string, n data.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	terminal := isTerminal(n.Signal)
	for c := range h.rooms[token] {
		if deliver(c, n) {
			continue
		}
		if terminal {
			evicted, ok := displace(c, n)
			if evicted > 0 {
				metrics.NotificationsDropped.Add(float64(evicted))
				h.log.Warn("notifications displaced", "token", token, "client", c.id, "count", evicted, "by", n.Signal)
			}
			if ok {
				continue
			}
		}
		metrics.NotificationsDropped.Inc()
		h.log.Warn("notification dropped", "token", token, "client", c.id, "signal", n.Signal)
	}
}

// Send delivers n to c alone. It reports false if c's queue is full.
func (h *Hub) Send(c *Client, n data.Notification) bool {
	if deliver(c, n) {
		return true
	}
	metrics.NotificationsDropped.Inc()
	return false
}

func deliver(c *Client, n data.Notification) bool {
	select {
	case c.ch <- n:
		return true
	default:
		return false
	}
}

// displace discards queued notifications until n fits. It gives up after
// one pass over the queue so a concurrent producer cannot keep it spinning.
func displace(c *Client, n data.Notification) (evicted int, ok bool) {
	for i := 0; i <= cap(c.ch); i++ {
		select {
		case <-c.ch:
			evicted++
		default:
		}
		if deliver(c, n) {
			return evicted, true
		}
	}
	return evicted, false
}

func isTerminal(signal string) bool {
	return signal == data.SignalFinished || signal == data.SignalDownloadError
}
