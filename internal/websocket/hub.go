package websocket

import (
	"sync"

	"DuelRelay/internal/utils"
)

// HubInterface is what the matchmaker needs from the registry.
type HubInterface interface {
	BroadcastToPlayers(ids []string, msg OutgoingMessage)
	SendToPlayer(id string, msg OutgoingMessage) bool
	Connected(id string) bool
	Count() int
}

// Hub is the connection registry. Run is the only goroutine that registers,
// unregisters and dispatches incoming messages, so OnIncoming and
// OnDisconnect never run concurrently with each other.
type Hub struct {
	clients      map[string]*Client // id -> client
	register     chan *Client
	unregister   chan *Client
	incoming     chan IncomingMessage
	quit         chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
	OnIncoming   func(IncomingMessage)
	OnDisconnect func(id string)
	mu           sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan IncomingMessage),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	utils.Log.Info("hub started")
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			n := len(h.clients)
			h.mu.Unlock()
			utils.Log.Info("connected", "client", c.ID, "connections", n)

		case c := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[c.ID]
			if ok && current == c {
				delete(h.clients, c.ID)
				close(c.Send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			if !ok || current != c {
				continue
			}
			utils.Log.Info("disconnected", "client", c.ID, "connections", n)
			if h.OnDisconnect != nil {
				h.OnDisconnect(c.ID)
			}

		case msg := <-h.incoming:
			// the read pump may still deliver after its client was unregistered
			if !h.Connected(msg.From) {
				utils.Log.Debug("dropping message from disconnected client", "client", msg.From, "event", msg.Event)
				continue
			}
			if h.OnIncoming != nil {
				h.OnIncoming(msg)
			}

		case <-h.quit:
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			utils.Log.Info("hub stopped")
			return
		}
	}
}

// BroadcastToPlayers sends msg to every connected id in ids.
func (h *Hub) BroadcastToPlayers(ids []string, msg OutgoingMessage) {
	for _, id := range ids {
		h.SendToPlayer(id, msg)
	}
}

// SendToPlayer queues msg for one client without blocking. It reports false
// when the client is gone or its buffer is full; the message is dropped.
func (h *Hub) SendToPlayer(id string, msg OutgoingMessage) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[id]
	if !ok {
		return false
	}
	select {
	case client.Send <- msg:
		return true
	default:
		utils.Log.Warn("send buffer full, dropping message", "client", id, "event", msg.Event)
		return false
	}
}

func (h *Hub) Connected(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops Run and closes every client's Send channel. Safe to call twice.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) deliver(msg IncomingMessage) bool {
	select {
	case h.incoming <- msg:
		return true
	case <-h.quit:
		return false
	}
}
