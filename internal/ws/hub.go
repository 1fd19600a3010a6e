package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans presence events out to subscribers grouped by room ID.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples a payload with the room it belongs to.
type message struct {
	roomID  string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	roomID string
	client Subscriber
}

// NewHub creates an initialized Hub. buffer sizes the broadcast channel
// so publishers (the room webhook handler) ride out short fan-out bursts
// without blocking.
func NewHub(buffer int) *Hub {
	if buffer < 0 {
		buffer = 0
	}
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, buffer),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.roomID]; !ok {
				h.clients[sub.roomID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.roomID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.roomID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.roomID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.roomID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.roomID)
				}
			}
		}
	}
}

// Register adds a client to a room stream.
func (h *Hub) Register(roomID string, client Subscriber) {
	h.register <- subscription{roomID: roomID, client: client}
}

// Unregister removes a client from a room stream.
func (h *Hub) Unregister(roomID string, client Subscriber) {
	h.unreg <- subscription{roomID: roomID, client: client}
}

// Broadcast delivers a payload to every subscriber of the room.
func (h *Hub) Broadcast(roomID string, payload []byte) {
	h.broadcast <- message{roomID: roomID, payload: payload}
}
