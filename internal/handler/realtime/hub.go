package realtime

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
)

const sendBuffer = 32

// Watcher is implemented by *store.Store.
type Watcher interface {
	Watch(fn func(store.Event)) func()
	Emergency(id string) (*model.EmergencyRequest, bool)
}

type client struct {
	userID string
	send   chan []byte
}

// Hub fans store changes out to connected websocket clients. Emergency
// changes go to everyone, a donation reaches its donor and the emergency's
// creator, and a notification only reaches its owner.
type Hub struct {
	log     *logger.Logger
	watcher Watcher
	unwatch func()

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(w Watcher, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	h := &Hub{
		log:     log.Named("realtime"),
		watcher: w,
		clients: make(map[*client]struct{}),
	}
	h.unwatch = w.Watch(h.dispatch)
	return h
}

// Close stops watching and disconnects every client.
func (h *Hub) Close() {
	h.unwatch()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) register(userID string) *client {
	c := &client{userID: userID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients reports the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) dispatch(ev store.Event) {
	owners, ok := h.audience(ev)
	if !ok {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error(err, "failed to encode realtime event", "table", ev.Table)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if owners != nil && !slices.Contains(owners, c.userID) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Slow consumer; dropping it lets the client reconnect and refetch.
			delete(h.clients, c)
			close(c.send)
			h.log.Warn("dropping slow realtime client", "user_id", c.userID)
		}
	}
}

// audience returns the users allowed to see ev, nil for everyone, and false
// when ev is not pushed at all.
func (h *Hub) audience(ev store.Event) ([]string, bool) {
	switch ev.Table {
	case store.CollectionEmergencies:
		return nil, true
	case store.CollectionDonations:
		var d struct {
			DonorID     string `json:"donor_id"`
			EmergencyID string `json:"emergency_id"`
		}
		if err := json.Unmarshal(ev.Record, &d); err != nil || d.DonorID == "" {
			return nil, false
		}
		owners := []string{d.DonorID}
		if e, ok := h.watcher.Emergency(d.EmergencyID); ok && e.CreatedBy != "" {
			owners = append(owners, e.CreatedBy)
		}
		return owners, true
	case store.CollectionNotifications:
		var n struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(ev.Record, &n); err != nil || n.UserID == "" {
			return nil, false
		}
		return []string{n.UserID}, true
	}
	return nil, false
}
