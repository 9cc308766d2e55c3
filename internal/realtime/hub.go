package realtime

import (
	"sync"
	"time"

	"github.com/tably/orderd/internal/apperr"
)

// Hub is the process-local registry of live connections and their topic
// subscriptions. Nothing here persists; a restart means a reconnect storm,
// which is acceptable.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Conn]struct{}
	conns  map[*Conn]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*Conn]struct{}),
		conns:  make(map[*Conn]map[string]struct{}),
	}
}

// Register admits a connection in its terminal state.
func (h *Hub) Register(state State, userID string) *Conn {
	c := newConn(state, userID)
	h.mu.Lock()
	h.conns[c] = make(map[string]struct{})
	h.mu.Unlock()
	return c
}

// Unregister removes the connection from every topic and closes its stream.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.conns[c]
	if !ok {
		return
	}
	for topic := range subs {
		delete(h.topics[topic], c)
		if len(h.topics[topic]) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(h.conns, c)
	close(c.send)
}

// Subscribe adds the connection to a topic. Public connections may only watch
// order- and table-level topics; restricted topics return Forbidden and the
// connection stays registered.
func (h *Hub) Subscribe(c *Conn, topic string) error {
	if _, err := SplitTopic(topic); err != nil {
		return apperr.Wrap(apperr.KindInvalidArgument, "bad topic", err)
	}
	if c.State != StateAuthenticated && RestrictedTopic(topic) {
		return apperr.Newf(apperr.KindForbidden, "topic %q requires authentication", topic)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.conns[c]
	if !ok {
		return apperr.New(apperr.KindNotFound, "connection closed")
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Conn]struct{})
	}
	h.topics[topic][c] = struct{}{}
	subs[topic] = struct{}{}
	return nil
}

func (h *Hub) Unsubscribe(c *Conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.conns[c]; ok {
		delete(subs, topic)
	}
	if set, ok := h.topics[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Publish pushes the event to every current subscriber of the topic. Pushes
// happen under the read lock, so one connection sees one topic's events in
// publish order.
func (h *Hub) Publish(topic string, ev Event) {
	ev.Topic = topic
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[topic] {
		c.push(ev)
	}
}

// SendError delivers an error event to one connection without touching its
// subscriptions.
func (h *Hub) SendError(c *Conn, topic, msg string) {
	h.mu.RLock()
	_, open := h.conns[c]
	h.mu.RUnlock()
	if !open {
		return
	}
	c.push(Event{Type: EventError, Topic: topic, Message: msg, Timestamp: time.Now().UTC()})
}

// Subscribers reports the current subscriber count of a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
