// Package publish fans a store change feed out to any number of
// subscribers. It backs the read-only `sentences` publication: one live
// query on the store side, N websocket clients on the other.
package publish

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/lgessler/ali/pkg/store"
)

// subscriberBuffer bounds how far a subscriber may fall behind before its
// events are dropped. The feed never blocks on a slow consumer.
const subscriberBuffer = 64

// Hub broadcasts store changes to subscribers. Safe for concurrent use.
type Hub struct {
	log zerolog.Logger

	mu   sync.RWMutex
	subs map[string]chan store.Change
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[string]chan store.Change),
	}
}

// Run consumes the change feed until it closes or ctx is done, broadcasting
// each change to every subscriber. On return all subscriber channels are
// closed.
func (h *Hub) Run(ctx context.Context, changes <-chan store.Change) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			h.broadcast(change)
		}
	}
}

// Subscribe registers a new subscriber and returns its id and event channel.
// The channel is closed when the hub shuts down or the subscriber is
// unsubscribed.
func (h *Hub) Subscribe() (string, <-chan store.Change) {
	id := ulid.Make().String()
	ch := make(chan store.Change, subscriberBuffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	h.log.Debug().Str("subscriber", id).Msg("publication subscribed")
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		close(ch)
		h.log.Debug().Str("subscriber", id).Msg("publication unsubscribed")
	}
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) broadcast(change store.Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- change:
		default:
			// Subscriber is not keeping up; drop rather than stall the feed.
			h.log.Warn().Str("subscriber", id).Str("action", string(change.Action)).Msg("dropping change for slow subscriber")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
