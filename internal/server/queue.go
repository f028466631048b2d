package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/quillchat/quill/internal/api"
)

// queueEvent is one entry in a per-queue event buffer, kept pre-encoded so
// handlers can splice batches together cheaply.
type queueEvent struct {
	id  int64
	raw json.RawMessage
}

// eventQueue buffers events for one registered client until it polls them.
type eventQueue struct {
	id          string
	owner       string
	events      []queueEvent
	wake        chan struct{}
	lastTouched time.Time
}

// queueHub owns every registered event queue and the global event id
// sequence. Ids are assigned under the hub lock, so each queue observes a
// strictly increasing sequence.
type queueHub struct {
	mu          sync.Mutex
	queues      map[string]*eventQueue
	nextEventID int64
	ttl         time.Duration
}

func newQueueHub(ttl time.Duration) *queueHub {
	return &queueHub{
		queues: make(map[string]*eventQueue),
		ttl:    ttl,
	}
}

// register creates a queue anchored at the current end of the event stream
// and returns it together with the last assigned event id.
func (h *queueHub) register(queueID, owner string) (lastEventID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.prune()
	h.queues[queueID] = &eventQueue{
		id:          queueID,
		owner:       owner,
		wake:        make(chan struct{}),
		lastTouched: time.Now(),
	}
	return h.nextEventID
}

// broadcastMessage appends a message event to every live queue.
func (h *queueHub) broadcastMessage(msg api.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.prune()
	for _, q := range h.queues {
		h.nextEventID++
		raw, _ := json.Marshal(api.MessageEvent{ID: h.nextEventID, Message: msg})
		raw = withType(raw, "message")
		q.push(queueEvent{id: h.nextEventID, raw: raw})
	}
}

// heartbeat appends a heartbeat event to one queue so an idle long poll has
// something to return.
func (h *queueHub) heartbeat(queueID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	q, ok := h.queues[queueID]
	if !ok {
		return
	}
	h.nextEventID++
	raw := json.RawMessage(fmt.Sprintf(`{"id":%d,"type":"heartbeat"}`, h.nextEventID))
	q.push(queueEvent{id: h.nextEventID, raw: raw})
}

// collect returns the buffered events newer than lastEventID together with
// the channel that is closed on the next push. ok is false for unknown or
// expired queues.
func (h *queueHub) collect(queueID string, lastEventID int64) (batch []json.RawMessage, wake <-chan struct{}, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.prune()
	q, found := h.queues[queueID]
	if !found {
		return nil, nil, false
	}
	q.lastTouched = time.Now()

	// Acknowledged events can be dropped; the client never asks for them again.
	drop := 0
	for drop < len(q.events) && q.events[drop].id <= lastEventID {
		drop++
	}
	q.events = q.events[drop:]

	for _, ev := range q.events {
		batch = append(batch, ev.raw)
	}
	return batch, q.wake, true
}

func (q *eventQueue) push(ev queueEvent) {
	q.events = append(q.events, ev)
	close(q.wake)
	q.wake = make(chan struct{})
}

// prune drops queues that have not been polled within the TTL. Callers hold
// the hub lock.
func (h *queueHub) prune() {
	cutoff := time.Now().Add(-h.ttl)
	for id, q := range h.queues {
		if q.lastTouched.Before(cutoff) {
			delete(h.queues, id)
		}
	}
}

// withType injects the type tag into a marshalled event object.
func withType(raw json.RawMessage, kind string) json.RawMessage {
	out := make([]byte, 0, len(raw)+len(kind)+12)
	out = append(out, '{')
	out = append(out, fmt.Sprintf(`"type":%q,`, kind)...)
	out = append(out, raw[1:]...)
	return out
}
