// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data any    `json:"data"`
}

// Stats are the running per-outcome verification counters carried by
// stats.updated events.
type Stats map[string]int

type outcomeReq struct {
	outcome string
	path    string
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, outcome counters, stats throttle timestamp). Public methods talk to
// this loop through channels, so no mutexes are required.
type Broker struct {
	statsMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	outcomeCh     chan outcomeReq
	countReqCh    chan chan int
	statsReqCh    chan chan Stats

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given stats throttle interval.
func NewBroker(statsThrottle time.Duration) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = 2 * time.Second
	}

	b := &Broker{
		statsMin:      statsThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		outcomeCh:     make(chan outcomeReq, 256),
		countReqCh:    make(chan chan int),
		statsReqCh:    make(chan chan Stats),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	counts := make(Stats)
	var lastStats time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	handleOutcome := func(req outcomeReq) {
		counts[req.outcome]++
		broadcast(Event{
			Type: "verify." + req.outcome,
			Data: map[string]string{"path": req.path, "outcome": req.outcome},
		})

		now := time.Now()
		if now.Sub(lastStats) >= b.statsMin {
			lastStats = now
			broadcast(Event{Type: "stats.updated", Data: counts})
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.outcomeCh:
			handleOutcome(req)

		case resp := <-b.countReqCh:
			resp <- len(clients)

		case resp := <-b.statsReqCh:
			// Outcomes queued before the request must be counted.
			for pending := true; pending; {
				select {
				case req := <-b.outcomeCh:
					handleOutcome(req)
				default:
					pending = false
				}
			}
			snapshot := make(Stats, len(counts))
			for k, v := range counts {
				snapshot[k] = v
			}
			resp <- snapshot
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Stats returns a snapshot of the per-outcome counters.
func (b *Broker) Stats() Stats {
	if b.closed.Load() {
		return Stats{}
	}

	resp := make(chan Stats, 1)
	select {
	case b.statsReqCh <- resp:
	case <-b.stopped:
		return Stats{}
	}

	select {
	case s := <-resp:
		return s
	case <-b.stopped:
		return Stats{}
	}
}

// PublishOutcome publishes a verify.<outcome> event for path and a
// throttled stats.updated event.
func (b *Broker) PublishOutcome(outcome, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.outcomeCh <- outcomeReq{outcome: outcome, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
