// Package sse streams library change events to browsers.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types emitted by the broker.
const (
	TypeStudyCreated  = "study.created"
	TypeTopicCreated  = "topic.created"
	TypeReloaded      = "library.reloaded"
	TypeTopicsUpdated = "topics.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ChangeData is the payload of change events.
type ChangeData struct {
	ID    string `json:"id,omitempty"`
	Topic string `json:"tema,omitempty"`
}

type changeReq struct {
	kind  string
	id    string
	topic string
}

type subscribeReq struct {
	ch    chan []byte
	after uint64
}

// frame is one encoded event with its stream id.
type frame struct {
	seq uint64
	raw []byte
}

// clientBuffer is the per-client queue length; history never exceeds it so
// a replay always fits.
const clientBuffer = 64

// Broker fans events out to connected SSE clients.
//
// A single event loop goroutine owns the client set, the recent-event
// history and the throttle timestamp; public methods talk to it over
// channels. Every event carries an increasing id so a reconnecting client
// can resume through Last-Event-ID.
type Broker struct {
	topicsMin   time.Duration
	keepAlive   time.Duration
	retry       time.Duration
	historySize int

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan changeReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithKeepAlive sets how often ServeHTTP writes a comment line to keep idle
// connections open. Zero disables keep-alives.
func WithKeepAlive(d time.Duration) BrokerOption {
	return func(b *Broker) { b.keepAlive = d }
}

// WithHistory sets how many recent events are kept for replay, capped at
// the client buffer size. Zero disables replay.
func WithHistory(n int) BrokerOption {
	return func(b *Broker) { b.historySize = min(max(n, 0), clientBuffer) }
}

// WithRetry sets the reconnection delay advertised to clients.
func WithRetry(d time.Duration) BrokerOption {
	return func(b *Broker) { b.retry = d }
}

// NewBroker creates a broker. topicsThrottle is the minimum interval between
// two topics.updated events.
func NewBroker(topicsThrottle time.Duration, opts ...BrokerOption) *Broker {
	if topicsThrottle <= 0 {
		topicsThrottle = 2 * time.Second
	}

	b := &Broker{
		topicsMin:     topicsThrottle,
		keepAlive:     30 * time.Second,
		retry:         3 * time.Second,
		historySize:   32,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan changeReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func encode(seq uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq        uint64
		history    []frame
		lastTopics time.Time
	)

	broadcast := func(event Event) {
		raw, err := encode(seq+1, event)
		if err != nil {
			return
		}
		seq++
		if b.historySize > 0 {
			history = append(history, frame{seq: seq, raw: raw})
			if len(history) > b.historySize {
				history = history[len(history)-b.historySize:]
			}
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}

	// replay sends what a client resuming after id missed. When the gap is
	// older than the history, or the id is from before a restart, it gets a
	// reload event instead.
	replay := func(ch chan []byte, after uint64) {
		if after == 0 || after == seq {
			return
		}
		if after > seq || len(history) == 0 || history[0].seq > after+1 {
			if raw, err := encode(seq, Event{Type: TypeReloaded, Data: struct{}{}}); err == nil {
				ch <- raw
			}
			return
		}
		for _, f := range history {
			if f.seq > after {
				ch <- f.raw
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			replay(req.ch, req.after)
			clients[req.ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.changeCh:
			switch req.kind {
			case TypeStudyCreated, TypeTopicCreated, TypeReloaded:
				broadcast(Event{Type: req.kind, Data: ChangeData{ID: req.id, Topic: req.topic}})
			default:
				continue
			}

			now := time.Now()
			if now.Sub(lastTopics) >= b.topicsMin {
				lastTopics = now
				broadcast(Event{Type: TypeTopicsUpdated, Data: struct{}{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. A non-zero after is
// the last event id the client saw; newer retained events are queued first.
func (b *Broker) Subscribe(after uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, after: after}:
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

// PublishChange broadcasts a library change followed by a throttled
// topics.updated event. Unknown kinds are ignored.
func (b *Broker) PublishChange(kind, id, topic string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- changeReq{kind: kind, id: id, topic: topic}:
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
	if b.retry > 0 {
		fmt.Fprintf(w, "retry: %d\n\n", b.retry.Milliseconds())
	}
	flusher.Flush()

	// A malformed header is treated as a fresh connection.
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
