package progress

import (
	"sync"
	"time"
)

// Event is one step-progress notification for an upload pipeline.
type Event struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Terminal  bool      `json:"terminal,omitempty"`
}

// DoneStage is the terminal stage name published when a pipeline finishes,
// successfully or not.
const DoneStage = "done"

type topic struct {
	history  []Event
	subs     map[int]chan Event
	nextSub  int
	closed   bool
	closedAt time.Time
}

// Broker fans progress events out to subscribers keyed by a caller-supplied
// correlation id. Each topic keeps a short history so a client that connects
// after the pipeline started still sees earlier stages. Slow subscribers are
// never blocked on: events beyond the channel buffer are dropped.
type Broker struct {
	mu        sync.Mutex
	topics    map[string]*topic
	buffer    int
	maxHist   int
	retention time.Duration
}

// NewBroker builds a broker with the given per-subscriber buffer size.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{
		topics:    make(map[string]*topic),
		buffer:    buffer,
		maxHist:   64,
		retention: 5 * time.Minute,
	}
}

// Publish delivers an event to all subscribers of the correlation id.
func (b *Broker) Publish(correlationID string, event Event) {
	if correlationID == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.purgeLocked()

	t := b.topic(correlationID)
	if t.closed {
		return
	}
	if len(t.history) < b.maxHist {
		t.history = append(t.history, event)
	}
	for _, ch := range t.subs {
		select {
		case ch <- event:
		default:
		}
	}
	if event.Terminal {
		b.closeTopicLocked(t)
	}
}

// Done publishes the terminal event and tears the topic down.
func (b *Broker) Done(correlationID, message string) {
	b.Publish(correlationID, Event{Stage: DoneStage, Message: message, Terminal: true})
}

// Subscribe registers a listener for the correlation id. The returned cancel
// function must be called when the client disconnects. Historical events are
// replayed into the channel first; a closed channel signals the terminal
// event was already delivered.
func (b *Broker) Subscribe(correlationID string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.purgeLocked()
	t := b.topic(correlationID)
	for _, e := range t.history {
		select {
		case ch <- e:
		default:
		}
	}
	if t.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		t, ok := b.topics[correlationID]
		if !ok {
			return
		}
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
		// A topic that never saw a publish has nothing to replay; drop it
		// with its last subscriber so unknown correlation ids cannot pile up.
		if !t.closed && len(t.subs) == 0 && len(t.history) == 0 {
			delete(b.topics, correlationID)
		}
	}
	return ch, cancel
}

func (b *Broker) topic(correlationID string) *topic {
	t, ok := b.topics[correlationID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[correlationID] = t
	}
	return t
}

// closeTopicLocked closes all subscriber channels but keeps the topic and
// its history around for the retention window so that late subscribers are
// handed the replay plus a closed channel instead of waiting forever.
func (b *Broker) closeTopicLocked(t *topic) {
	t.closed = true
	t.closedAt = time.Now()
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}

func (b *Broker) purgeLocked() {
	cutoff := time.Now().Add(-b.retention)
	for id, t := range b.topics {
		if t.closed && t.closedAt.Before(cutoff) {
			delete(b.topics, id)
		}
	}
}
