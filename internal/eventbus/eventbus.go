// Package eventbus implements the Event Bus (spec.md §4.9): a
// single-producer, many-consumer fan-out of run progress with bounded
// per-subscriber queues, grounded on gomind's discovery watch-channel
// pattern (core/discovery.go's Watch) for the subscribe-then-stream
// shape, adapted to a drop-oldest bounded queue.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/llmwebagent/agent/internal/model"
)

// defaultQueueSize bounds each subscriber's channel (spec.md §4.9).
const defaultQueueSize = 64

// subscriber is one observer's bounded event queue plus its drop counter.
type subscriber struct {
	ch      chan model.Event
	dropped uint64
}

// Bus fans out Events to subscribers, dropping the oldest queued event
// (and incrementing that subscriber's drop counter) when a queue fills.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	sequence    uint64
	queueSize   int

	stateMu sync.Mutex
	state   model.Event
	hasState bool
}

// New builds an empty Bus. queueSize overrides the default per-
// subscriber queue depth when positive.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{subscribers: make(map[int]*subscriber), queueSize: queueSize}
}

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	id     int
	bus    *Bus
	Events <-chan model.Event
}

// Unsubscribe stops delivery to this subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subscribers, s.id)
	}
}

// Dropped reports how many events this subscription has lost to a full
// queue since it was created.
func (s *Subscription) Dropped() uint64 {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		return atomic.LoadUint64(&sub.dropped)
	}
	return 0
}

// Subscribe registers a new observer and immediately delivers the
// current aggregate state as its first event, if one has been recorded
// (spec.md §4.9: "a subscribe call delivers the current aggregate
// state as the first event").
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan model.Event, b.queueSize)}
	b.subscribers[id] = sub
	b.mu.Unlock()

	b.stateMu.Lock()
	state, ok := b.state, b.hasState
	b.stateMu.Unlock()
	if ok {
		deliver(sub, state)
	}

	return &Subscription{id: id, bus: b, Events: sub.ch}
}

// Publish assigns the next monotonic sequence number and fans the event
// out to every subscriber, non-blocking (spec.md §5: "event publish is
// non-blocking"). A state-kind event updates the aggregate snapshot
// returned to future subscribers.
func (b *Bus) Publish(kind model.EventKind, payload map[string]interface{}) model.Event {
	seq := atomic.AddUint64(&b.sequence, 1)
	evt := model.Event{Kind: kind, Sequence: seq, Payload: payload}

	if kind == model.EventState {
		b.stateMu.Lock()
		b.state = evt
		b.hasState = true
		b.stateMu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		deliver(sub, evt)
	}
	return evt
}

// deliver is a non-blocking send that drops the oldest queued event and
// retries once if the channel is full (spec.md §4.9).
func deliver(sub *subscriber, evt model.Event) {
	select {
	case sub.ch <- evt:
		return
	default:
	}

	select {
	case <-sub.ch:
		atomic.AddUint64(&sub.dropped, 1)
	default:
	}

	select {
	case sub.ch <- evt:
	default:
		atomic.AddUint64(&sub.dropped, 1)
	}
}

// Close unsubscribes and closes every outstanding subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
