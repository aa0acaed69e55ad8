package events

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultBuffer = 64

// Event is one progress notification. Topics look like "research:<reportID>".
type Event struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
	Time    time.Time   `json:"time"`
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// Broker fans events out to subscribers whose prefix matches the topic.
// Publishing never blocks: a subscriber with a full buffer misses the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	buffer int
	closed bool
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broker{subs: make(map[int]*subscriber), buffer: buffer}
}

// Subscribe returns a channel of events whose topic starts with prefix, and a
// function that removes the subscription and closes the channel.
func (b *Broker) Subscribe(prefix string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{prefix: prefix, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

func (b *Broker) Publish(topic string, payload interface{}) {
	event := Event{Topic: topic, Payload: payload, Time: time.Now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(topic, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			zap.S().Named("events").Debugw("dropping event for slow subscriber", "topic", topic)
		}
	}
}

// Close ends every subscription. Later subscriptions receive a closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	b.closed = true
}
