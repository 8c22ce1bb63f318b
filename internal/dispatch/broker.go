package dispatch

import (
	"sync"
)

// Topics published on the in-process broker.
const (
	TopicAlerts        = "alerts"
	TopicRemedyUpdates = "remedy_updates"
)

// Event is one broker message. Payload is whatever the topic's publisher
// emits; subscribers know their topic's shape.
type Event struct {
	Topic   string
	Payload interface{}
}

// Broker is a small in-process pub/sub hub used to stream pipeline events
// (new alerts, remedy updates) to live API consumers. Slow subscribers
// drop events rather than block the pipeline.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{})}
}

func (b *Broker) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan Event]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[topic]; ok {
			delete(set, ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Broker) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- Event{Topic: topic, Payload: payload}:
		default:
		}
	}
}
