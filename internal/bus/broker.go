package bus

import (
	"sync"
	"time"
)

// Broker fans published messages out to in-process subscribers (e.g. SSE).
// It keeps the most recent message per topic so new subscribers get an
// immediate sample. Slow subscribers lose messages; Publish never blocks.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]subscription
	nextID int
	last   map[string]Message

	published uint64
	dropped   uint64

	now func() time.Time
}

type subscription struct {
	topic string
	ch    chan Message
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[int]subscription),
		last: make(map[string]Message),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers a listener for topic ("" for every topic).
func (b *Broker) Subscribe(topic string, buffer int) (int, <-chan Message) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Message, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{topic: topic, ch: ch}
	var replay []Message
	if topic == "" {
		for _, m := range b.last {
			replay = append(replay, m)
		}
	} else if m, ok := b.last[topic]; ok {
		replay = append(replay, m)
	}
	b.mu.Unlock()
	for _, m := range replay {
		select {
		case ch <- m:
		default:
		}
	}
	return id, ch
}

func (b *Broker) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

func (b *Broker) Publish(topic string, msg any) error {
	if b == nil {
		return nil
	}
	m := Message{Topic: topic, Stamp: b.now(), Msg: msg}

	b.mu.Lock()
	b.last[topic] = m
	b.published++
	for _, sub := range b.subs {
		if sub.topic != "" && sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- m:
		default:
			b.dropped++
		}
	}
	b.mu.Unlock()
	return nil
}

// Last returns the most recent message on topic.
func (b *Broker) Last(topic string) (Message, bool) {
	if b == nil {
		return Message{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.last[topic]
	return m, ok
}

// Stats returns how many messages were published and how many subscriber
// deliveries were dropped.
func (b *Broker) Stats() (published, dropped uint64) {
	if b == nil {
		return 0, 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published, b.dropped
}
