// Package eventbus is the internal, topic-keyed publish/subscribe bus the
// chain components use to talk to each other without holding direct
// references to one another: Blocks and the transaction pool publish,
// Chain subscribes and re-broadcasts onto the host channel. Conceptually
// modeled on the subscribe/unsubscribe contract of an event feed, reworked
// around string topics instead of typed channels since every publisher
// here already carries its own topic constant.
package eventbus

import "sync"

type subscriber struct {
	id      uint64
	handler func(payload interface{})
}

// Bus is a concurrency-safe, synchronous topic bus. Publish calls every
// handler registered on topic, in registration order, on the calling
// goroutine; handlers that need to do slow work should hand off to their
// own goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string][]subscriber
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{topics: make(map[string][]subscriber)}
}

// Publish calls every handler subscribed to topic with payload.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	subs := b.topics[topic]
	// Copy before releasing the lock: a handler that subscribes or
	// unsubscribes during Publish must not race the slice we're ranging.
	handlers := make([]subscriber, len(subs))
	copy(handlers, subs)
	b.mu.RUnlock()

	for _, s := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("recovered panic in handler for topic %s: %v", topic, r)
				}
			}()
			s.handler(payload)
		}()
	}
}

// Subscribe registers handler on topic and returns a function that removes
// it. Calling the returned function more than once is a no-op.
func (b *Bus) Subscribe(topic string, handler func(payload interface{})) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.topics[topic]
			for i, s := range subs {
				if s.id == id {
					b.topics[topic] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}
