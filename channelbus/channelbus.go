// Package channelbus is the host-application side of the message-passing
// boundary between the chain module and whatever embeds it: a named-event
// publish/subscribe feed (chain.HostChannel) plus a named-action
// request/response dispatch table, modeled on the same
// register-a-handler-by-name idiom apiserver/server uses for its HTTP
// routes, but address-independent so it works equally over the inbound
// RPC listener or an in-process embedder.
package channelbus

import (
	"sync"

	"github.com/Leasehold/leasehold/chainerrors"
	"github.com/Leasehold/leasehold/eventbus"
)

// ActionHandler answers one named module action (e.g. "postTransaction"),
// taking and returning the already-decoded argument/result shapes the
// caller and Bus agree on out of band.
type ActionHandler func(args interface{}) (interface{}, error)

// Bus is the host-facing channel: Publish/Subscribe for fire-and-forget
// events, Handle/Call for request/response module actions.
type Bus struct {
	events *eventbus.Bus

	mu       sync.RWMutex
	handlers map[string]ActionHandler
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{
		events:   eventbus.New(),
		handlers: make(map[string]ActionHandler),
	}
}

// Publish emits event to every current subscriber. Satisfies
// chain.HostChannel.
func (b *Bus) Publish(event string, payload interface{}) {
	log.Debugf("publishing %s", event)
	b.events.Publish(event, payload)
}

// Subscribe registers handler on event and returns a function that
// removes it.
func (b *Bus) Subscribe(event string, handler func(payload interface{})) func() {
	return b.events.Subscribe(event, handler)
}

// Handle registers handler as the implementation of action, replacing any
// previous registration. The parameter is the ActionHandler func type
// spelled out rather than named, so that any caller satisfying
// chain.HostChannel's identical signature (without importing channelbus)
// can register against it.
func (b *Bus) Handle(action string, handler func(args interface{}) (interface{}, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[action] = handler
}

// Call invokes action's registered handler with args, returning a
// ConfigError if no handler is registered.
func (b *Bus) Call(action string, args interface{}) (interface{}, error) {
	b.mu.RLock()
	handler, ok := b.handlers[action]
	b.mu.RUnlock()
	if !ok {
		return nil, chainerrors.NewConfigError("no handler registered for action "+action, nil)
	}
	return handler(args)
}

// Actions lists every currently registered action name.
func (b *Bus) Actions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	return names
}
