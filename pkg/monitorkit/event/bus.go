package event

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// BusConfig configures bus behavior.
type BusConfig struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 64.
	BufferSize int

	// OnDrop is called when a subscriber's buffer is full and an
	// event is dropped for it.
	OnDrop func(evt Event, subscriberID string)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	BufferSize: 64,
}

// Bus is an in-memory fan-out event bus.
//
// Publish never blocks: the core calls it while holding internal
// bookkeeping locks, so a stalled subscriber must not be able to stall a
// monitor operation.
type Bus struct {
	config BusConfig

	mu            sync.RWMutex
	subscriptions map[string]*Subscription

	nextID atomic.Int64
	closed atomic.Bool
}

// NewBus creates a bus with the given configuration.
func NewBus(config BusConfig) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}
	return &Bus{
		config:        config,
		subscriptions: make(map[string]*Subscription),
	}
}

// Subscription is an active subscription. Events arrive on C until
// Unsubscribe is called, at which point C is closed.
type Subscription struct {
	// C delivers events. Receive from it in a dedicated goroutine.
	C <-chan Event

	id    string
	types map[string]struct{} // nil = all types
	ch    chan Event
	bus   *Bus
	once  sync.Once
}

// Subscribe creates a subscription for the given event types.
// With no types, the subscription receives every event.
func (b *Bus) Subscribe(types ...string) *Subscription {
	if b.closed.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.config.BufferSize)
	sub := &Subscription{
		C:   ch,
		id:  "sub-" + strconv.FormatInt(b.nextID.Add(1), 10),
		ch:  ch,
		bus: b,
	}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.subscriptions[sub.id] = sub
	return sub
}

// Publish delivers an event to all matching subscribers.
// Full subscriber buffers drop the event rather than block.
func (b *Bus) Publish(evt Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscriptions {
		if sub.types != nil {
			if _, ok := sub.types[evt.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- evt:
		default:
			if b.config.OnDrop != nil {
				b.config.OnDrop(evt, sub.id)
			}
		}
	}
}

// Close shuts down the bus and closes every subscription channel.
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscriptions {
		close(sub.ch)
		delete(b.subscriptions, id)
	}
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subscriptions[s.id]; ok {
			delete(s.bus.subscriptions, s.id)
			close(s.ch)
		}
	})
}
