// Package eventbus fans runtime events out to any number of subscribers.
// Producers (the agent loop, the browser manager, the hand registry) never
// block on a slow consumer: each subscriber owns a growable queue and drains
// it into its own channel at its own pace.
package eventbus

import (
	"context"
	"sync"

	"github.com/openfang/openfang/internal/comms"
	"github.com/openfang/openfang/pkg/models"
)

// Envelope carries exactly one of an AgentEvent or a CommsEvent, mirroring
// the "one non-nil payload" convention AgentEvent itself uses for its
// per-type payload fields.
type Envelope struct {
	Agent *models.AgentEvent
	Comms *comms.CommsEvent
}

// Bus is a single-producer (in practice, several concurrent producers),
// multi-consumer fan-out point. Publish never blocks regardless of how
// slow any individual subscriber is.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int64]*subscriber
	nextID int64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int64]*subscriber)}
}

// Publish delivers an AgentEvent to every current subscriber.
func (b *Bus) Publish(e models.AgentEvent) {
	b.broadcast(Envelope{Agent: &e})
}

// PublishComms delivers a CommsEvent to every current subscriber.
func (b *Bus) PublishComms(e comms.CommsEvent) {
	b.broadcast(Envelope{Comms: &e})
}

func (b *Bus) broadcast(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.push(env)
	}
}

// Subscription is a live subscriber handle. C delivers envelopes in
// publish order; Close stops delivery and releases the subscriber's queue.
type Subscription struct {
	C     <-chan Envelope
	bus   *Bus
	id    int64
	close func()
}

// Close unsubscribes and stops the subscriber's drain goroutine.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.close()
}

// Subscribe registers a new subscriber with its own unbounded queue. The
// queue is bounded only by process memory: a subscriber that never drains
// its channel simply grows its backlog without affecting the producer or
// any other subscriber. ctx cancellation also stops the subscriber's drain
// goroutine; unlike Close, it leaves the subscriber registered, so events
// published afterward still accumulate in its queue.
func (b *Bus) Subscribe(ctx context.Context) *Subscription {
	s := newSubscriber(ctx)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	return &Subscription{
		C:     s.out,
		bus:   b,
		id:    id,
		close: s.stop,
	}
}

// SubscriberCount reports the number of currently registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
