package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

var _ ports.EventPublisher = (*Bus)(nil)

// Handler receives session events synchronously in the publishing goroutine.
type Handler func(ctx context.Context, evt domain.SessionEvent)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans session events out to in-process subscribers and, for local
// credential changes, to other instances through a SessionSync channel.
//
// In-process delivery is synchronous: every subscriber has returned before
// Publish returns. Cross-instance delivery is eventual.
type Bus struct {
	origin string
	sync   ports.SessionSync
	now    func() time.Time
	log    zerolog.Logger

	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
}

// NewBus creates a bus for the instance identified by origin; an empty
// origin gets a fresh id. syncer may be nil for a single-instance setup.
func NewBus(origin string, syncer ports.SessionSync, log zerolog.Logger) *Bus {
	if origin == "" {
		origin = uuid.NewString()
	}
	return &Bus{
		origin: origin,
		sync:   syncer,
		now:    time.Now,
		log:    log,
	}
}

// Origin identifies this instance on the sync channel.
func (b *Bus) Origin() string {
	return b.origin
}

// Subscribe registers h and returns a func that removes it. The returned
// func is safe to call more than once.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) Publish(ctx context.Context, evt domain.SessionEvent) {
	if evt.Origin == "" {
		evt.Origin = b.origin
	}
	if evt.At.IsZero() {
		evt.At = b.now()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(ctx, evt)
	}

	if evt.Kind != domain.EventSessionChanged || evt.Remote || b.sync == nil {
		return
	}
	if err := b.sync.Broadcast(ctx, domain.SyncMessage{Origin: b.origin, At: evt.At}); err != nil {
		b.log.Warn().Err(err).Msg("session sync broadcast failed")
	}
}

// Run relays changes made by other instances until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	relay, err := b.Listen(ctx)
	if err != nil {
		return err
	}
	relay()
	return nil
}

// Listen subscribes to the sync channel and returns the relay loop, which
// republishes other instances' changes until ctx is cancelled. Messages sent
// after Listen returns are never missed.
func (b *Bus) Listen(ctx context.Context) (func(), error) {
	if b.sync == nil {
		return func() { <-ctx.Done() }, nil
	}

	ch, err := b.sync.Listen(ctx)
	if err != nil {
		return nil, fmt.Errorf("session bus: listen: %w", err)
	}

	return func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Origin == b.origin {
					continue
				}
				b.log.Debug().Str("origin", msg.Origin).Msg("remote session change")
				b.Publish(ctx, domain.SessionEvent{
					Kind:   domain.EventSessionChanged,
					Origin: msg.Origin,
					Remote: true,
					At:     msg.At,
				})
			}
		}
	}, nil
}
