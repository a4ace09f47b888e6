package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

var _ ports.SessionSync = (*SessionSync)(nil)

// SessionSync relays session changes between instances over a pub/sub
// channel. Pub/sub is fire-and-forget: an instance that is not subscribed
// at publish time catches up on its next derivation.
type SessionSync struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewSessionSync uses the channel "<namespace>:session".
func NewSessionSync(client *redis.Client, namespace string, log zerolog.Logger) *SessionSync {
	return &SessionSync{client: client, channel: namespace + ":session", log: log}
}

func (s *SessionSync) Broadcast(ctx context.Context, msg domain.SyncMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("session sync: encode: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("session sync: publish: %w", err)
	}
	return nil
}

func (s *SessionSync) Listen(ctx context.Context) (<-chan domain.SyncMessage, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	// Wait for the subscription confirmation so no message is lost after Listen returns.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("session sync: subscribe: %w", err)
	}

	out := make(chan domain.SyncMessage)
	go func() {
		defer close(out)
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg domain.SyncMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					s.log.Warn().Err(err).Str("channel", m.Channel).Msg("dropping malformed sync message")
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
