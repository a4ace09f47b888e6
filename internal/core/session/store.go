// Package session holds the client-side session coordinator: the credential
// store, the session event bus, the logout race guard and the state machine
// that derives the tri-state session status.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

const (
	DefaultNamespace = "forenvision"

	tokenSuffix = "token"
	userSuffix  = "user"
)

var _ ports.CredentialStore = (*Store)(nil)

// Store keeps the token and identity together in a KeyValueStore and
// announces every mutation on the session bus.
type Store struct {
	kv       ports.KeyValueStore
	events   ports.EventPublisher
	tokenKey string
	userKey  string
	now      func() time.Time
	log      zerolog.Logger

	// mu serializes read-modify-write cycles; publishing happens after unlock.
	mu sync.Mutex
}

// NewStore builds a Store whose keys are "<namespace>:token" and "<namespace>:user".
func NewStore(kv ports.KeyValueStore, events ports.EventPublisher, namespace string, log zerolog.Logger) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{
		kv:       kv,
		events:   events,
		tokenKey: namespace + ":" + tokenSuffix,
		userKey:  namespace + ":" + userSuffix,
		now:      time.Now,
		log:      log,
	}
}

// Keys returns the token and identity keys, in that order.
func (s *Store) Keys() (string, string) {
	return s.tokenKey, s.userKey
}

func (s *Store) ReadToken(ctx context.Context) (string, bool) {
	token, ok, err := s.kv.Get(ctx, s.tokenKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("read token failed, treating session as absent")
		return "", false
	}
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func (s *Store) ReadIdentity(ctx context.Context) (*domain.Identity, error) {
	raw, ok, err := s.kv.Get(ctx, s.userKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("read identity failed, treating session as absent")
		return nil, nil
	}
	if !ok || raw == "" {
		return nil, nil
	}
	return domain.ParseIdentity([]byte(raw))
}

// CurrentIdentity is the read API for collaborators. A malformed identity,
// or one stored without a token, is purged and reported as absent.
func (s *Store) CurrentIdentity(ctx context.Context) *domain.Identity {
	ident, err := s.ReadIdentity(ctx)
	if err != nil {
		s.purge(ctx, "purging malformed identity", err)
		return nil
	}
	if ident == nil {
		return nil
	}

	token, ok, err := s.kv.Get(ctx, s.tokenKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("read token failed, treating session as absent")
		return nil
	}
	if !ok || token == "" {
		s.purge(ctx, "purging identity stored without a token", nil)
		return nil
	}
	return ident
}

func (s *Store) purge(ctx context.Context, msg string, cause error) {
	s.log.Warn().Err(cause).Msg(msg)
	if err := s.ClearSession(ctx); err != nil {
		s.log.Error().Err(err).Msg("purge credential record")
	}
}

// WriteSession replaces the credential record. Both fields are required.
func (s *Store) WriteSession(ctx context.Context, token string, identity *domain.Identity) error {
	if token == "" {
		return fmt.Errorf("write session: %w: empty token", domain.ErrNoSession)
	}
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	raw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("write session: encode identity: %w", err)
	}

	s.mu.Lock()
	err = s.kv.SetMany(ctx, map[string]string{
		s.tokenKey: token,
		s.userKey:  string(raw),
	})
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	s.log.Debug().Int64("user_id", identity.ID).Str("role", string(identity.Role)).Msg("session written")
	s.publish(ctx)
	return nil
}

// MergeIdentity shallow-merges partial over the stored identity object.
// Keys the client does not model survive the merge. Without a token and a
// usable stored identity the call is a no-op.
func (s *Store) MergeIdentity(ctx context.Context, partial map[string]any) error {
	return s.UpdateIdentity(ctx, func(current map[string]any) {
		for k, v := range partial {
			current[k] = v
		}
	})
}

// UpdateIdentity hands the raw stored identity object to edit and writes
// the result back. The read, the token check and the write are one backend
// step, so a concurrent ClearSession from another instance either happens
// first (nothing is written) or wins afterwards.
func (s *Store) UpdateIdentity(ctx context.Context, edit func(current map[string]any)) error {
	s.mu.Lock()
	merged, err := s.updateLocked(ctx, edit)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !merged {
		return nil
	}

	s.log.Debug().Msg("identity merged")
	s.publish(ctx)
	return nil
}

func (s *Store) updateLocked(ctx context.Context, edit func(current map[string]any)) (bool, error) {
	var (
		merged  bool
		editErr error
	)
	err := s.kv.Update(ctx, []string{s.tokenKey, s.userKey}, func(entries map[string]string) bool {
		merged, editErr = false, nil
		if entries[s.tokenKey] == "" {
			return false
		}
		raw := entries[s.userKey]
		if raw == "" {
			return false
		}

		var current map[string]any
		if err := json.Unmarshal([]byte(raw), &current); err != nil || current == nil {
			s.log.Warn().Msg("stored identity is not an object, merge skipped")
			return false
		}
		edit(current)

		out, err := json.Marshal(current)
		if err != nil {
			editErr = fmt.Errorf("merge identity: encode: %w", err)
			return false
		}
		if _, err := domain.ParseIdentity(out); err != nil {
			editErr = fmt.Errorf("merge identity: %w", err)
			return false
		}
		entries[s.userKey] = string(out)
		merged = true
		return true
	})
	if err != nil {
		return false, fmt.Errorf("merge identity: %w", err)
	}
	if editErr != nil {
		return false, editErr
	}
	return merged, nil
}

func (s *Store) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	err := s.kv.Delete(ctx, s.tokenKey, s.userKey)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	s.log.Debug().Msg("session cleared")
	s.publish(ctx)
	return nil
}

func (s *Store) publish(ctx context.Context) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, domain.SessionEvent{
		Kind: domain.EventSessionChanged,
		At:   s.now(),
	})
}
