package ports

import (
	"context"

	"github.com/forenvision/case-console/internal/core/domain"
)

// KeyValueStore is the persisted medium behind the credential record.
// Multi-key writes and deletes must be atomic: readers never observe one
// key updated without the others.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, entries map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	// Update reads keys, lets edit change the snapshot and writes it back
	// in one step: no other writer, in this process or another, touches
	// keys in between. Keys missing from the map afterwards are deleted.
	// edit returning false leaves the store untouched. edit may run more
	// than once when a backend retries.
	Update(ctx context.Context, keys []string, edit func(entries map[string]string) bool) error
}

// CredentialStore owns the token + identity pair.
type CredentialStore interface {
	ReadToken(ctx context.Context) (string, bool)
	// ReadIdentity returns nil, nil when no identity is stored and
	// domain.ErrMalformedCredential when the stored record is unusable.
	ReadIdentity(ctx context.Context) (*domain.Identity, error)
	// CurrentIdentity purges a malformed record, or an identity stored
	// without a token, and reports it as absent.
	CurrentIdentity(ctx context.Context) *domain.Identity
	WriteSession(ctx context.Context, token string, identity *domain.Identity) error
	MergeIdentity(ctx context.Context, partial map[string]any) error
	// UpdateIdentity edits the raw stored identity object under the same
	// rules as MergeIdentity. edit may run more than once.
	UpdateIdentity(ctx context.Context, edit func(current map[string]any)) error
	ClearSession(ctx context.Context) error
}

// SessionSync carries change notifications between instances that share a
// KeyValueStore. Delivery is eventual.
type SessionSync interface {
	Broadcast(ctx context.Context, msg domain.SyncMessage) error
	Listen(ctx context.Context) (<-chan domain.SyncMessage, error)
}
