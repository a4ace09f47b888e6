package session

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/infrastructure/storage"
)

func newTestStore() (*Store, *storage.MemoryStore, *recordingPublisher) {
	kv := storage.NewMemoryStore()
	pub := &recordingPublisher{}
	return NewStore(kv, pub, "", zerolog.Nop()), kv, pub
}

func TestStore_Keys(t *testing.T) {
	s := NewStore(storage.NewMemoryStore(), nil, "tenant", zerolog.Nop())
	token, user := s.Keys()
	if token != "tenant:token" || user != "tenant:user" {
		t.Fatalf("unexpected keys: %s %s", token, user)
	}

	s = NewStore(storage.NewMemoryStore(), nil, "", zerolog.Nop())
	if token, _ := s.Keys(); token != "forenvision:token" {
		t.Fatalf("expected default namespace, got %s", token)
	}
}

func TestStore_WriteSessionRoundTrip(t *testing.T) {
	s, _, pub := newTestStore()
	ctx := context.Background()

	if err := s.WriteSession(ctx, "tok", admin()); err != nil {
		t.Fatalf("write: %v", err)
	}

	token, ok := s.ReadToken(ctx)
	if !ok || token != "tok" {
		t.Fatalf("unexpected token: %q %v", token, ok)
	}
	ident, err := s.ReadIdentity(ctx)
	if err != nil || ident == nil || ident.ID != 1 || ident.Role != domain.RoleAdmin {
		t.Fatalf("unexpected identity: %+v %v", ident, err)
	}
	if pub.count() != 1 || pub.events[0].Kind != domain.EventSessionChanged {
		t.Fatalf("expected one session_changed event, got %+v", pub.events)
	}
}

func TestStore_WriteSessionRejectsPartialRecords(t *testing.T) {
	s, kv, pub := newTestStore()
	ctx := context.Background()

	if err := s.WriteSession(ctx, "", admin()); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := s.WriteSession(ctx, "tok", &domain.Identity{ID: 0, Role: domain.RoleAdmin}); !errors.Is(err, domain.ErrMalformedCredential) {
		t.Fatalf("expected ErrMalformedCredential, got %v", err)
	}
	if err := s.WriteSession(ctx, "tok", nil); !errors.Is(err, domain.ErrMalformedCredential) {
		t.Fatalf("expected ErrMalformedCredential for nil identity, got %v", err)
	}

	tokenKey, userKey := s.Keys()
	if _, ok, _ := kv.Get(ctx, tokenKey); ok {
		t.Fatalf("token must not be written")
	}
	if _, ok, _ := kv.Get(ctx, userKey); ok {
		t.Fatalf("identity must not be written")
	}
	if pub.count() != 0 {
		t.Fatalf("failed writes must not publish")
	}
}

func TestStore_MergeIdentityKeepsUnknownKeys(t *testing.T) {
	s, kv, pub := newTestStore()
	ctx := context.Background()
	tokenKey, userKey := s.Keys()
	kv.Put(tokenKey, "tok")
	kv.Put(userKey, `{"id":3,"role":"investigator","theme":"dark","name":"Old"}`)

	if err := s.MergeIdentity(ctx, map[string]any{"name": "New"}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	raw, _, _ := kv.Get(ctx, userKey)
	var got map[string]any
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("stored identity is not json: %v", err)
	}
	if got["name"] != "New" || got["theme"] != "dark" || got["role"] != "investigator" {
		t.Fatalf("unexpected merged identity: %v", got)
	}
	if token, _ := s.ReadToken(ctx); token != "tok" {
		t.Fatalf("merge must not touch the token")
	}
	if pub.count() != 1 {
		t.Fatalf("expected one event, got %d", pub.count())
	}
}

func TestStore_MergeIdentityWithoutSessionIsNoop(t *testing.T) {
	s, kv, pub := newTestStore()
	ctx := context.Background()

	if err := s.MergeIdentity(ctx, map[string]any{"name": "Ghost"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	_, userKey := s.Keys()
	if _, ok, _ := kv.Get(ctx, userKey); ok {
		t.Fatalf("merge must not create an identity")
	}
	if pub.count() != 0 {
		t.Fatalf("no-op merge must not publish")
	}
}

func TestStore_MergeIdentityWithoutTokenIsNoop(t *testing.T) {
	s, kv, pub := newTestStore()
	ctx := context.Background()
	_, userKey := s.Keys()
	kv.Put(userKey, `{"id":1,"role":"admin"}`)

	if err := s.MergeIdentity(ctx, map[string]any{"name": "Ghost"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if raw, _, _ := kv.Get(ctx, userKey); raw != `{"id":1,"role":"admin"}` {
		t.Fatalf("merge must not write without a token, got %s", raw)
	}
	if pub.count() != 0 {
		t.Fatalf("no-op merge must not publish")
	}
}

func TestStore_MergeIdentityLosesToConcurrentClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	tabA := NewStore(storage.NewFileStore(path, "tab-a"), nil, "", zerolog.Nop())
	if err := tabA.WriteSession(ctx, "tok", admin()); err != nil {
		t.Fatalf("write: %v", err)
	}

	kvB := &racingKV{KeyValueStore: storage.NewFileStore(path, "tab-b")}
	kvB.before = func() {
		if err := tabA.ClearSession(ctx); err != nil {
			t.Errorf("clear: %v", err)
		}
	}
	tabB := NewStore(kvB, nil, "", zerolog.Nop())

	if err := tabB.MergeIdentity(ctx, map[string]any{"name": "Renamed"}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	_, hasToken := tabB.ReadToken(ctx)
	ident, err := tabB.ReadIdentity(ctx)
	if hasToken || ident != nil || err != nil {
		t.Fatalf("record must stay fully cleared: token=%v identity=%+v err=%v", hasToken, ident, err)
	}
}

func TestStore_UpdateIdentityEditsRawObject(t *testing.T) {
	s, kv, _ := newTestStore()
	ctx := context.Background()
	tokenKey, userKey := s.Keys()
	kv.Put(tokenKey, "tok")
	kv.Put(userKey, `{"id":2,"role":"investigator","investigator_profile":{"specialization":"ballistics","badge":"B-7"}}`)

	err := s.UpdateIdentity(ctx, func(current map[string]any) {
		profile, _ := current["investigator_profile"].(map[string]any)
		profile["is_available"] = true
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	raw, _, _ := kv.Get(ctx, userKey)
	var got struct {
		Profile map[string]any `json:"investigator_profile"`
	}
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Profile["badge"] != "B-7" || got.Profile["is_available"] != true || got.Profile["specialization"] != "ballistics" {
		t.Fatalf("unexpected profile: %v", got.Profile)
	}
}

func TestStore_MergeIdentityRejectsInvalidResult(t *testing.T) {
	s, _, pub := newTestStore()
	ctx := context.Background()
	if err := s.WriteSession(ctx, "tok", admin()); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := s.MergeIdentity(ctx, map[string]any{"role": ""})
	if !errors.Is(err, domain.ErrMalformedCredential) {
		t.Fatalf("expected ErrMalformedCredential, got %v", err)
	}
	if ident := s.CurrentIdentity(ctx); ident == nil || ident.Role != domain.RoleAdmin {
		t.Fatalf("stored identity must be unchanged, got %+v", ident)
	}
	if pub.count() != 1 {
		t.Fatalf("rejected merge must not publish, got %d events", pub.count())
	}
}

func TestStore_CurrentIdentityPurgesMalformed(t *testing.T) {
	s, kv, pub := newTestStore()
	ctx := context.Background()
	tokenKey, userKey := s.Keys()
	kv.Put(tokenKey, "tok")
	kv.Put(userKey, "{not json")

	if ident := s.CurrentIdentity(ctx); ident != nil {
		t.Fatalf("expected nil identity, got %+v", ident)
	}
	if _, ok := s.ReadToken(ctx); ok {
		t.Fatalf("token must be purged with the malformed identity")
	}
	if pub.count() != 1 {
		t.Fatalf("purge must publish once, got %d", pub.count())
	}
}

func TestStore_CurrentIdentityPurgesIdentityWithoutToken(t *testing.T) {
	s, kv, pub := newTestStore()
	ctx := context.Background()
	_, userKey := s.Keys()
	kv.Put(userKey, `{"id":1,"role":"admin"}`)

	if ident := s.CurrentIdentity(ctx); ident != nil {
		t.Fatalf("identity without a token must read as absent, got %+v", ident)
	}
	if _, ok, _ := kv.Get(ctx, userKey); ok {
		t.Fatalf("half-set record must be purged")
	}
	if pub.count() != 1 {
		t.Fatalf("purge must publish once, got %d", pub.count())
	}
}

func TestStore_ClearSession(t *testing.T) {
	s, _, pub := newTestStore()
	ctx := context.Background()
	if err := s.WriteSession(ctx, "tok", admin()); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := s.ClearSession(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := s.ReadToken(ctx); ok {
		t.Fatalf("token still present")
	}
	if ident, err := s.ReadIdentity(ctx); ident != nil || err != nil {
		t.Fatalf("identity still present: %+v %v", ident, err)
	}
	if pub.count() != 2 {
		t.Fatalf("expected two events, got %d", pub.count())
	}
}

func TestStore_BackendErrorsReadAsAbsent(t *testing.T) {
	s := NewStore(brokenKV{}, nil, "", zerolog.Nop())
	ctx := context.Background()

	if _, ok := s.ReadToken(ctx); ok {
		t.Fatalf("expected no token")
	}
	if ident, err := s.ReadIdentity(ctx); ident != nil || err != nil {
		t.Fatalf("expected absent identity, got %+v %v", ident, err)
	}
	if err := s.WriteSession(ctx, "tok", admin()); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected backend error on write, got %v", err)
	}
}
