package storage

import (
	"context"
	"testing"
	"time"

	"github.com/forenvision/case-console/internal/core/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	if err := m.SetMany(ctx, map[string]string{"token": "t", "user": "{}"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, err := m.Get(ctx, "token"); err != nil || !ok || v != "t" {
		t.Fatalf("get token: %q %v %v", v, ok, err)
	}
	if err := m.Delete(ctx, "token", "user", "missing"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "user"); ok {
		t.Fatalf("user must be gone")
	}
}

func TestHub_FansOutUntilCancelled(t *testing.T) {
	h := NewHub()
	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	ctxB, cancelB := context.WithCancel(context.Background())

	a, _ := h.Listen(ctxA)
	b, _ := h.Listen(ctxB)

	msg := domain.SyncMessage{Origin: "tab-1", At: time.Now()}
	if err := h.Broadcast(context.Background(), msg); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	for name, ch := range map[string]<-chan domain.SyncMessage{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.Origin != "tab-1" {
				t.Fatalf("%s: unexpected origin %q", name, got.Origin)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: no message", name)
		}
	}

	cancelB()
	select {
	case _, ok := <-b:
		if ok {
			t.Fatalf("b must be closed after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("b not closed")
	}

	_ = h.Broadcast(context.Background(), msg)
	select {
	case <-a:
	case <-time.After(time.Second):
		t.Fatalf("a must still receive")
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _ = h.Listen(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < hubBuffer*2; i++ {
			_ = h.Broadcast(context.Background(), domain.SyncMessage{Origin: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on a slow listener")
	}
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Put("token", "t")
	m.Put("user", "u")

	err := m.Update(ctx, []string{"token", "user", "extra"}, func(entries map[string]string) bool {
		if entries["token"] != "t" || entries["user"] != "u" {
			t.Errorf("unexpected snapshot: %v", entries)
		}
		if _, ok := entries["extra"]; ok {
			t.Errorf("missing keys must be absent from the snapshot")
		}
		delete(entries, "token")
		entries["user"] = "u2"
		return true
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "token"); ok {
		t.Fatalf("removed key must be deleted")
	}
	if v, _, _ := m.Get(ctx, "user"); v != "u2" {
		t.Fatalf("expected u2, got %q", v)
	}

	_ = m.Update(ctx, []string{"user"}, func(entries map[string]string) bool {
		entries["user"] = "ignored"
		return false
	})
	if v, _, _ := m.Get(ctx, "user"); v != "u2" {
		t.Fatalf("declined update must not write, got %q", v)
	}
}
