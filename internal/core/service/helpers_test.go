package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/session"
	"github.com/forenvision/case-console/internal/infrastructure/storage"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice domain.Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []domain.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notice(nil), n.notices...)
}

// eventLog records bus events together with what the rest of the system
// looked like when each one arrived.
type eventLog struct {
	mu       sync.Mutex
	events   []domain.SessionEvent
	hadToken []bool
	notices  []int
}

type fixture struct {
	kv       *storage.MemoryStore
	store    *session.Store
	bus      *session.Bus
	guard    *session.LogoutGuard
	clock    *fakeClock
	notifier *recordingNotifier
	events   *eventLog
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFixture() *fixture {
	f := &fixture{
		kv:       storage.NewMemoryStore(),
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		notifier: &recordingNotifier{},
		events:   &eventLog{},
	}
	f.bus = session.NewBus("tab-test", nil, zerolog.Nop())
	f.store = session.NewStore(f.kv, f.bus, "", zerolog.Nop())
	f.guard = session.NewLogoutGuard(time.Second, session.WithGuardClock(f.clock.Now))
	f.bus.Subscribe(func(ctx context.Context, evt domain.SessionEvent) {
		_, ok := f.store.ReadToken(ctx)
		f.events.mu.Lock()
		f.events.events = append(f.events.events, evt)
		f.events.hadToken = append(f.events.hadToken, ok)
		f.events.notices = append(f.events.notices, len(f.notifier.all()))
		f.events.mu.Unlock()
	})
	return f
}

func (f *fixture) login(identity *domain.Identity) {
	if err := f.store.WriteSession(context.Background(), "tok-1", identity); err != nil {
		panic(err)
	}
}

// rawIdentity returns the stored identity object as the backend holds it.
func (f *fixture) rawIdentity() map[string]any {
	_, userKey := f.store.Keys()
	raw, _, _ := f.kv.Get(context.Background(), userKey)
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		panic(err)
	}
	return out
}

func (f *fixture) count(k domain.EventKind) int {
	n := 0
	for _, kind := range f.kinds() {
		if kind == k {
			n++
		}
	}
	return n
}

func (f *fixture) kinds() []domain.EventKind {
	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	out := make([]domain.EventKind, len(f.events.events))
	for i, e := range f.events.events {
		out[i] = e.Kind
	}
	return out
}

// lastOf returns the index of the last event of kind k, or -1.
func (f *fixture) lastOf(k domain.EventKind) int {
	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	for i := len(f.events.events) - 1; i >= 0; i-- {
		if f.events.events[i].Kind == k {
			return i
		}
	}
	return -1
}

func (f *fixture) gateway(baseURL string) *Gateway {
	return NewGateway(GatewayConfig{BaseURL: baseURL}, f.store, f.bus, f.guard, f.notifier, zerolog.Nop())
}

func (f *fixture) authService(baseURL string) *AuthService {
	cfg := GatewayConfig{BaseURL: baseURL}
	gw := NewGateway(cfg, f.store, f.bus, f.guard, f.notifier, zerolog.Nop())
	return NewAuthService(cfg, gw, f.store, f.bus, f.guard, zerolog.Nop())
}

func admin() *domain.Identity {
	return &domain.Identity{ID: 1, Email: "root@example.com", Role: domain.RoleAdmin}
}

func investigator() *domain.Identity {
	years := 4
	return &domain.Identity{
		ID:    2,
		Email: "inv@example.com",
		Role:  domain.RoleInvestigator,
		InvestigatorProfile: &domain.InvestigatorProfile{
			Specialization:    "digital forensics",
			YearsOfExperience: &years,
		},
	}
}
