package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.SessionEvent) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type recordingNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (n *recordingNavigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	n.targets = append(n.targets, target)
	n.mu.Unlock()
	return nil
}

func (n *recordingNavigator) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.targets...)
}

type recordingSync struct {
	mu   sync.Mutex
	sent []domain.SyncMessage
}

func (s *recordingSync) Broadcast(_ context.Context, msg domain.SyncMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}

func (s *recordingSync) Listen(ctx context.Context) (<-chan domain.SyncMessage, error) {
	ch := make(chan domain.SyncMessage)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

var errBackendDown = errors.New("backend down")

// brokenKV fails every call.
type brokenKV struct{}

func (brokenKV) Get(context.Context, string) (string, bool, error) { return "", false, errBackendDown }
func (brokenKV) SetMany(context.Context, map[string]string) error  { return errBackendDown }
func (brokenKV) Delete(context.Context, ...string) error           { return errBackendDown }
func (brokenKV) Update(context.Context, []string, func(map[string]string) bool) error {
	return errBackendDown
}

// racingKV runs before once, right before the first Update reaches the
// backend: the write of another instance landing mid-merge.
type racingKV struct {
	ports.KeyValueStore
	once   sync.Once
	before func()
}

func (k *racingKV) Update(ctx context.Context, keys []string, edit func(map[string]string) bool) error {
	k.once.Do(k.before)
	return k.KeyValueStore.Update(ctx, keys, edit)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func admin() *domain.Identity {
	return &domain.Identity{ID: 1, Email: "root@example.com", Name: "Root", Role: domain.RoleAdmin}
}

func investigator() *domain.Identity {
	return &domain.Identity{ID: 2, Email: "inv@example.com", Role: domain.RoleInvestigator}
}
