package session

import (
	"sync"
	"time"
)

// DefaultLogoutWindow bounds the lifetime of the logout-intent flag.
const DefaultLogoutWindow = time.Second

// LogoutGuard is the logout-intent flag. Begin arms it for a fixed window;
// it expires on its own once the window has passed, whatever happened in
// between.
type LogoutGuard struct {
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	until time.Time
}

// GuardOption customizes a LogoutGuard.
type GuardOption func(*LogoutGuard)

// WithGuardClock injects a custom clock (useful for tests).
func WithGuardClock(clock func() time.Time) GuardOption {
	return func(g *LogoutGuard) {
		if clock != nil {
			g.now = clock
		}
	}
}

func NewLogoutGuard(window time.Duration, opts ...GuardOption) *LogoutGuard {
	if window <= 0 {
		window = DefaultLogoutWindow
	}
	g := &LogoutGuard{window: window, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Begin arms the flag for one window starting now.
func (g *LogoutGuard) Begin() {
	g.mu.Lock()
	g.until = g.now().Add(g.window)
	g.mu.Unlock()
}

func (g *LogoutGuard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.until.IsZero() && g.now().Before(g.until)
}
