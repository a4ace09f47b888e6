package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

// TransitionFunc observes a change of SessionState.
type TransitionFunc func(ctx context.Context, t domain.SessionTransition)

// Decision is the outcome of gating a protected route on the session status.
type Decision struct {
	Allowed bool
	// Pending is set while the first derivation has not completed.
	Pending  bool
	Redirect string
}

// Machine derives the session status from the credential store each time the
// bus fires. It never transitions on a timer.
type Machine struct {
	store     ports.CredentialStore
	bus       *Bus
	navigator ports.Navigator
	now       func() time.Time
	log       zerolog.Logger

	// deriveMu makes read-then-set atomic so a slow derivation never
	// overwrites a newer one.
	deriveMu sync.Mutex

	mu        sync.RWMutex
	status    domain.SessionStatus
	observers []TransitionFunc
}

// MachineOption customizes a Machine.
type MachineOption func(*Machine)

// WithMachineClock injects a custom clock (useful for tests).
func WithMachineClock(clock func() time.Time) MachineOption {
	return func(m *Machine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewMachine returns a machine in StateLoading. Call Start to subscribe it.
func NewMachine(store ports.CredentialStore, bus *Bus, navigator ports.Navigator, log zerolog.Logger, opts ...MachineOption) *Machine {
	m := &Machine{
		store:     store,
		bus:       bus,
		navigator: navigator,
		now:       time.Now,
		log:       log,
		status:    domain.SessionStatus{State: domain.StateLoading},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnTransition registers fn for every future state change. Register
// observers before Start.
func (m *Machine) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Start subscribes to the bus and runs the first derivation. The returned
// func unsubscribes.
func (m *Machine) Start(ctx context.Context) func() {
	unsubscribe := m.bus.Subscribe(m.handle)
	m.Derive(ctx)
	return unsubscribe
}

// Status returns a snapshot; the identity is a private copy.
func (m *Machine) Status() domain.SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.SessionStatus{State: m.status.State, Identity: m.status.Identity.Clone()}
}

func (m *Machine) handle(ctx context.Context, evt domain.SessionEvent) {
	switch evt.Kind {
	case domain.EventSessionChanged:
		before := m.Status()
		after := m.Derive(ctx)
		// Another instance ended the session: unmount the protected tree here too.
		if evt.Remote && before.Authenticated() && !after.Authenticated() {
			m.navigate(ctx, domain.LoginPath)
		}
	case domain.EventAuthRejected, domain.EventLogoutRequested:
		m.navigate(ctx, domain.LoginPath)
	}
}

// Derive recomputes the status from the store. A malformed or partial
// credential record is purged and yields StateAnonymous.
func (m *Machine) Derive(ctx context.Context) domain.SessionStatus {
	m.deriveMu.Lock()
	_, hasToken := m.store.ReadToken(ctx)
	ident, err := m.store.ReadIdentity(ctx)

	next := domain.SessionStatus{State: domain.StateAnonymous}
	purge := false
	switch {
	case err != nil:
		m.log.Warn().Err(err).Msg("stored identity unusable, treating session as anonymous")
		purge = true
	case hasToken && ident != nil:
		next = domain.SessionStatus{State: domain.StateAuthenticated, Identity: ident}
	case hasToken || ident != nil:
		m.log.Warn().Bool("token", hasToken).Bool("identity", ident != nil).Msg("partial credential record, clearing")
		purge = true
	}
	prev, observers := m.set(next)
	m.deriveMu.Unlock()

	if prev.State != next.State {
		m.notify(ctx, prev, next, observers)
	}

	// ClearSession publishes, which re-enters Derive; deriveMu must be free.
	if purge {
		if clearErr := m.store.ClearSession(ctx); clearErr != nil {
			m.log.Error().Err(clearErr).Msg("purge credential record")
		}
	}
	return next
}

func (m *Machine) set(next domain.SessionStatus) (domain.SessionStatus, []TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.status
	m.status = next
	observers := make([]TransitionFunc, len(m.observers))
	copy(observers, m.observers)
	return prev, observers
}

func (m *Machine) notify(ctx context.Context, prev, next domain.SessionStatus, observers []TransitionFunc) {
	t := domain.SessionTransition{
		From:   prev.State,
		To:     next.State,
		Origin: m.bus.Origin(),
		At:     m.now().UTC(),
	}
	// The identity of interest is the one entering or leaving the session.
	if ident := next.Identity; ident != nil {
		t.IdentityID, t.Role = ident.ID, ident.Role
	} else if ident := prev.Identity; ident != nil {
		t.IdentityID, t.Role = ident.ID, ident.Role
	}

	m.log.Info().
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Int64("user_id", t.IdentityID).
		Msg("session state changed")

	for _, fn := range observers {
		fn(ctx, t)
	}
}

func (m *Machine) navigate(ctx context.Context, target string) {
	if m.navigator == nil {
		return
	}
	if err := m.navigator.Navigate(ctx, target); err != nil {
		m.log.Warn().Err(err).Str("target", target).Msg("navigation failed")
	}
}

// Authorize gates a protected route. With no roles any authenticated user
// is allowed; a role mismatch redirects to the user's own home, never to
// the login page.
func (m *Machine) Authorize(roles ...domain.Role) Decision {
	st := m.Status()
	switch st.State {
	case domain.StateLoading:
		return Decision{Pending: true}
	case domain.StateAnonymous:
		return Decision{Redirect: domain.LoginPath}
	}
	if len(roles) == 0 || st.Identity.HasRole(roles...) {
		return Decision{Allowed: true}
	}
	return Decision{Redirect: st.Identity.Role.Home()}
}
