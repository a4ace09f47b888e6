package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

var (
	_ ports.Navigator = (*ConsoleNavigator)(nil)
	_ ports.Navigator = (*TerminalNavigator)(nil)
)

// Location is where the console was last sent.
type Location struct {
	Target string    `json:"target"`
	At     time.Time `json:"at"`
}

// ConsoleNavigator records the target for the console front end, which
// follows it on its next poll of GET /session.
type ConsoleNavigator struct {
	log zerolog.Logger
	now func() time.Time

	mu   sync.RWMutex
	last Location
}

func NewConsoleNavigator(log zerolog.Logger) *ConsoleNavigator {
	return &ConsoleNavigator{log: log, now: time.Now}
}

func (n *ConsoleNavigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	n.last = Location{Target: target, At: n.now().UTC()}
	n.mu.Unlock()
	n.log.Debug().Str("target", target).Msg("navigate")
	return nil
}

func (n *ConsoleNavigator) Last() Location {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.last
}

// TerminalNavigator tells a CLI user how to get back in.
type TerminalNavigator struct {
	mu  sync.Mutex
	out io.Writer
}

func NewTerminalNavigator(out io.Writer) *TerminalNavigator {
	return &TerminalNavigator{out: out}
}

func (t *TerminalNavigator) Navigate(_ context.Context, target string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if target == domain.LoginPath {
		_, err := fmt.Fprintln(t.out, "Signed out. Run `forenvision login` to start a new session.")
		return err
	}
	_, err := fmt.Fprintf(t.out, "-> %s\n", target)
	return err
}
