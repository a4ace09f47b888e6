// Package ui holds the Notifier and Navigator adapters of the two front
// ends: the web console keeps notices on a board and remembers where it was
// sent; the terminal prints both.
package ui

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

const boardCapacity = 32

var (
	_ ports.Notifier = (*NoticeBoard)(nil)
	_ ports.Notifier = (*TerminalNotifier)(nil)
)

// NoticeBoard queues notices until the console front end drains them.
// Oldest notices are dropped once the board is full.
type NoticeBoard struct {
	log zerolog.Logger

	mu      sync.Mutex
	notices []domain.Notice
}

func NewNoticeBoard(log zerolog.Logger) *NoticeBoard {
	return &NoticeBoard{log: log}
}

func (b *NoticeBoard) Notify(_ context.Context, n domain.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.notices) == boardCapacity {
		b.notices = b.notices[1:]
	}
	b.notices = append(b.notices, n)
	b.log.Info().Str("kind", string(n.Kind)).Msg("notice posted")
}

// Drain returns and forgets every pending notice.
func (b *NoticeBoard) Drain() []domain.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	if out == nil {
		out = []domain.Notice{}
	}
	return out
}

// TerminalNotifier prints notices for CLI users.
type TerminalNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{out: out}
}

func (t *TerminalNotifier) Notify(_ context.Context, n domain.Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "! %s\n", n.Message)
}
