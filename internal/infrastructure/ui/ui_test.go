package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
)

func TestNoticeBoard_DrainEmpties(t *testing.T) {
	b := NewNoticeBoard(zerolog.Nop())
	if got := b.Drain(); got == nil || len(got) != 0 {
		t.Fatalf("empty board must drain to an empty slice, got %#v", got)
	}

	b.Notify(context.Background(), domain.NoticeFor(401, time.Now()))
	b.Notify(context.Background(), domain.NoticeFor(403, time.Now()))
	got := b.Drain()
	if len(got) != 2 || got[0].Kind != domain.NoticeSessionExpired || got[1].Kind != domain.NoticeSessionOutdated {
		t.Fatalf("unexpected notices: %+v", got)
	}
	if len(b.Drain()) != 0 {
		t.Fatalf("drain must forget notices")
	}
}

func TestNoticeBoard_DropsOldest(t *testing.T) {
	b := NewNoticeBoard(zerolog.Nop())
	for i := 0; i < boardCapacity+3; i++ {
		b.Notify(context.Background(), domain.Notice{Kind: domain.NoticeSessionExpired, Message: string(rune('a' + i%26))})
	}
	got := b.Drain()
	if len(got) != boardCapacity {
		t.Fatalf("expected %d notices, got %d", boardCapacity, len(got))
	}
	if got[0].Message != "d" {
		t.Fatalf("oldest notices must go first, head is %q", got[0].Message)
	}
}

func TestConsoleNavigator_RemembersLastTarget(t *testing.T) {
	n := NewConsoleNavigator(zerolog.Nop())
	if n.Last().Target != "" {
		t.Fatalf("expected no location yet")
	}
	_ = n.Navigate(context.Background(), domain.AdminHomePath)
	_ = n.Navigate(context.Background(), domain.LoginPath)
	if got := n.Last(); got.Target != domain.LoginPath || got.At.IsZero() {
		t.Fatalf("unexpected location: %+v", got)
	}
}

func TestTerminalAdapters(t *testing.T) {
	var buf bytes.Buffer
	NewTerminalNotifier(&buf).Notify(context.Background(), domain.NoticeFor(401, time.Now()))
	nav := NewTerminalNavigator(&buf)
	_ = nav.Navigate(context.Background(), domain.LoginPath)
	_ = nav.Navigate(context.Background(), domain.InvestigatorHomePath)

	out := buf.String()
	for _, want := range []string{"! Your session has expired", "forenvision login", "-> /investigator/dashboard"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q lacks %q", out, want)
		}
	}
}
