package ports

import (
	"context"

	"github.com/forenvision/case-console/internal/core/domain"
)

// EventPublisher is the publishing half of the session bus.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.SessionEvent)
}

// Notifier shows a blocking notice to the user.
type Notifier interface {
	Notify(ctx context.Context, notice domain.Notice)
}

// Navigator moves the user to another entry point of the view tree.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// IntentGuard reports whether a self-initiated logout is in progress.
type IntentGuard interface {
	Active() bool
}
