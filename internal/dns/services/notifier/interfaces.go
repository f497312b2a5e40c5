package notifier

import (
	"context"

	"github.com/haukened/blockwatch/internal/dns/domain"
)

// Sink receives batches of block events. Notify never returns an error;
// implementations log their own failures.
type Sink interface {
	Name() string
	Notify(ctx context.Context, events []domain.BlockEvent)
}

// Enricher looks up content categories for a domain.
type Enricher interface {
	Categories(ctx context.Context, name string) ([]string, error)
}

// Transport delivers one mail message.
type Transport interface {
	Send(ctx context.Context, recipients []string, sender, subject, body string) error
}

// Allowlist decides whether notifications for a domain are suppressed.
type Allowlist interface {
	Decide(name string) domain.AllowDecision
}
