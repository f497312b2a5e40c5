package notifier

import (
	"context"

	"github.com/haukened/blockwatch/internal/dns/common/log"
	"github.com/haukened/blockwatch/internal/dns/common/metrics"
	"github.com/haukened/blockwatch/internal/dns/domain"
)

// AllowlistSink drops events for allowlisted domains and forwards the rest.
type AllowlistSink struct {
	allow  Allowlist
	next   Sink
	logger log.Logger
}

func NewAllowlistSink(allow Allowlist, next Sink, logger log.Logger) *AllowlistSink {
	return &AllowlistSink{allow: allow, next: next, logger: logger}
}

func (s *AllowlistSink) Name() string { return s.next.Name() }

func (s *AllowlistSink) Notify(ctx context.Context, events []domain.BlockEvent) {
	kept := make([]domain.BlockEvent, 0, len(events))
	for _, ev := range events {
		d := s.allow.Decide(ev.Domain)
		if d.Allowed {
			metrics.IncSuppressed()
			s.logger.Debug(map[string]any{
				"id":     ev.ID,
				"domain": ev.Domain,
				"rule":   d.MatchedRule,
				"kind":   d.Kind.String(),
				"source": d.Source,
			}, "block suppressed by allowlist")
			continue
		}
		kept = append(kept, ev)
	}
	if len(kept) == 0 {
		return
	}
	s.next.Notify(ctx, kept)
}
