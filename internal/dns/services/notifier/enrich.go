package notifier

import (
	"context"

	"github.com/haukened/blockwatch/internal/dns/common/log"
	"github.com/haukened/blockwatch/internal/dns/common/metrics"
	"github.com/haukened/blockwatch/internal/dns/domain"
)

// EnrichingSink adds content categories to each event before forwarding the
// batch. A failed lookup leaves that event's categories empty.
type EnrichingSink struct {
	enricher Enricher
	next     Sink
	logger   log.Logger
}

func NewEnrichingSink(e Enricher, next Sink, logger log.Logger) *EnrichingSink {
	return &EnrichingSink{enricher: e, next: next, logger: logger}
}

func (s *EnrichingSink) Name() string { return "enriched-" + s.next.Name() }

func (s *EnrichingSink) Notify(ctx context.Context, events []domain.BlockEvent) {
	if len(events) == 0 {
		return
	}
	enriched := make([]domain.BlockEvent, len(events))
	for i, ev := range events {
		enriched[i] = s.enrich(ctx, ev)
	}
	s.next.Notify(ctx, enriched)
}

func (s *EnrichingSink) enrich(ctx context.Context, ev domain.BlockEvent) (out domain.BlockEvent) {
	out = ev.WithCategories(nil)
	defer func() {
		if r := recover(); r != nil {
			metrics.IncEnrichmentFailure()
			s.logger.Error(map[string]any{"domain": ev.Domain, "panic": r}, "panic looking up domain categories")
			out = ev.WithCategories(nil)
		}
	}()
	cats, err := s.enricher.Categories(ctx, ev.Domain)
	if err != nil {
		metrics.IncEnrichmentFailure()
		s.logger.Error(map[string]any{"domain": ev.Domain, "error": err}, "error looking up domain categories")
		return out
	}
	return ev.WithCategories(cats)
}
