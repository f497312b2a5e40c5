package notifier

import (
	"context"

	"github.com/haukened/blockwatch/internal/dns/common/log"
	"github.com/haukened/blockwatch/internal/dns/domain"
)

// ConsoleSink logs one line per event.
type ConsoleSink struct {
	logger log.Logger
}

func NewConsoleSink(logger log.Logger) *ConsoleSink {
	return &ConsoleSink{logger: logger}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Notify(_ context.Context, events []domain.BlockEvent) {
	for _, ev := range events {
		s.logger.Info(map[string]any{
			"id":         ev.ID,
			"time":       ev.Time().Format(reportTime),
			"domain":     ev.Domain,
			"categories": ev.CategoryLabel(),
			"client":     ev.Client,
		}, "upstream block")
	}
}
