package notifier

import (
	"context"
	"runtime/debug"
	"strings"

	"github.com/haukened/blockwatch/internal/dns/common/log"
	"github.com/haukened/blockwatch/internal/dns/domain"
)

// MultiSink fans a batch out to each sink in order. A panicking sink is
// logged and does not stop the others.
type MultiSink struct {
	sinks  []Sink
	logger log.Logger
}

func NewMultiSink(logger log.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger}
}

func (m *MultiSink) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m *MultiSink) Notify(ctx context.Context, events []domain.BlockEvent) {
	for _, s := range m.sinks {
		m.notifyOne(ctx, s, events)
	}
}

func (m *MultiSink) notifyOne(ctx context.Context, s Sink, events []domain.BlockEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(map[string]any{"sink": s.Name(), "panic": r, "stack": string(debug.Stack())}, "sink panicked")
		}
	}()
	s.Notify(ctx, events)
}
