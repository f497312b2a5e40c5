package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/haukened/blockwatch/internal/dns/common/clock"
	"github.com/haukened/blockwatch/internal/dns/common/log"
	"github.com/haukened/blockwatch/internal/dns/common/metrics"
	"github.com/haukened/blockwatch/internal/dns/domain"
	"github.com/haukened/blockwatch/internal/dns/repos/ftl"
	"github.com/haukened/blockwatch/internal/dns/services/notifier"
)

// ErrConfig marks startup failures that retrying will not fix.
var ErrConfig = errors.New("monitor configuration error")

type Options struct {
	Source   Source
	Sink     notifier.Sink
	Clock    clock.Clock
	Interval time.Duration
	Logger   log.Logger
}

// Monitor polls the query log forever and hands new block events to a sink.
// Each tick runs inside a failure boundary; only configuration errors
// escape Run.
type Monitor struct {
	source    Source
	sink      notifier.Sink
	poller    *Poller
	logger    log.Logger
	watermark atomic.Int64
	// highest event id already handed to the sink
	highWater int64
}

func New(opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Monitor{
		source: opts.Source,
		sink:   opts.Sink,
		poller: NewPoller(opts.Source, opts.Clock, opts.Interval, logger),
		logger: logger,
	}
}

// Watermark returns the highest row id considered processed.
func (m *Monitor) Watermark() int64 { return m.watermark.Load() }

// Start checks preconditions and records the startup watermark.
func (m *Monitor) Start(ctx context.Context) error {
	if m.source == nil {
		return fmt.Errorf("%w: no query log source", ErrConfig)
	}
	if m.sink == nil {
		return fmt.Errorf("%w: no notification sink", ErrConfig)
	}
	if c, ok := m.source.(Checker); ok {
		if err := c.Check(); err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}
	wm, err := m.source.MaxID(ctx)
	switch {
	case errors.Is(err, ftl.ErrEmptyStore):
		wm = 0
	case err != nil:
		return fmt.Errorf("%w: read latest id: %w", ErrConfig, err)
	}
	m.watermark.Store(wm)
	m.highWater = wm
	metrics.SetWatermark(wm)
	m.logger.Info(map[string]any{"watermark": wm, "sink": m.sink.Name()}, "monitor started")
	return nil
}

// Run starts the monitor and ticks until ctx is cancelled. Cancellation is
// a clean shutdown and returns nil.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		metrics.IncTick(metrics.TickConfig)
		return err
	}
	for ctx.Err() == nil {
		m.Tick(ctx)
		// a tick that panicked before its wait still costs one interval
		if !m.poller.waited {
			_ = m.poller.wait(ctx)
		}
	}
	m.logger.Info(map[string]any{"watermark": m.Watermark()}, "monitor stopped")
	return nil
}

// Tick runs one poll and dispatch. Errors and panics are logged, never raised.
func (m *Monitor) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncTick(metrics.TickPanic)
			m.logger.Error(map[string]any{"panic": r, "stack": string(debug.Stack())}, "panic in monitor tick")
		}
	}()

	wm := m.watermark.Load()
	next, events, err := m.poller.PollOnce(ctx, wm)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.IncTick(metrics.TickError)
		m.logger.Error(map[string]any{"error": err, "watermark": wm}, "error in monitor loop")
		return
	}
	m.watermark.Store(next)
	metrics.SetWatermark(next)

	fresh := m.fresh(events)
	if len(fresh) > 0 {
		m.highWater = domain.MaxID(fresh)
		metrics.AddDispatched(len(fresh))
		m.logger.Debug(map[string]any{"events": len(fresh), "watermark": next}, "dispatching block events")
		m.sink.Notify(ctx, fresh)
	}
	metrics.IncTick(metrics.TickOK)
}

// fresh drops events that were already dispatched or do not match the block
// predicate, keeping the source order.
func (m *Monitor) fresh(events []domain.BlockEvent) []domain.BlockEvent {
	out := make([]domain.BlockEvent, 0, len(events))
	for _, ev := range events {
		if ev.ID <= m.highWater || !ev.IsBlockedUpstream() {
			continue
		}
		out = append(out, ev)
	}
	return out
}
