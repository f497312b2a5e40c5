package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haukened/blockwatch/internal/dns/common/clock"
	"github.com/haukened/blockwatch/internal/dns/common/log"
	"github.com/haukened/blockwatch/internal/dns/domain"
	"github.com/haukened/blockwatch/internal/dns/repos/ftl"
)

// DefaultInterval matches how often FTL flushes queries to disk.
const DefaultInterval = 60 * time.Second

// Poller runs one cursor-tracking poll of the query log.
type Poller struct {
	source   Source
	clock    clock.Clock
	interval time.Duration
	logger   log.Logger
	// waited reports whether the last PollOnce reached its interval wait.
	waited bool
}

func NewPoller(source Source, clk clock.Clock, interval time.Duration, logger log.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Poller{source: source, clock: clk, interval: interval, logger: logger}
}

// PollOnce records the current max id, sleeps one interval, then reads every
// block row with id >= watermark. It returns max(watermark, current) and the
// rows. On any error the input watermark is returned unchanged. A failed max
// id read still waits the interval before returning.
func (p *Poller) PollOnce(ctx context.Context, watermark int64) (int64, []domain.BlockEvent, error) {
	p.waited = false
	current, err := p.source.MaxID(ctx)
	switch {
	case errors.Is(err, ftl.ErrEmptyStore):
		current = watermark
	case err != nil:
		if werr := p.wait(ctx); werr != nil {
			return watermark, nil, werr
		}
		return watermark, nil, fmt.Errorf("read latest id: %w", err)
	}

	if err := p.wait(ctx); err != nil {
		return watermark, nil, err
	}

	events, err := p.source.BlockedSince(ctx, watermark)
	if err != nil {
		return watermark, nil, fmt.Errorf("read blocked rows since %d: %w", watermark, err)
	}

	if current < watermark {
		p.logger.Warn(map[string]any{"watermark": watermark, "latest_id": current}, "latest id below watermark, keeping watermark")
		current = watermark
	}
	return current, events, nil
}

// wait sleeps one interval on the poller's clock.
func (p *Poller) wait(ctx context.Context) error {
	p.waited = true
	return p.clock.Sleep(ctx, p.interval)
}
