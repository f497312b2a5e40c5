package monitor

import (
	"context"

	"github.com/haukened/blockwatch/internal/dns/domain"
)

// Source is the query log the monitor reads.
// - MaxID returns ftl.ErrEmptyStore when the log has no rows
// - BlockedSince returns block events with id >= from, newest first
type Source interface {
	MaxID(ctx context.Context) (int64, error)
	BlockedSince(ctx context.Context, from int64) ([]domain.BlockEvent, error)
}

// Checker is implemented by sources that can verify their backing file.
type Checker interface {
	Check() error
}
