package allowlist

import "github.com/haukened/blockwatch/internal/dns/domain"

// Noop is the allowlist used when no entries are configured. It never allows.
type Noop struct{}

func (Noop) Decide(string) domain.AllowDecision { return domain.EmptyDecision() }

func (Noop) UpdateAll([]domain.AllowRule, uint64, int64) error { return nil }

func (Noop) Stats() RepoStats { return RepoStats{} }

func (Noop) Close() error { return nil }

var _ Repository = Noop{}
