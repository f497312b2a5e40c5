package domain

import (
	"fmt"
	"strings"
	"time"
)

// QueryStatus is the FTL status code stored with every query.
type QueryStatus int

// StatusBlockedUpstream marks a query that the upstream resolver answered with
// a blocking response (for example a 0.0.0.0 / NXDOMAIN sinkhole).
const StatusBlockedUpstream QueryStatus = 7

// UnknownCategory is shown in place of an empty category list.
const UnknownCategory = "unknown"

// String returns a short label for the status.
func (s QueryStatus) String() string {
	if s == StatusBlockedUpstream {
		return "blocked-upstream"
	}
	return fmt.Sprintf("QueryStatus(%d)", int(s))
}

// BlockEvent is one blocked DNS lookup read from the query log.
//
// ID is the log store's row id and is strictly increasing. Categories stays
// empty until enrichment succeeds.
type BlockEvent struct {
	ID         int64
	Timestamp  int64 // unix seconds
	Status     QueryStatus
	Domain     string
	Client     string
	Categories []string
}

// Time returns the query time in the local timezone.
func (e BlockEvent) Time() time.Time {
	return time.Unix(e.Timestamp, 0)
}

// IsBlockedUpstream reports whether the event matches the block predicate.
func (e BlockEvent) IsBlockedUpstream() bool { return e.Status == StatusBlockedUpstream }

// CategoryLabel joins the categories for display, or returns UnknownCategory.
func (e BlockEvent) CategoryLabel() string {
	if len(e.Categories) == 0 {
		return UnknownCategory
	}
	return strings.Join(e.Categories, ", ")
}

// WithCategories returns a copy of e carrying its own copy of cats.
func (e BlockEvent) WithCategories(cats []string) BlockEvent {
	e.Categories = append([]string(nil), cats...)
	return e
}

// MaxID returns the highest ID among events, or 0 when events is empty.
func MaxID(events []BlockEvent) int64 {
	var max int64
	for _, ev := range events {
		if ev.ID > max {
			max = ev.ID
		}
	}
	return max
}
