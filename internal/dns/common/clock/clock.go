package clock

import (
	"context"
	"sync"
	"time"
)

// Clock provides the current time and a cancellable wait, so that time-based
// loops can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type RealClock struct{}

func (c RealClock) Now() time.Time {
	return time.Now()
}

func (c RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MockClock is a manually driven Clock. Sleep never blocks: it advances
// CurrentTime by the requested duration and runs OnSleep, if set.
type MockClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
	Sleeps      []time.Duration
	// OnSleep runs after the clock advanced, while the caller is "asleep".
	OnSleep func(d time.Duration)
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CurrentTime
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.CurrentTime = c.CurrentTime.Add(d)
	c.mu.Unlock()
}

func (c *MockClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.CurrentTime = c.CurrentTime.Add(d)
	c.Sleeps = append(c.Sleeps, d)
	hook := c.OnSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}
