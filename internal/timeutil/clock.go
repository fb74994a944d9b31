// Package timeutil holds the frame clock used by the tracker and the pacing
// used when recorded frames are replayed at capture speed.
package timeutil

import (
	"context"
	"sync"
	"time"
)

// Clock supplies frame timestamps.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// MockClock is a manually driven clock. Tests step it between frames.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t, which may be earlier than the current time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and returns the new time.
func (c *MockClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// FromMillis converts a wire timestamp in Unix milliseconds to UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ToMillis is the inverse of FromMillis.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// Pacer spaces replayed frames by the gaps between their capture
// timestamps. The zero value is not usable; see NewPacer.
type Pacer struct {
	clock Clock
	sleep func(ctx context.Context, d time.Duration) error

	lastFrame time.Time
	lastWall  time.Time
}

// NewPacer returns a Pacer that measures elapsed time on clock. A nil
// clock uses the wall clock.
func NewPacer(clock Clock) *Pacer {
	if clock == nil {
		clock = RealClock{}
	}
	return &Pacer{clock: clock, sleep: sleepContext}
}

// Wait blocks until the wall time since the previous frame matches the
// capture gap to frame. Out-of-order or first frames return immediately.
// It returns ctx.Err() if ctx ends first.
func (p *Pacer) Wait(ctx context.Context, frame time.Time) error {
	if !p.lastFrame.IsZero() {
		gap := frame.Sub(p.lastFrame) - p.clock.Since(p.lastWall)
		if gap > 0 {
			if err := p.sleep(ctx, gap); err != nil {
				return err
			}
		}
	}
	p.lastFrame = frame
	p.lastWall = p.clock.Now()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
