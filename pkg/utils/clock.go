// Package utils provides logging, timing and clock helpers shared by the
// filter pipeline and the CLI.
package utils

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads so session timestamps can be tested.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since the given time.
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// NewRealClock creates a new RealClock instance.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now returns the current time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the duration since the given time.
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a manually advanced Clock for tests.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
	step        time.Duration
}

// NewMockClock creates a MockClock starting at startTime.
func NewMockClock(startTime time.Time) *MockClock {
	return &MockClock{currentTime: startTime}
}

// NewSteppingMockClock creates a MockClock that advances by step after every
// call to Now.
func NewSteppingMockClock(startTime time.Time, step time.Duration) *MockClock {
	return &MockClock{currentTime: startTime, step: step}
}

// Now returns the mock current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.currentTime
	c.currentTime = c.currentTime.Add(c.step)
	return now
}

// Since returns the duration since the given time using mock time.
func (c *MockClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime.Sub(t)
}

// Advance advances the mock clock by the given duration.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = c.currentTime.Add(d)
}

// Set sets the mock clock to the given time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}
