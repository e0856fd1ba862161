package utils

import (
	"sync"
	"time"
)

// Phase is one timed step of a run.
type Phase struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	done     bool
}

// PhaseTimer is returned by Timer.Start and is usually stopped with defer.
type PhaseTimer struct {
	timer *Timer
	name  string
}

// Stop records the phase duration. Only the first call has effect.
func (pt *PhaseTimer) Stop() time.Duration {
	return pt.timer.stop(pt.name)
}

// Timer records flat, ordered phases of a filter run (load, analyze, ...).
type Timer struct {
	mu     sync.Mutex
	name   string
	clock  Clock
	start  time.Time
	phases []*Phase
	index  map[string]int
}

// TimerOption configures a Timer instance.
type TimerOption func(*Timer)

// WithClock sets a custom clock for testability.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) {
		t.clock = clock
	}
}

// NewTimer creates a new Timer with the given name and options.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{
		name:  name,
		clock: NewRealClock(),
		index: make(map[string]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.clock.Now()
	return t
}

// Start begins timing a phase. Restarting a finished phase name starts a
// new entry under the same name.
func (t *Timer) Start(name string) *PhaseTimer {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.index[name] = len(t.phases)
	t.phases = append(t.phases, &Phase{Name: name, Start: t.clock.Now()})
	return &PhaseTimer{timer: t, name: name}
}

func (t *Timer) stop(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[name]
	if !ok {
		return 0
	}
	p := t.phases[i]
	if !p.done {
		p.Duration = t.clock.Since(p.Start)
		p.done = true
	}
	return p.Duration
}

// Duration returns the recorded duration of the latest phase with name.
func (t *Timer) Duration(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.index[name]; ok {
		return t.phases[i].Duration
	}
	return 0
}

// Total returns the time elapsed since the timer was created.
func (t *Timer) Total() time.Duration {
	return t.clock.Since(t.start)
}

// Phases returns copies of all phases in start order.
func (t *Timer) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Phase, len(t.phases))
	for i, p := range t.phases {
		out[i] = *p
	}
	return out
}

// Log writes one line per phase and a total at debug level.
func (t *Timer) Log(logger Logger) {
	if logger == nil {
		return
	}
	logger.Debug("=== %s timing ===", t.name)
	for i, p := range t.Phases() {
		logger.Debug("phase %d - %s: %v", i+1, p.Name, p.Duration)
	}
	logger.Debug("total: %v", t.Total())
}
