// Package notes implements the debounced notes writer used by workspace clients.
package notes

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultIdleWindow  = 5 * time.Second
	DefaultMaxWait     = 10 * time.Second
	defaultSaveTimeout = 10 * time.Second
)

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("autosaver closed")

// SaveFunc persists the full notes content.
type SaveFunc func(ctx context.Context, content string) error

// State is the timer state of an Autosaver.
type State int

const (
	StateIdle State = iota
	StatePendingIdleWindow
	StateForcedByMaxWait
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingIdleWindow:
		return "pending_idle_window"
	case StateForcedByMaxWait:
		return "forced_by_max_wait"
	default:
		return "unknown"
	}
}

// Status is what a notes indicator shows.
type Status struct {
	State   State
	Saving  bool
	Unsaved bool
}

// Options configures an Autosaver. Zero values fall back to defaults.
type Options struct {
	IdleWindow  time.Duration
	MaxWait     time.Duration
	SaveTimeout time.Duration
	Clock       clock.Clock
	// OnError receives every failed save. The content stays marked unsaved.
	OnError func(error)
}

// Autosaver coalesces Schedule calls into one save after IdleWindow of
// quiet, and forces a save once MaxWait has passed since the first
// unsaved change of a burst.
type Autosaver struct {
	save SaveFunc
	opts Options

	saveMu sync.Mutex // serializes saves; a snapshot older than savedVer is dropped

	mu        sync.Mutex
	state     State
	pending   string
	version   uint64
	savedVer  uint64
	saving    int
	closed    bool
	idleTimer *clock.Timer
	maxTimer  *clock.Timer
	idleGen   uint64
	windowGen uint64
}

// Open returns an Autosaver. Callers should defer Close so pending changes
// are flushed on teardown.
func Open(save SaveFunc, opts Options) (*Autosaver, error) {
	if save == nil {
		return nil, errors.New("notes: save func is required")
	}
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = DefaultIdleWindow
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Autosaver{save: save, opts: opts}, nil
}

// Schedule records content as the latest notes and (re)arms the timers.
func (a *Autosaver) Schedule(content string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.pending = content
	a.version++

	a.idleGen++
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	idleGen := a.idleGen
	a.idleTimer = a.opts.Clock.AfterFunc(a.opts.IdleWindow, func() { a.fire(false, idleGen) })

	if a.state != StatePendingIdleWindow {
		a.state = StatePendingIdleWindow
		a.windowGen++
		windowGen := a.windowGen
		a.maxTimer = a.opts.Clock.AfterFunc(a.opts.MaxWait, func() { a.fire(true, windowGen) })
	}
	return nil
}

// Flush saves pending content now. It is a no-op when everything is saved.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.version == a.savedVer {
		a.mu.Unlock()
		return nil
	}
	content, version := a.pending, a.version
	a.stopTimersLocked()
	a.state = StateIdle
	a.mu.Unlock()
	return a.persist(ctx, content, version)
}

// Cancel discards the scheduled save.
func (a *Autosaver) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimersLocked()
	a.state = StateIdle
	a.savedVer = a.version
}

// Close flushes unsaved changes, then stops the timers. Further Schedule
// calls fail with ErrClosed.
func (a *Autosaver) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	unsaved := a.version != a.savedVer
	a.mu.Unlock()

	var err error
	if unsaved {
		err = a.Flush(ctx)
	}
	a.mu.Lock()
	a.stopTimersLocked()
	a.state = StateIdle
	a.mu.Unlock()
	return err
}

// Status reports the indicator state.
func (a *Autosaver) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		State:   a.state,
		Saving:  a.saving > 0,
		Unsaved: a.version != a.savedVer,
	}
}

func (a *Autosaver) fire(forced bool, gen uint64) {
	a.mu.Lock()
	if forced && gen != a.windowGen || !forced && gen != a.idleGen || a.state != StatePendingIdleWindow {
		a.mu.Unlock()
		return
	}
	content, version := a.pending, a.version
	a.stopTimersLocked()
	if forced {
		a.state = StateForcedByMaxWait
	} else {
		a.state = StateIdle
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.SaveTimeout)
	defer cancel()
	_ = a.persist(ctx, content, version)

	a.mu.Lock()
	if a.state == StateForcedByMaxWait {
		a.state = StateIdle
	}
	a.mu.Unlock()
}

func (a *Autosaver) persist(ctx context.Context, content string, version uint64) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	if version <= a.savedVer {
		a.mu.Unlock()
		return nil
	}
	a.saving++
	a.mu.Unlock()

	err := a.save(ctx, content)

	a.mu.Lock()
	a.saving--
	if err == nil && version > a.savedVer {
		a.savedVer = version
	}
	a.mu.Unlock()

	if err != nil && a.opts.OnError != nil {
		a.opts.OnError(err)
	}
	return err
}

func (a *Autosaver) stopTimersLocked() {
	a.idleGen++
	a.windowGen++
	if a.idleTimer != nil {
		a.idleTimer.Stop()
		a.idleTimer = nil
	}
	if a.maxTimer != nil {
		a.maxTimer.Stop()
		a.maxTimer = nil
	}
}
