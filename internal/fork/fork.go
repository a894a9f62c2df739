// Package fork implements the mutually-exclusive background/interactive
// fork state machines described in spec §4.E. Background and interactive
// fork state are deliberately distinct record types — they are never
// collapsed into one "fork mode" enum, per the design notes.
package fork

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

// ExitAction is the action an interactive fork's tool calls (or the idle
// watchdog) request of the orchestrator on completion.
type ExitAction int

const (
	ExitNone ExitAction = iota
	ExitSave
	ExitReport
	ExitExit
)

// BackgroundState tracks a single background-fork fire's bookkeeping.
// Reset on every entry into a new background fork.
type BackgroundState struct {
	Active     bool
	ForkSaved  bool // the fork asked to be promoted to main
	PingCount  int
	OutputSent bool
	Reported   bool
	Policy     schedule.Policy
}

// InteractiveState tracks the idle-timeout sub-state of an interactive fork.
type InteractiveState struct {
	Active            bool
	IdleTimeoutMinutes float64
	LastActivity      time.Time // monotonic-ish via the injected clock
	PromptedAt        *time.Time
	ExitAction        ExitAction
	Summary           string
}

const DefaultIdleTimeoutMinutes = 10

// IsIdle reports whether the interactive fork has been quiet past its
// idle timeout.
func (i InteractiveState) IsIdle(now time.Time) bool {
	timeout := i.idleTimeout()
	return now.Sub(i.LastActivity) > timeout
}

// ShouldAutoExit reports whether the escalated auto-exit prompt is due: the
// watchdog already nudged once (PromptedAt set) and another full idle
// timeout has elapsed since.
func (i InteractiveState) ShouldAutoExit(now time.Time) bool {
	if i.PromptedAt == nil {
		return false
	}
	return now.Sub(*i.PromptedAt) > i.idleTimeout()
}

func (i InteractiveState) idleTimeout() time.Duration {
	m := i.IdleTimeoutMinutes
	if m <= 0 {
		m = DefaultIdleTimeoutMinutes
	}
	return time.Duration(m * float64(time.Minute))
}

// Tracker holds the process-singleton fork state. Mutations are only ever
// made from the scheduler/agent-runtime goroutines while holding the agent
// lock (see internal/agentrt), so a plain mutex (not a lock-free structure)
// is sufficient — this mirrors the original program's own comment that
// these globals are safe because a single per-owner lock serializes access.
type Tracker struct {
	mu          sync.Mutex
	clock       clock.Clock
	background  BackgroundState
	interactive InteractiveState
}

func NewTracker(c clock.Clock) *Tracker {
	return &Tracker{clock: c}
}

// EnterBackground resets background state and clears any interactive fork;
// the two modes are mutually exclusive.
func (t *Tracker) EnterBackground(policy schedule.Policy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interactive = InteractiveState{}
	t.background = BackgroundState{Active: true, Policy: policy}
}

// EnterInteractive resets interactive state and clears any background fork.
func (t *Tracker) EnterInteractive(idleTimeoutMinutes float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.background = BackgroundState{}
	t.interactive = InteractiveState{
		Active:             true,
		IdleTimeoutMinutes: idleTimeoutMinutes,
		LastActivity:       t.clock.Now(),
	}
}

// ExitAll clears both fork states (process returns to main session).
func (t *Tracker) ExitAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.background = BackgroundState{}
	t.interactive = InteractiveState{}
}

func (t *Tracker) InBackgroundFork() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.background.Active
}

func (t *Tracker) InInteractiveFork() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interactive.Active
}

// Background returns a copy of the current background state.
func (t *Tracker) Background() BackgroundState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.background
}

// Interactive returns a copy of the current interactive state.
func (t *Tracker) Interactive() InteractiveState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interactive
}

// MutateBackground applies fn to the live background state under lock.
func (t *Tracker) MutateBackground(fn func(*BackgroundState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.background)
}

// MutateInteractive applies fn to the live interactive state under lock.
func (t *Tracker) MutateInteractive(fn func(*InteractiveState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.interactive)
}

// Touch records user activity on the interactive fork (resets idle timer).
func (t *Tracker) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interactive.Active {
		t.interactive.LastActivity = t.clock.Now()
		t.interactive.PromptedAt = nil
	}
}

// MarkPrompted records that the idle watchdog sent the first nudge.
func (t *Tracker) MarkPrompted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.interactive.PromptedAt = &now
}
