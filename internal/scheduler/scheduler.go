// Package scheduler runs the two periodic tasks that drive the whole core:
// a 10-second poll that keeps registered timer jobs in sync with the
// declarative schedule directories, and a 60-second idle-fork watchdog
// (spec §4.H), ported from the original program's scheduling/scheduler.py.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

const (
	PollInterval   = 10 * time.Second
	WatchdogTick   = 60 * time.Second
	reminderSlack  = 5 * time.Second
)

// Fire is what the scheduler hands to the orchestrator when a job is due.
type Fire struct {
	Kind     FireKind
	Routine  *schedule.Routine
	Reminder *schedule.Reminder
}

type FireKind int

const (
	FireRoutine FireKind = iota
	FireReminder
	FireInteractiveIdleNudge
	FireInteractiveAutoExit
)

// job is one registered timer, keyed deterministically by entry id.
type job struct {
	id      string // "routine_<id>" or "rem_<id>"
	nextRun time.Time
	isCron  bool
	cronExpr string
	entryID string
	kind    FireKind
}

// FireFunc is invoked synchronously on the scheduler's goroutine when a job
// is due.
// skip_if_busy semantics live in the orchestrator, which owns the agent lock.
type FireFunc func(ctx context.Context, f Fire)

// Scheduler owns the registered-job set and the two periodic tickers.
type Scheduler struct {
	manager *schedule.Manager
	clock   clock.Clock
	onFire  FireFunc
	forkTracker *fork.Tracker

	mu   sync.Mutex
	jobs map[string]*job

	watchdogBusy atomic.Bool // reentrancy guard; the original used an explicit
	                          // boolean rather than relying solely on the
	                          // scheduler backend's max_instances setting
}

func New(manager *schedule.Manager, c clock.Clock, forkTracker *fork.Tracker, onFire FireFunc) *Scheduler {
	return &Scheduler{
		manager:     manager,
		clock:       c,
		onFire:      onFire,
		forkTracker: forkTracker,
		jobs:        map[string]*job{},
	}
}

// Run starts both periodic tasks and blocks until ctx is cancelled. A
// best-effort fsnotify watch on the declarative entry directories triggers
// an immediate resync on top of the 10s poll, so a freshly hand-edited or
// CLI-added entry doesn't wait a full poll interval to be picked up; the
// poll itself remains the source of truth if the watch fails to start.
func (s *Scheduler) Run(ctx context.Context) {
	pollTicker := s.clock.NewTicker(PollInterval)
	watchdogTicker := s.clock.NewTicker(WatchdogTick)
	defer pollTicker.Stop()
	defer watchdogTicker.Stop()

	resync := s.watchDirs(ctx)

	s.syncAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C():
			s.syncAll(ctx)
			s.fireDue(ctx)
		case <-resync:
			s.syncAll(ctx)
			s.fireDue(ctx)
		case <-watchdogTicker.C():
			s.checkForkIdle(ctx)
		}
	}
}

// watchDirs starts an fsnotify watcher on the manager's entry directories
// and returns a channel that receives a value on every write/create/remove
// event, coalesced to at most one pending signal at a time. Returns a
// nil-valued (never-fires) channel if the watcher fails to start (missing
// inotify support, fd limits, etc.) — the scheduler degrades to poll-only
// in that case.
func (s *Scheduler) watchDirs(ctx context.Context) <-chan struct{} {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("scheduler: fsnotify watcher unavailable, falling back to poll-only", "err", err)
		return nil
	}
	for _, dir := range s.manager.Dirs() {
		if err := w.Add(dir); err != nil {
			slog.Warn("scheduler: fsnotify watch failed for dir, falling back to poll-only for it", "dir", dir, "err", err)
		}
	}

	out := make(chan struct{}, 1)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("scheduler: fsnotify watcher error", "err", err)
			}
		}
	}()
	return out
}

// syncAll diffs the declarative entries against registered jobs: new
// entries are registered, entries whose file disappeared are pruned.
func (s *Scheduler) syncAll(ctx context.Context) {
	routines, err := s.manager.ListRoutines()
	if err != nil {
		slog.Error("scheduler: list routines", "err", err)
		routines = nil
	}
	reminders, err := s.manager.ListReminders()
	if err != nil {
		slog.Error("scheduler: list reminders", "err", err)
		reminders = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}

	for _, r := range routines {
		id := "routine_" + r.ID
		seen[id] = true
		if _, ok := s.jobs[id]; ok {
			continue
		}
		next, err := schedule.NextFire(r.Cron, s.clock.Now())
		if err != nil {
			slog.Warn("scheduler: bad cron, skipping routine", "id", r.ID, "err", err)
			continue
		}
		s.jobs[id] = &job{id: id, nextRun: next, isCron: true, cronExpr: r.Cron, entryID: r.ID, kind: FireRoutine}
	}

	for _, rem := range reminders {
		id := "rem_" + rem.ID
		seen[id] = true
		if _, ok := s.jobs[id]; ok {
			continue
		}
		runAt := rem.RunAt
		if runAt.Before(s.clock.Now()) {
			runAt = s.clock.Now().Add(reminderSlack)
		}
		s.jobs[id] = &job{id: id, nextRun: runAt, entryID: rem.ID, kind: FireReminder}
	}

	for id := range s.jobs {
		if !seen[id] {
			delete(s.jobs, id)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.nextRun.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.dispatch(ctx, j)
		if j.kind == FireReminder {
			s.mu.Lock()
			delete(s.jobs, j.id)
			s.mu.Unlock()
			continue
		}
		// routine: reschedule from its cron expression
		next, err := schedule.NextFire(j.cronExpr, now)
		if err != nil {
			s.mu.Lock()
			delete(s.jobs, j.id)
			s.mu.Unlock()
			continue
		}
		s.mu.Lock()
		j.nextRun = next
		s.mu.Unlock()
	}
}

func (s *Scheduler) dispatch(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler: fire panicked", "job", j.id, "panic", r)
		}
	}()

	switch j.kind {
	case FireRoutine:
		routines, err := s.manager.ListRoutines()
		if err != nil {
			slog.Error("scheduler: reload routines for fire", "err", err)
			return
		}
		for _, r := range routines {
			if r.ID == j.entryID {
				s.onFire(ctx, Fire{Kind: FireRoutine, Routine: &r})
				return
			}
		}
	case FireReminder:
		reminders, err := s.manager.ListReminders()
		if err != nil {
			slog.Error("scheduler: reload reminders for fire", "err", err)
			return
		}
		for _, rem := range reminders {
			if rem.ID == j.entryID {
				s.onFire(ctx, Fire{Kind: FireReminder, Reminder: &rem})
				_ = s.manager.CancelReminder(rem.ID)
				return
			}
		}
	}
}

// checkForkIdle is the 60-second idle-fork watchdog. It is reentrancy
// guarded explicitly (watchdogBusy), not solely relying on the tick
// interval being longer than the handler's own runtime, because a slow
// Discord edit could otherwise let two ticks overlap.
func (s *Scheduler) checkForkIdle(ctx context.Context) {
	if !s.watchdogBusy.CompareAndSwap(false, true) {
		return
	}
	defer s.watchdogBusy.Store(false)

	if s.forkTracker == nil || !s.forkTracker.InInteractiveFork() {
		return
	}

	now := s.clock.Now()
	state := s.forkTracker.Interactive()

	if state.ShouldAutoExit(now) {
		s.onFire(ctx, Fire{Kind: FireInteractiveAutoExit})
		return
	}
	if state.PromptedAt == nil && state.IsIdle(now) {
		s.forkTracker.MarkPrompted()
		s.onFire(ctx, Fire{Kind: FireInteractiveIdleNudge})
	}
}

// JobCount reports the number of currently registered jobs (test/diagnostic use).
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
