package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

type recordedFire struct {
	kind    FireKind
	id      string
	message string
}

type fireRecorder struct {
	mu    sync.Mutex
	fires []recordedFire
}

func (r *fireRecorder) onFire(ctx context.Context, f Fire) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch f.Kind {
	case FireRoutine:
		r.fires = append(r.fires, recordedFire{kind: f.Kind, id: f.Routine.ID, message: f.Routine.Message})
	case FireReminder:
		r.fires = append(r.fires, recordedFire{kind: f.Kind, id: f.Reminder.ID, message: f.Reminder.Message})
	default:
		r.fires = append(r.fires, recordedFire{kind: f.Kind})
	}
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fires)
}

func (r *fireRecorder) last() recordedFire {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fires[len(r.fires)-1]
}

// TestCronFire_DeliversExactlyOncePerMatch reproduces spec §8.2 scenario 1:
// a weekday-09:00 routine fires exactly once when the clock crosses that
// instant, carrying the entry's message through to the handler.
func TestCronFire_DeliversExactlyOncePerMatch(t *testing.T) {
	// Monday 2026-01-05 08:59:50 UTC, 10s before the routine's 9am fire.
	start := time.Date(2026, 1, 5, 8, 59, 50, 0, time.UTC)
	fc := clock.NewFake(start)
	mgr, err := schedule.NewManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	routine := schedule.NewRoutine("0 9 * * 1-5", "morning briefing", "", schedule.Policy{})
	if err := mgr.AddRoutine(routine); err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}

	rec := &fireRecorder{}
	s := New(mgr, fc, fork.NewTracker(fc), rec.onFire)
	s.syncAll(context.Background())

	fc.Advance(20 * time.Second) // crosses 09:00:00
	s.fireDue(context.Background())

	if rec.count() != 1 {
		t.Fatalf("fire count = %d, want exactly 1", rec.count())
	}
	last := rec.last()
	if last.kind != FireRoutine || last.id != routine.ID || last.message != "morning briefing" {
		t.Fatalf("fire = %+v, want routine %q", last, routine.ID)
	}

	// Advancing a further short interval without crossing the next weekday
	// 9am must not re-fire.
	fc.Advance(30 * time.Second)
	s.fireDue(context.Background())
	if rec.count() != 1 {
		t.Fatalf("fire count after short advance = %d, want still 1", rec.count())
	}
}

// TestReminderFire_PrunedAfterFire reproduces the one-shot half of spec
// §8.2: a reminder fires once and its declarative entry is removed.
func TestReminderFire_PrunedAfterFire(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)
	mgr, err := schedule.NewManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	rem := schedule.NewReminder(fc.Now(), time.Minute, "check on the build", 0, "", schedule.Policy{})
	if err := mgr.AddReminder(rem); err != nil {
		t.Fatalf("AddReminder: %v", err)
	}

	rec := &fireRecorder{}
	s := New(mgr, fc, fork.NewTracker(fc), rec.onFire)
	s.syncAll(context.Background())

	fc.Advance(2 * time.Minute)
	s.fireDue(context.Background())

	if rec.count() != 1 {
		t.Fatalf("fire count = %d, want 1", rec.count())
	}

	reminders, err := mgr.ListReminders()
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(reminders) != 0 {
		t.Fatalf("reminders directory should be empty after fire, got %+v", reminders)
	}
	if s.JobCount() != 0 {
		t.Fatalf("scheduler should have pruned the fired reminder's job, JobCount=%d", s.JobCount())
	}
}

// TestChainReminders_TerminateAfterMaxPlusOneFires end-to-ends spec §8.2
// scenario 2: a chain with max_chain=2 fires three times (depths 0,1,2),
// the stub "agent" calls follow_up_chain on each, and the third call is
// refused — after which the reminders directory is empty.
func TestChainReminders_TerminateAfterMaxPlusOneFires(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)
	mgr, err := schedule.NewManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	root := schedule.NewReminder(fc.Now(), 0, "check on the deploy", 2, "", schedule.Policy{})
	if err := mgr.AddReminder(root); err != nil {
		t.Fatalf("AddReminder: %v", err)
	}

	fires := 0
	var lastErr error
	onFire := func(ctx context.Context, f Fire) {
		if f.Kind != FireReminder {
			return
		}
		fires++
		rem := f.Reminder
		chain := schedule.ChainContext{
			ReminderID: rem.ID, ChainParent: rem.ChainParent, Depth: rem.ChainDepth,
			MaxChain: rem.MaxChain, Policy: rem.Policy, Message: rem.Message,
		}
		next, err := chain.FollowUp(fc.Now(), 1)
		if err != nil {
			lastErr = err
			return
		}
		_ = mgr.AddReminder(next)
	}

	s := New(mgr, fc, fork.NewTracker(fc), onFire)
	for i := 0; i < 3; i++ {
		s.syncAll(context.Background())
		fc.Advance(2 * time.Minute)
		s.fireDue(context.Background())
	}

	if fires != 3 {
		t.Fatalf("fires = %d, want 3", fires)
	}
	if lastErr == nil {
		t.Fatalf("expected the third follow_up_chain call to be refused")
	}

	reminders, err := mgr.ListReminders()
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(reminders) != 0 {
		t.Fatalf("reminders directory should be empty after chain terminates, got %+v", reminders)
	}
}

func TestScheduler_PrunesJobsWhoseEntryWasRemoved(t *testing.T) {
	fc := clock.NewFake(time.Now())
	mgr, err := schedule.NewManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	routine := schedule.NewRoutine("0 9 * * *", "daily standup", "", schedule.Policy{})
	if err := mgr.AddRoutine(routine); err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}

	s := New(mgr, fc, fork.NewTracker(fc), func(ctx context.Context, f Fire) {})
	s.syncAll(context.Background())
	if s.JobCount() != 1 {
		t.Fatalf("JobCount = %d, want 1 after initial sync", s.JobCount())
	}

	if err := mgr.CancelRoutine(routine.ID); err != nil {
		t.Fatalf("CancelRoutine: %v", err)
	}
	s.syncAll(context.Background())
	if s.JobCount() != 0 {
		t.Fatalf("JobCount = %d, want 0 after entry removed", s.JobCount())
	}
}

func TestCheckForkIdle_NudgesThenAutoExits(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)
	tr := fork.NewTracker(fc)
	tr.EnterInteractive(1) // 1-minute idle timeout

	mgr, err := schedule.NewManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	var kinds []FireKind
	s := New(mgr, fc, tr, func(ctx context.Context, f Fire) { kinds = append(kinds, f.Kind) })

	fc.Advance(90 * time.Second)
	s.checkForkIdle(context.Background())
	if len(kinds) != 1 || kinds[0] != FireInteractiveIdleNudge {
		t.Fatalf("first watchdog tick = %+v, want one idle nudge", kinds)
	}

	fc.Advance(90 * time.Second)
	s.checkForkIdle(context.Background())
	if len(kinds) != 2 || kinds[1] != FireInteractiveAutoExit {
		t.Fatalf("second watchdog tick = %+v, want auto-exit appended", kinds)
	}
}
