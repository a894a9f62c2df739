package tools

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/budget"
	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
	"github.com/nextlevelbuilder/goclaw-sched/internal/inquiries"
	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

type fakeMessenger struct {
	plain  []string
	embeds []map[string]string
	fail   bool
}

func (m *fakeMessenger) SendPlain(ctx context.Context, text string) error {
	if m.fail {
		return context.DeadlineExceeded
	}
	m.plain = append(m.plain, text)
	return nil
}

func (m *fakeMessenger) SendEmbed(ctx context.Context, fields map[string]string) error {
	if m.fail {
		return context.DeadlineExceeded
	}
	m.embeds = append(m.embeds, fields)
	return nil
}

func newFireContext(t *testing.T) (*FireContext, *fork.Tracker, *fakeMessenger) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	tr := fork.NewTracker(fc)
	b := budget.New(t.TempDir(), fc)
	mgr, err := schedule.NewManager(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	msgr := &fakeMessenger{}
	return &FireContext{
		ForkTracker: tr,
		Budget:      b,
		Pending:     inquiries.NewPendingUpdates(t.TempDir(), fc),
		Messenger:   msgr,
		ScheduleMgr: mgr,
		Clock:       fc,
	}, tr, msgr
}

func TestPingUserTool_DeniedOutsideBackgroundFork(t *testing.T) {
	fctx, _, _ := newFireContext(t)
	r := PingUserTool{}.Handle(context.Background(), fctx, map[string]any{"message": "hi"})
	if !r.IsError {
		t.Fatalf("expected error outside background fork")
	}
}

func TestPingUserTool_SendsAndConsumesBudget(t *testing.T) {
	fctx, tr, msgr := newFireContext(t)
	tr.EnterBackground(schedule.Policy{AllowPing: true})

	r := PingUserTool{}.Handle(context.Background(), fctx, map[string]any{"message": "build finished"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", r.Content)
	}
	if len(msgr.plain) != 1 || msgr.plain[0] != "[bg] build finished" {
		t.Fatalf("plain messages = %v", msgr.plain)
	}
	if !tr.Background().OutputSent {
		t.Fatalf("OutputSent should be set after a successful ping")
	}
}

func TestPingUserTool_RefusesWhenPingsDisabled(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	tr.EnterBackground(schedule.Policy{AllowPing: false})
	r := PingUserTool{}.Handle(context.Background(), fctx, map[string]any{"message": "hi"})
	if !r.IsError {
		t.Fatalf("expected error when allow_ping=false")
	}
}

func TestPingUserTool_OneNonCriticalPingPerFire(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	tr.EnterBackground(schedule.Policy{AllowPing: true})

	r1 := PingUserTool{}.Handle(context.Background(), fctx, map[string]any{"message": "first"})
	if r1.IsError {
		t.Fatalf("first ping should succeed: %s", r1.Content)
	}
	r2 := PingUserTool{}.Handle(context.Background(), fctx, map[string]any{"message": "second"})
	if !r2.IsError {
		t.Fatalf("second non-critical ping in the same fire should be refused")
	}
}

func TestPingUserTool_BusyRefusesNonCriticalButCriticalStillWorks(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	tr.EnterBackground(schedule.Policy{AllowPing: true})
	fctx.Busy = true

	r := PingUserTool{}.Handle(context.Background(), fctx, map[string]any{"message": "hi"})
	if !r.IsError {
		t.Fatalf("expected busy refusal for non-critical ping")
	}

	rc := PingUserTool{}.Handle(context.Background(), fctx, map[string]any{"message": "urgent", "critical": true})
	if rc.IsError {
		t.Fatalf("critical ping should still succeed while busy: %s", rc.Content)
	}
}

func TestPingUserTool_CriticalBypassesBudgetButNotAllowPing(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	tr.EnterBackground(schedule.Policy{AllowPing: true})

	// Drain the budget via TryUse directly, independent of ping_count limit.
	for i := 0; i < budget.DefaultCapacity; i++ {
		if _, err := fctx.Budget.TryUse(); err != nil {
			t.Fatalf("TryUse: %v", err)
		}
	}

	r := PingUserTool{}.Handle(context.Background(), fctx, map[string]any{"message": "urgent", "critical": true})
	if r.IsError {
		t.Fatalf("critical ping should bypass exhausted budget: %s", r.Content)
	}
	state, err := fctx.Budget.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.CriticalUsed != 1 {
		t.Fatalf("CriticalUsed = %d, want 1", state.CriticalUsed)
	}

	// allow_ping=false still blocks critical pings.
	fctx2, tr2, _ := newFireContext(t)
	tr2.EnterBackground(schedule.Policy{AllowPing: false})
	r2 := PingUserTool{}.Handle(context.Background(), fctx2, map[string]any{"message": "urgent", "critical": true})
	if !r2.IsError {
		t.Fatalf("critical should not bypass allow_ping=false")
	}
}

func TestFollowUpChainTool_SchedulesNextAndRefusesAtFinalDepth(t *testing.T) {
	fctx, _, _ := newFireContext(t)
	root := schedule.NewReminder(fctx.Clock.Now(), time.Minute, "check the deploy", 1, "", schedule.Policy{})
	fctx.Chain = &schedule.ChainContext{
		ReminderID: root.ID, ChainParent: root.ChainParent, Depth: 0, MaxChain: 1,
		Policy: root.Policy, Message: root.Message,
	}

	r := FollowUpChainTool{}.Handle(context.Background(), fctx, map[string]any{"minutes": 5.0})
	if r.IsError {
		t.Fatalf("unexpected error: %s", r.Content)
	}
	reminders, err := fctx.ScheduleMgr.ListReminders()
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(reminders) != 1 || reminders[0].ChainDepth != 1 {
		t.Fatalf("expected one follow-up reminder at depth 1, got %+v", reminders)
	}

	// at final depth, refuse.
	fctx.Chain.Depth = 1
	r2 := FollowUpChainTool{}.Handle(context.Background(), fctx, map[string]any{"minutes": 5.0})
	if !r2.IsError {
		t.Fatalf("expected refusal at final chain depth")
	}
}

func TestFollowUpChainTool_UnavailableOutsideChain(t *testing.T) {
	fctx, _, _ := newFireContext(t)
	r := FollowUpChainTool{}.Handle(context.Background(), fctx, map[string]any{"minutes": 5.0})
	if !r.IsError {
		t.Fatalf("expected error when no chain context is active")
	}
}

func TestReportUpdatesTool_DeniedFromMainSession(t *testing.T) {
	fctx, _, _ := newFireContext(t)
	r := ReportUpdatesTool{}.Handle(context.Background(), fctx, map[string]any{"message": "done"})
	if !r.IsError {
		t.Fatalf("report_updates from the main session (no fork active) must be denied")
	}
}

func TestReportUpdatesTool_BlockedPolicyDenies(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	tr.EnterBackground(schedule.Policy{UpdateMainSession: schedule.UpdateBlocked})
	r := ReportUpdatesTool{}.Handle(context.Background(), fctx, map[string]any{"message": "done"})
	if !r.IsError {
		t.Fatalf("report_updates should be denied when update_main_session=blocked")
	}
}

func TestReportUpdatesTool_AppendsAndMarksReported(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	tr.EnterBackground(schedule.Policy{UpdateMainSession: schedule.UpdateOnPing})
	r := ReportUpdatesTool{}.Handle(context.Background(), fctx, map[string]any{"message": "done"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", r.Content)
	}
	if !tr.Background().Reported {
		t.Fatalf("Reported should be set")
	}
	updates, err := fctx.Pending.Peek()
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if len(updates) != 1 || updates[0].Message != "done" {
		t.Fatalf("pending updates = %+v", updates)
	}
}

func TestReportUpdatesTool_InteractiveForkSetsExitReport(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	tr.EnterInteractive(10)
	r := ReportUpdatesTool{}.Handle(context.Background(), fctx, map[string]any{"message": "wrapping up"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", r.Content)
	}
	if tr.Interactive().ExitAction != fork.ExitReport {
		t.Fatalf("ExitAction = %v, want ExitReport", tr.Interactive().ExitAction)
	}
}

func TestSaveContextTool_OnlyInInteractiveFork(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	r := SaveContextTool{}.Handle(context.Background(), fctx, nil)
	if !r.IsError {
		t.Fatalf("save_context should be denied outside any fork")
	}

	tr.EnterBackground(schedule.Policy{})
	r = SaveContextTool{}.Handle(context.Background(), fctx, nil)
	if !r.IsError {
		t.Fatalf("save_context should be denied in a background fork")
	}

	tr.EnterInteractive(10)
	r = SaveContextTool{}.Handle(context.Background(), fctx, nil)
	if r.IsError {
		t.Fatalf("save_context should succeed in an interactive fork: %s", r.Content)
	}
	if tr.Interactive().ExitAction != fork.ExitSave {
		t.Fatalf("ExitAction = %v, want ExitSave", tr.Interactive().ExitAction)
	}
}

func TestEnterForkTool_OnlyFromMainSession(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	var gotTopic string
	toolTool := EnterForkTool{RequestFork: func(topic string, idle float64) { gotTopic = topic }}

	r := toolTool.Handle(context.Background(), fctx, map[string]any{"topic": "deploy review"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", r.Content)
	}
	if gotTopic != "deploy review" {
		t.Fatalf("RequestFork topic = %q", gotTopic)
	}

	tr.EnterInteractive(10)
	r = toolTool.Handle(context.Background(), fctx, nil)
	if !r.IsError {
		t.Fatalf("enter_fork should be denied while already forked")
	}
}

func TestExitForkTool_OnlyInInteractiveFork(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	r := ExitForkTool{}.Handle(context.Background(), fctx, nil)
	if !r.IsError {
		t.Fatalf("exit_fork should be denied outside an interactive fork")
	}
	tr.EnterInteractive(10)
	r = ExitForkTool{}.Handle(context.Background(), fctx, nil)
	if r.IsError {
		t.Fatalf("unexpected error: %s", r.Content)
	}
	if tr.Interactive().ExitAction != fork.ExitExit {
		t.Fatalf("ExitAction = %v, want ExitExit", tr.Interactive().ExitAction)
	}
}

func TestCompactSessionTool_DeniedOnIsolatedFork(t *testing.T) {
	fctx, tr, _ := newFireContext(t)
	tr.EnterBackground(schedule.Policy{Isolated: true})
	called := false
	ct := CompactSessionTool{Compact: func(ctx context.Context) error { called = true; return nil }}
	r := ct.Handle(context.Background(), fctx, nil)
	if !r.IsError {
		t.Fatalf("compact_session should be denied on an isolated fork")
	}
	if called {
		t.Fatalf("Compact should not have been invoked")
	}
}

func TestCompactSessionTool_CallsCompact(t *testing.T) {
	fctx, _, _ := newFireContext(t)
	called := false
	ct := CompactSessionTool{Compact: func(ctx context.Context) error { called = true; return nil }}
	r := ct.Handle(context.Background(), fctx, nil)
	if r.IsError {
		t.Fatalf("unexpected error: %s", r.Content)
	}
	if !called {
		t.Fatalf("Compact should have been invoked")
	}
}

func TestRegistry_DispatchesByName(t *testing.T) {
	reg := NewRegistry(PingUserTool{}, ExitForkTool{})
	if len(reg.Names()) != 2 {
		t.Fatalf("Names() = %v, want 2 entries", reg.Names())
	}
	r := reg.Handle(context.Background(), &FireContext{}, "unknown_tool", nil)
	if !r.IsError {
		t.Fatalf("unknown tool name should produce an error result")
	}
}
