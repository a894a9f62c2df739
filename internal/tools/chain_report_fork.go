package tools

import (
	"context"

	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
)

// FollowUpChainTool schedules the chain's next reminder (spec §4.F). Usable
// from either fork mode, but only while a ChainContext is active.
type FollowUpChainTool struct{}

func (FollowUpChainTool) Name() string { return "follow_up_chain" }

func (FollowUpChainTool) Handle(ctx context.Context, fc *FireContext, args map[string]any) Result {
	if fc.Chain == nil {
		return errf("follow_up_chain is only available while a chain reminder is firing")
	}
	minutes := floatArg(args, "minutes", 0)
	next, err := fc.Chain.FollowUp(fc.Clock.Now(), minutes)
	if err != nil {
		return errf("%v", err)
	}
	if err := fc.ScheduleMgr.AddReminder(next); err != nil {
		return errf("failed to schedule follow-up: %v", err)
	}
	return ok("scheduled follow-up")
}

// SaveContextTool (interactive fork only) requests promotion of the fork's
// session to main.
type SaveContextTool struct{}

func (SaveContextTool) Name() string { return "save_context" }

func (SaveContextTool) Handle(ctx context.Context, fc *FireContext, args map[string]any) Result {
	if fc.ForkTracker == nil || fc.ForkTracker.InBackgroundFork() {
		return errf("save_context is not available in a background task")
	}
	if !fc.ForkTracker.InInteractiveFork() {
		return errf("save_context is only available in an interactive fork")
	}
	fc.ForkTracker.MutateInteractive(func(i *fork.InteractiveState) {
		i.ExitAction = fork.ExitSave
	})
	return ok("will promote this fork's session to main")
}

// ReportUpdatesTool appends to pending updates; in an interactive fork it
// also requests exit. Denied entirely when update_main_session=blocked, and
// when called from the main session (neither fork active) — both denials
// preserve the source program's own behavior (spec §9 open questions).
type ReportUpdatesTool struct{}

func (ReportUpdatesTool) Name() string { return "report_updates" }

func (ReportUpdatesTool) Handle(ctx context.Context, fc *FireContext, args map[string]any) Result {
	inBg := fc.ForkTracker != nil && fc.ForkTracker.InBackgroundFork()
	inInteractive := fc.ForkTracker != nil && fc.ForkTracker.InInteractiveFork()
	if !inBg && !inInteractive {
		return errf("not in a forked background session")
	}

	message := stringArg(args, "message")

	if inBg {
		bg := fc.ForkTracker.Background()
		if bg.Policy.UpdateMainSession == "blocked" {
			return errf("reporting is disabled for this task")
		}
		if err := fc.Pending.Append(message); err != nil {
			return errf("failed to record update: %v", err)
		}
		fc.ForkTracker.MutateBackground(func(b *fork.BackgroundState) {
			b.Reported = true
		})
		return ok("recorded")
	}

	if err := fc.Pending.Append(message); err != nil {
		return errf("failed to record update: %v", err)
	}
	fc.ForkTracker.MutateInteractive(func(i *fork.InteractiveState) {
		i.ExitAction = fork.ExitReport
		i.Summary = message
	})
	return ok("recorded")
}

// EnterForkTool (main session only) signals the orchestrator to fork the
// next turn.
type EnterForkTool struct {
	// RequestFork is invoked synchronously; the orchestrator performs the
	// actual fork on the next turn boundary rather than mid-stream.
	RequestFork func(topic string, idleTimeoutMinutes float64)
}

func (t EnterForkTool) Name() string { return "enter_fork" }

func (t EnterForkTool) Handle(ctx context.Context, fc *FireContext, args map[string]any) Result {
	if fc.ForkTracker == nil {
		return errf("fork tracker unavailable")
	}
	if fc.ForkTracker.InBackgroundFork() || fc.ForkTracker.InInteractiveFork() {
		return errf("enter_fork is only available from the main session")
	}
	topic := stringArg(args, "topic")
	idle := floatArg(args, "idle_timeout", float64(fork.DefaultIdleTimeoutMinutes))
	if t.RequestFork != nil {
		t.RequestFork(topic, idle)
	}
	return ok("will fork on the next turn")
}

// ExitForkTool (interactive fork only) sets exit_action=EXIT.
type ExitForkTool struct{}

func (ExitForkTool) Name() string { return "exit_fork" }

func (ExitForkTool) Handle(ctx context.Context, fc *FireContext, args map[string]any) Result {
	if fc.ForkTracker == nil || !fc.ForkTracker.InInteractiveFork() {
		return errf("exit_fork is only available in an interactive fork")
	}
	fc.ForkTracker.MutateInteractive(func(i *fork.InteractiveState) {
		i.ExitAction = fork.ExitExit
	})
	return ok("exiting fork")
}

// CompactSessionTool (persistent fork only) asks the SDK to compact the
// running session. The actual compaction call goes through the agentrt
// Client the orchestrator wires in; this tool only validates applicability.
type CompactSessionTool struct {
	Compact func(ctx context.Context) error
}

func (t CompactSessionTool) Name() string { return "compact_session" }

func (t CompactSessionTool) Handle(ctx context.Context, fc *FireContext, args map[string]any) Result {
	if fc.ForkTracker == nil {
		return errf("fork tracker unavailable")
	}
	bg := fc.ForkTracker.Background()
	if fc.ForkTracker.InBackgroundFork() && bg.Policy.Isolated {
		return errf("compact_session is not available on an isolated fork")
	}
	if t.Compact == nil {
		return errf("compaction is not available")
	}
	if err := t.Compact(ctx); err != nil {
		return errf("compaction failed: %v", err)
	}
	return ok("compacted")
}
