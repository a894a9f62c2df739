package tools

import (
	"context"

	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
)

// PingUserTool sends a plain "[bg] ..." message. Background-fork only,
// subject to the ping budget and allow_ping (spec §4.E).
type PingUserTool struct{}

func (PingUserTool) Name() string { return "ping_user" }

func (PingUserTool) Handle(ctx context.Context, fc *FireContext, args map[string]any) Result {
	if fc.ForkTracker == nil || !fc.ForkTracker.InBackgroundFork() {
		return errf("ping_user is only available in a background task")
	}
	bg := fc.ForkTracker.Background()
	if !bg.Policy.AllowPing {
		return errf("pings are disabled for this task")
	}

	message := stringArg(args, "message")
	critical := boolArg(args, "critical")

	if !critical {
		if fc.Busy {
			return errf("the main conversation is busy — non-critical pings are refused right now")
		}
		if bg.PingCount >= 1 {
			return errf("already sent 1 ping this session")
		}
		usedOk, err := fc.Budget.TryUse()
		if err != nil {
			return errf("ping budget error: %v", err)
		}
		if !usedOk {
			return errf("budget exhausted")
		}
	} else {
		if err := fc.Budget.RecordCritical(); err != nil {
			return errf("ping budget error: %v", err)
		}
	}

	if err := fc.Messenger.SendPlain(ctx, "[bg] "+message); err != nil {
		return errf("failed to send message: %v", err)
	}

	fc.ForkTracker.MutateBackground(func(b *fork.BackgroundState) {
		b.PingCount++
		b.OutputSent = true
	})

	return ok("sent")
}
