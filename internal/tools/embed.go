package tools

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
)

// DiscordEmbedTool sends a structured message with a "bg"/"fork" footer.
// Same bookkeeping and budget gates as PingUserTool (spec §4.E).
type DiscordEmbedTool struct{}

func (DiscordEmbedTool) Name() string { return "discord_embed" }

func (DiscordEmbedTool) Handle(ctx context.Context, fc *FireContext, args map[string]any) Result {
	if fc.ForkTracker == nil || !fc.ForkTracker.InBackgroundFork() {
		return errf("discord_embed is only available in a background task")
	}
	bg := fc.ForkTracker.Background()
	if !bg.Policy.AllowPing {
		return errf("pings are disabled for this task")
	}

	critical := boolArg(args, "critical")
	fields := map[string]string{}
	for k, v := range args {
		if k == "critical" {
			continue
		}
		fields[k] = fmt.Sprintf("%v", v)
	}

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

	fields["footer"] = "bg/fork"
	if err := fc.Messenger.SendEmbed(ctx, fields); err != nil {
		return errf("failed to send embed: %v", err)
	}

	fc.ForkTracker.MutateBackground(func(b *fork.BackgroundState) {
		b.PingCount++
		b.OutputSent = true
	})

	return ok("sent")
}
