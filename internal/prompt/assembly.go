package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/budget"
	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

// Kind identifies which tag wraps the assembled prompt.
type Kind string

const (
	KindRoutine      Kind = "routine"
	KindRoutineBg    Kind = "routine-bg"
	KindReminder     Kind = "reminder"
	KindReminderBg   Kind = "reminder-bg"
	KindWebhook      Kind = "webhook"
	KindForkTimeout  Kind = "fork-timeout"
	KindForkStarted  Kind = "fork-started"
)

// Tag renders the leading "[kind:id]" (or bare "[kind]" for the two
// fork-lifecycle pseudo-kinds) line.
func Tag(kind Kind, id string) string {
	if kind == KindForkTimeout || kind == KindForkStarted {
		return fmt.Sprintf("[%s]", kind)
	}
	return fmt.Sprintf("[%s:%s]", kind, id)
}

// FireInput bundles everything needed to assemble one fire's prompt.
type FireInput struct {
	Kind         Kind
	ID           string
	Message      string
	Policy       schedule.Policy
	Busy         bool
	BudgetState  budget.State
	Forward      []ForwardEntry
	Chain        *schedule.ChainContext // nil unless this is a chain reminder fire
	Location     *time.Location
}

// BuildPrompt assembles the exact text handed to the agent for one fire.
//
// A plain foreground fire (no bg preamble, no chain context) puts the tag
// and the message on the same line — spec §8.2 scenario 1 and
// build_routine_prompt in the original both deliver exactly
// "[routine:<id>] message", not a tag line followed by a blank line. The
// "tag on its own line, blank line, then body" shape is reserved for fires
// that actually have a preamble or chain context to separate from the body.
func BuildPrompt(in FireInput) string {
	if !in.Policy.Background && in.Chain == nil {
		return Tag(in.Kind, in.ID) + " " + in.Message
	}

	var b strings.Builder
	b.WriteString(Tag(in.Kind, in.ID))
	b.WriteString("\n")

	if in.Policy.Background {
		b.WriteString(buildBgPreamble(in))
	}

	if in.Chain != nil {
		b.WriteString(buildChainContext(*in.Chain))
	}

	b.WriteString("\n")
	b.WriteString(in.Message)
	return b.String()
}

func buildBgPreamble(in FireInput) string {
	var b strings.Builder

	if in.Policy.AllowPing {
		b.WriteString("You may send the user a message using ping_user or discord_embed if something warrants their attention.\n")
	} else {
		b.WriteString("Pings are disabled for this task — ping_user and discord_embed are not available.\n")
	}

	b.WriteString(updateModeParagraph(in.Policy.UpdateMainSession))
	b.WriteString("\n")

	if in.Busy && in.Policy.AllowPing {
		b.WriteString("The main conversation is currently busy — a non-critical ping right now will be refused; report_updates remains open.\n")
	}

	b.WriteString(fmt.Sprintf("Ping budget: %s\n", in.BudgetState.FullStatusString()))
	b.WriteString("You get at most ONE non-critical ping per run of this task.\n")
	b.WriteString(regretHeuristic(in.Policy.UpdateMainSession))

	b.WriteString("\nUpcoming background tasks:\n")
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}
	b.WriteString(FormatForwardSchedule(in.Forward, loc))

	if len(in.Policy.AllowedTools) > 0 {
		b.WriteString(fmt.Sprintf("\nAllowed tools for this run: %s\n", strings.Join(in.Policy.AllowedTools, ", ")))
	}
	if len(in.Policy.BlockedTools) > 0 {
		b.WriteString(fmt.Sprintf("\nBlocked tools for this run: %s\n", strings.Join(in.Policy.BlockedTools, ", ")))
	}

	if in.Policy.Isolated {
		b.WriteString("\nThis is a fresh isolated context, not a clone of the main conversation.\n")
	} else {
		b.WriteString("\nPersistent — compact when large.\n")
	}

	return b.String()
}

func updateModeParagraph(mode schedule.UpdateMainSession) string {
	switch mode {
	case schedule.UpdateAlways:
		return "You MUST call report_updates before finishing, even if there is nothing notable to say."
	case schedule.UpdateFreely:
		return "Call report_updates whenever you have something worth telling the user; there is no requirement to do so."
	case schedule.UpdateBlocked:
		return "report_updates is disabled for this task; anything you report will be discarded."
	case schedule.UpdateOnPing:
		fallthrough
	default:
		return "If you send a ping, you MUST also call report_updates before finishing so the main conversation has context."
	}
}

func regretHeuristic(mode schedule.UpdateMainSession) string {
	if mode == schedule.UpdateBlocked {
		return "Before pinging, consider: would the user regret not hearing this, given reports are otherwise discarded for this task?\n"
	}
	return "Before pinging, consider: would the user regret being interrupted for this right now?\n"
}

func buildChainContext(c schedule.ChainContext) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("\nCHAIN CONTEXT: check %d of %d.\n", c.Depth+1, c.MaxChain+1))
	if c.IsFinal() {
		b.WriteString("This is the FINAL check — follow_up_chain is NOT available.\n")
	} else {
		b.WriteString("Call follow_up_chain(minutes) to schedule the next check, or say nothing to end the chain.\n")
	}
	return b.String()
}
