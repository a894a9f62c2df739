package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/goclaw-sched/internal/agentrt"
	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
	"github.com/nextlevelbuilder/goclaw-sched/internal/prompt"
	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
	"github.com/nextlevelbuilder/goclaw-sched/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw-sched/internal/streamer"
	"github.com/nextlevelbuilder/goclaw-sched/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// activeForkClient tracks the live Client behind whichever fork is currently
// active, since agentrt.Runtime itself only keeps the main session handle.
var forkClientMu sync.Mutex
var activeForkClient agentrt.Client

func setForkClient(c agentrt.Client) {
	forkClientMu.Lock()
	activeForkClient = c
	forkClientMu.Unlock()
}

func getForkClient() agentrt.Client {
	forkClientMu.Lock()
	defer forkClientMu.Unlock()
	return activeForkClient
}

// onFire is the scheduler.FireFunc: every routine/reminder tick and every
// interactive-fork watchdog escalation passes through here.
func (o *Orchestrator) onFire(ctx context.Context, f scheduler.Fire) {
	ctx, span := telemetry.StartSpan(ctx, "fire."+fireKindLabel(f.Kind))
	defer span.End()
	span.SetAttributes(attribute.String("fire.kind", fireKindLabel(f.Kind)))

	switch f.Kind {
	case scheduler.FireRoutine:
		o.fireEntry(ctx, prompt.KindRoutine, prompt.KindRoutineBg, f.Routine.ID, f.Routine.Message, f.Routine.Policy, nil)
	case scheduler.FireReminder:
		o.fireReminder(ctx, f.Reminder)
	case scheduler.FireInteractiveIdleNudge:
		o.runInteractive(ctx, prompt.Tag(prompt.KindForkTimeout, "")+"\nYou have been idle — is there anything else, or should this fork exit?")
	case scheduler.FireInteractiveAutoExit:
		o.runInteractive(ctx, prompt.Tag(prompt.KindForkTimeout, "")+"\nIdle timeout exceeded twice — exiting this fork automatically.")
		o.forkTracker.ExitAll()
		setForkClient(nil)
	}
}

func (o *Orchestrator) fireReminder(ctx context.Context, rem *schedule.Reminder) {
	var chain *schedule.ChainContext
	if rem.MaxChain > 0 {
		chain = &schedule.ChainContext{
			ReminderID:  rem.ID,
			ChainParent: rem.ChainParent,
			Depth:       rem.ChainDepth,
			MaxChain:    rem.MaxChain,
			Policy:      rem.Policy,
			Message:     rem.Message,
		}
	}
	o.fireEntry(ctx, prompt.KindReminder, prompt.KindReminderBg, rem.ID, rem.Message, rem.Policy, chain)
}

// fireEntry assembles the prompt for one routine/reminder fire and runs it
// either on a fresh background fork or on the main session, per its policy.
func (o *Orchestrator) fireEntry(ctx context.Context, kind, bgKind prompt.Kind, id, message string, policy schedule.Policy, chain *schedule.ChainContext) {
	lock := o.runtime.Lock()

	if policy.SkipIfBusy && lock.Locked() {
		slog.Info("orchestrator: skipping fire, main session busy", "id", id)
		return
	}

	if policy.Background {
		o.fireBackground(ctx, bgKind, id, message, policy, chain)
		return
	}

	lock.Lock()
	defer lock.Unlock()

	fc := o.fireCtx(chain)
	o.setCurrentFC(fc)
	defer o.setCurrentFC(nil)

	in := prompt.FireInput{
		Kind: kind, ID: id, Message: message, Policy: policy,
		Busy: false, Forward: o.buildForward(id), Chain: chain, Location: o.loc,
	}
	if st, err := o.budget.Load(); err == nil {
		in.BudgetState = st
	}
	text := prompt.BuildPrompt(in)

	hooks := agentrt.Hooks{
		CanUseTool:  o.canUseTool,
		ExecuteTool: o.executeTool,
		Stop:        o.stopHook(policy),
	}
	o.runStreamed(ctx, o.runtime.StreamChat, text, hooks, fc)
}

// fireBackground runs message on a fresh fork cloned from the main session,
// discarding streamed text unless a tool routes it out
// (ping_user/discord_embed/report_updates) — spec §4.E. policy.Isolated is
// not consulted here: an isolated fire also starts from a clone of the main
// session's context.
func (o *Orchestrator) fireBackground(ctx context.Context, bgKind prompt.Kind, id, message string, policy schedule.Policy, chain *schedule.ChainContext) {
	o.forkTracker.EnterBackground(policy)
	defer o.forkTracker.ExitAll()
	defer setForkClient(nil)

	client, err := o.runtime.CreateForkedClient(ctx)
	if err != nil {
		slog.Error("orchestrator: fork main session for background task", "id", id, "err", err)
		return
	}
	o.sessionStore.RecordEvent(client.SessionID(), o.runtime.MainSessionID(), "forked")
	setForkClient(client)

	fc := o.fireCtx(chain)
	o.setCurrentFC(fc)
	defer o.setCurrentFC(nil)

	in := prompt.FireInput{
		Kind: bgKind, ID: id, Message: message, Policy: policy,
		Busy: o.runtime.Lock().Locked(), Forward: o.buildForward(id), Chain: chain, Location: o.loc,
	}
	if st, err := o.budget.Load(); err == nil {
		in.BudgetState = st
	}
	text := prompt.BuildPrompt(in)

	hooks := agentrt.Hooks{
		CanUseTool:  o.canUseTool,
		ExecuteTool: o.executeTool,
		Stop:        o.stopHook(policy),
	}
	if _, err := o.runtime.RunOnClient(ctx, client, text, hooks); err != nil {
		slog.Error("orchestrator: background fire failed", "id", id, "err", err)
	}

	bg := o.forkTracker.Background()
	if bg.ForkSaved {
		o.runtime.SwapClient(client, client.SessionID())
		o.sessionStore.RecordEvent(client.SessionID(), "", "promoted")
		o.sessionStore.Save(client.SessionID())
	}
}

// runInteractive drives one turn of an already-active interactive fork
// (idle nudge / auto-exit). The fork's client must already be tracked via
// activeForkClient, set when the fork was entered by enter_fork.
func (o *Orchestrator) runInteractive(ctx context.Context, text string) {
	client := getForkClient()
	if client == nil {
		return
	}

	hooks := agentrt.Hooks{CanUseTool: o.canUseTool, ExecuteTool: o.executeTool}
	_, _ = o.runtime.RunOnClient(ctx, client, text, hooks)

	state := o.forkTracker.Interactive()
	switch state.ExitAction {
	case fork.ExitSave:
		o.runtime.SwapClient(client, client.SessionID())
		o.sessionStore.RecordEvent(client.SessionID(), "", "promoted")
		o.sessionStore.Save(client.SessionID())
		o.forkTracker.ExitAll()
		setForkClient(nil)
	case fork.ExitReport, fork.ExitExit:
		o.forkTracker.ExitAll()
		setForkClient(nil)
	}
}

// onInboundMessage handles an owner message in the main channel: resolves
// to either the live interactive fork (if one is active) or the main
// session, and streams the response back progressively.
func (o *Orchestrator) onInboundMessage(ctx context.Context, content string, messageID string) {
	o.forkTracker.Touch()

	if o.forkTracker.InInteractiveFork() {
		client := getForkClient()
		if client != nil {
			hooks := agentrt.Hooks{CanUseTool: o.canUseTool, ExecuteTool: o.executeTool}
			o.runStreamed(ctx, func(ctx context.Context, prompt string, hooks agentrt.Hooks) (<-chan agentrt.Delta, <-chan error) {
				return client.StreamChat(ctx, prompt, hooks)
			}, content, hooks, nil)
			return
		}
	}

	lock := o.runtime.Lock()
	lock.Lock()
	defer lock.Unlock()

	hooks := agentrt.Hooks{CanUseTool: o.canUseTool, ExecuteTool: o.executeTool}
	o.runStreamed(ctx, o.runtime.StreamChat, content, hooks, nil)

	// enter_fork only marks fork state mid-turn (spec §4.E: "signals the
	// orchestrator to fork the next turn"); the actual fork happens here, at
	// the turn boundary, once the main session's own streamed reply is done.
	if o.forkTracker.InInteractiveFork() {
		if getForkClient() == nil {
			client, err := o.runtime.CreateForkedClient(ctx)
			if err != nil {
				slog.Error("orchestrator: fork main session for interactive fork", "err", err)
				o.forkTracker.ExitAll()
				return
			}
			o.sessionStore.RecordEvent(client.SessionID(), o.runtime.MainSessionID(), "forked")
			setForkClient(client)
		}
	}
}

// onWebhook is the webhook.Dispatcher: every authenticated webhook POST
// becomes a background-fork fire, same as a backgrounded reminder.
func (o *Orchestrator) onWebhook(webhookID, assembledPrompt string, policy schedule.Policy) {
	policy.Background = true
	o.fireBackground(context.Background(), prompt.KindWebhook, webhookID, assembledPrompt, policy, nil)
}

type streamChatFunc func(ctx context.Context, prompt string, hooks agentrt.Hooks) (<-chan agentrt.Delta, <-chan error)

// runStreamed drives one run through the streamer, publishing progressive
// edits to the Discord channel (spec §4.J). fc is nil for plain
// conversational turns that have no tool FireContext of their own — the
// canUseTool/executeTool hooks still run, they just dispatch against
// whatever FireContext setCurrentFC last recorded (possibly none).
func (o *Orchestrator) runStreamed(ctx context.Context, stream streamChatFunc, text string, hooks agentrt.Hooks, fc any) {
	s := newStreamer(o)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	deltas, errs := stream(ctx, text, hooks)
	for d := range deltas {
		s.Push(d.Text)
	}
	if err := <-errs; err != nil {
		slog.Error("orchestrator: run failed", "err", err)
	}
	s.Stop()
	<-done
}

// newStreamer builds a streamer bound to this orchestrator's Discord
// channel and clock; the channel already implements streamer.Surface.
func newStreamer(o *Orchestrator) *streamer.Streamer {
	return streamer.New(o.channel, o.clock)
}

func fireKindLabel(k scheduler.FireKind) string {
	switch k {
	case scheduler.FireRoutine:
		return "routine"
	case scheduler.FireReminder:
		return "reminder"
	case scheduler.FireInteractiveIdleNudge:
		return "interactive_idle_nudge"
	case scheduler.FireInteractiveAutoExit:
		return "interactive_auto_exit"
	default:
		return "unknown"
	}
}
