package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/agentrt"
	"github.com/nextlevelbuilder/goclaw-sched/internal/budget"
	"github.com/nextlevelbuilder/goclaw-sched/internal/channels/discord"
	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
	"github.com/nextlevelbuilder/goclaw-sched/internal/config"
	"github.com/nextlevelbuilder/goclaw-sched/internal/control"
	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
	"github.com/nextlevelbuilder/goclaw-sched/internal/inquiries"
	"github.com/nextlevelbuilder/goclaw-sched/internal/permission"
	"github.com/nextlevelbuilder/goclaw-sched/internal/prompt"
	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
	"github.com/nextlevelbuilder/goclaw-sched/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw-sched/internal/sessions"
	"github.com/nextlevelbuilder/goclaw-sched/internal/streamer"
	"github.com/nextlevelbuilder/goclaw-sched/internal/tools"
	"github.com/nextlevelbuilder/goclaw-sched/internal/webhook"
)

// Orchestrator owns the single running process: one Discord channel, one
// agent runtime, one scheduler, one webhook listener, wired together the
// way the original program's main.py and agent.py jointly did at module
// scope — here as explicit fields on one struct instead of globals.
type Orchestrator struct {
	cfg     *config.Config
	clock   clock.Clock
	channel *discord.Channel

	schedMgr    *schedule.Manager
	budget      *budget.Budget
	inquiries   *inquiries.Store
	pending     *inquiries.PendingUpdates
	forkTracker *fork.Tracker
	arbiter     *permission.Arbiter
	runtime     *agentrt.Runtime
	registry    *tools.Registry
	sched       *scheduler.Scheduler
	webhookSrv  *http.Server
	sessionStore *sessions.Store
	pgMirror     *sessions.PGMirror
	control      *control.Store

	loc *time.Location

	fcMu      sync.Mutex
	currentFC *tools.FireContext
}

// setCurrentFC records the FireContext governing whichever fire is
// currently in flight, so executeTool (invoked later, out-of-band, by the
// SDK's own tool-call dispatch) knows which one to hand each tool call.
// Fires never run concurrently on the same session — fireEntry/fireBackground
// each hold the relevant lock for their whole duration — so one field
// suffices.
func (o *Orchestrator) setCurrentFC(fc *tools.FireContext) {
	o.fcMu.Lock()
	o.currentFC = fc
	o.fcMu.Unlock()
}

func (o *Orchestrator) getCurrentFC() *tools.FireContext {
	o.fcMu.Lock()
	defer o.fcMu.Unlock()
	return o.currentFC
}

// executeTool is the agentrt Hooks.ExecuteTool callback shared by every run.
func (o *Orchestrator) executeTool(ctx context.Context, toolName string, args map[string]any) (string, bool) {
	fc := o.getCurrentFC()
	if fc == nil {
		return "no active fire context for this tool call", true
	}
	res := o.registry.Handle(ctx, fc, toolName, args)
	return res.Content, res.IsError
}

// New builds every component but does not start the scheduler, Discord
// connection, or webhook listener; call Run for that. mainClient is the
// already-initialized SDK session handle for the owner's main conversation
// — the core never constructs one itself (spec's LLM-SDK-internals
// non-goal), it only drives it through agentrt.Client.
func New(cfg *config.Config, mainClient agentrt.Client) (*Orchestrator, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}

	c := clock.Real{}

	schedMgr, err := schedule.NewManager(cfg.Paths.StateDir, true)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: schedule manager: %w", err)
	}

	bud := budget.New(cfg.Paths.StateDir, c)
	if cfg.Budget.Capacity > 0 {
		_ = bud.SetCapacity(float64(cfg.Budget.Capacity))
	}
	if cfg.Budget.RefillRateMinutes > 0 {
		_ = bud.SetRefillRate(int(cfg.Budget.RefillRateMinutes))
	}

	inq := inquiries.NewStore(cfg.Paths.StateDir, c)
	pend := inquiries.NewPendingUpdates(cfg.Paths.StateDir, c)

	ctrl, err := control.NewStore(cfg.Paths.ControlDir)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: control store: %w", err)
	}

	forkTracker := fork.NewTracker(c)
	arbiter := permission.New(forkTracker)
	runtime := agentrt.NewRuntime(mainClient, forkTracker)

	channel, err := discord.New(cfg.Discord.Token, cfg.Discord.ChannelID, cfg.Owner.DiscordUserID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: discord channel: %w", err)
	}
	arbiter.SetMessenger(channel)
	channel.SetArbiter(arbiter)

	var pgMirror *sessions.PGMirror
	if cfg.Database.Mode == "postgres" && cfg.Database.PostgresDSN != "" {
		pgMirror, err = sessions.NewPGMirror(cfg.Database.PostgresDSN)
		if err != nil {
			slog.Warn("orchestrator: postgres session-history mirror unavailable, continuing with jsonl only", "err", err)
			pgMirror = nil
		}
	}
	var mirror sessions.Mirror
	if pgMirror != nil {
		mirror = pgMirror
	}
	sessionStore := sessions.NewStore(cfg.Paths.SessionIdentity, cfg.Paths.SessionLog, c, mirror)
	if _, resumed := sessionStore.Load(); !resumed {
		sessionStore.RecordEvent(mainClient.SessionID(), "", "created")
	}
	sessionStore.Save(mainClient.SessionID())

	o := &Orchestrator{
		cfg:          cfg,
		clock:        c,
		channel:      channel,
		schedMgr:     schedMgr,
		budget:       bud,
		inquiries:    inq,
		pending:      pend,
		forkTracker:  forkTracker,
		arbiter:      arbiter,
		runtime:      runtime,
		sessionStore: sessionStore,
		pgMirror:     pgMirror,
		control:      ctrl,
		loc:          loc,
	}

	o.registry = tools.NewRegistry(
		tools.PingUserTool{},
		tools.DiscordEmbedTool{},
		tools.FollowUpChainTool{},
		tools.SaveContextTool{},
		tools.ReportUpdatesTool{},
		tools.EnterForkTool{RequestFork: o.requestFork},
		tools.ExitForkTool{},
		tools.CompactSessionTool{Compact: o.compactMainSession},
	)

	o.sched = scheduler.New(schedMgr, c, forkTracker, o.onFire)
	channel.SetInboundHandler(o.onInboundMessage)

	if cfg.Webhook.Enabled {
		handler := webhook.NewHandler(cfg.Webhook.Secret, schedMgr, o.onWebhook, nil)
		mux := http.NewServeMux()
		mux.Handle("/hook/", handler)
		o.webhookSrv = &http.Server{Addr: cfg.Webhook.Addr, Handler: mux}
	}

	return o, nil
}

// Run acquires the single-instance PID guard, starts the Discord gateway,
// the scheduler, and (if enabled) the webhook listener, and blocks until ctx
// is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := acquireSingleton(o.cfg.Paths.PidFile); err != nil {
		return err
	}
	defer releaseSingleton(o.cfg.Paths.PidFile)
	if o.pgMirror != nil {
		defer o.pgMirror.Close()
	}

	if err := o.channel.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator: start discord: %w", err)
	}
	defer o.channel.Stop(context.Background())

	if o.webhookSrv != nil {
		go func() {
			if err := o.webhookSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("orchestrator: webhook listener stopped", "err", err)
			}
		}()
		defer o.webhookSrv.Close()
	}

	go o.runControlLoop(ctx)

	o.sched.Run(ctx)
	return nil
}

// runControlLoop drains CLI-dropped approve/reset-approvals commands
// (SPEC_FULL §6.6) on the same cadence as the scheduler's poll, since a
// separate `goclaw-sched approve` invocation has no direct handle on this
// process's live Arbiter.
func (o *Orchestrator) runControlLoop(ctx context.Context) {
	ticker := o.clock.NewTicker(scheduler.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			o.applyControlCommands()
		}
	}
}

func (o *Orchestrator) applyControlCommands() {
	cmds, err := o.control.Drain()
	if err != nil {
		slog.Error("orchestrator: drain control commands", "err", err)
		return
	}
	for _, c := range cmds {
		switch c.Action {
		case control.ActionApprove:
			o.arbiter.SessionAllow(c.Tool)
			slog.Info("orchestrator: approved tool via control command", "tool", c.Tool)
		case control.ActionReset:
			o.arbiter.Reset()
			slog.Info("orchestrator: reset approvals via control command")
		}
	}
}

// fireCtx builds the per-fire FireContext the tool registry consumes —
// the design-notes replacement for the original program's process-global
// module state, constructed fresh for every single fire.
func (o *Orchestrator) fireCtx(chain *schedule.ChainContext) *tools.FireContext {
	return &tools.FireContext{
		ForkTracker: o.forkTracker,
		Budget:      o.budget,
		Pending:     o.pending,
		Messenger:   o.channel,
		Chain:       chain,
		ScheduleMgr: o.schedMgr,
		Clock:       o.clock,
		Busy:        o.runtime.Lock().Locked(),
	}
}

// canUseTool is the agentrt Hooks.CanUseTool callback shared by every run.
func (o *Orchestrator) canUseTool(ctx context.Context, toolName string, input map[string]any) permission.Decision {
	return o.arbiter.HandleToolPermission(ctx, toolName, permission.ArgHint(input))
}

// stopHook enforces the report_updates-before-finish contract for
// background-fork fires (spec §4.G); it is a no-op outside a background fork.
func (o *Orchestrator) stopHook(policy schedule.Policy) agentrt.StopFunc {
	return func(ctx context.Context) *agentrt.StopViolation {
		if !o.forkTracker.InBackgroundFork() {
			return nil
		}
		return agentrt.EnforceStop(policy.UpdateMainSession, o.forkTracker.Background())
	}
}

func (o *Orchestrator) buildForward(firingID string) []prompt.ForwardEntry {
	routines, _ := o.schedMgr.ListRoutines()
	reminders, _ := o.schedMgr.ListReminders()
	return prompt.BuildForwardSchedule(o.clock.Now(), firingID, routines, reminders, o.entryPath)
}

func (o *Orchestrator) entryPath(kind, id string) string {
	switch kind {
	case "routine":
		return fmt.Sprintf("routines/%s.md", id)
	default:
		return fmt.Sprintf("reminders/%s.md", id)
	}
}

func (o *Orchestrator) requestFork(topic string, idleTimeoutMinutes float64) {
	o.forkTracker.EnterInteractive(idleTimeoutMinutes)
	slog.Info("orchestrator: entering interactive fork", "topic", topic)
}

func (o *Orchestrator) compactMainSession(ctx context.Context) error {
	// The agentrt.Client contract (spec §1) exposes only StreamChat/Fork; an
	// explicit compact call is outside its four granted primitives, so this
	// is a deliberate no-op placeholder the SDK-specific Client implementation
	// may override by embedding its own compaction call where wired.
	o.sessionStore.RecordEvent(o.runtime.MainSessionID(), "", "compacted")
	return nil
}
