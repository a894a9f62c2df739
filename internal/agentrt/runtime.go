// Package agentrt defines the Agent Session Runtime contract (spec §4.G):
// a persistent main session, forked clones, swap-and-promote, and stop-hook
// enforcement. It depends only on the four primitives spec §1 grants from
// the upstream LLM agent SDK — streaming text deltas, a canUseTool hook, a
// Stop hook, and fork/resume by opaque session id — and never reimplements
// the SDK's own reasoning loop.
package agentrt

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
	"github.com/nextlevelbuilder/goclaw-sched/internal/permission"
	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

// Delta is one streamed text fragment.
type Delta struct {
	Text string
}

// CanUseToolFunc is the canUseTool hook signature.
type CanUseToolFunc func(ctx context.Context, toolName string, input map[string]any) permission.Decision

// StopFunc is the Stop hook signature: returning a non-empty message means
// the SDK should be told to keep going (a "systemMessage" violation), nil
// means the turn may end.
type StopFunc func(ctx context.Context) *StopViolation

// StopViolation carries the systemMessage asking the agent to call a
// specific tool before the turn may end.
type StopViolation struct {
	Message string
}

// ExecuteToolFunc actually runs a tool the model decided to call, once
// CanUseTool has granted it. This is the core's own internal.tools.Registry
// dispatch, threaded through the opaque SDK boundary — the SDK drives the
// reasoning loop and decides what to call, this hook is where that call
// actually executes against this module's tool implementations.
type ExecuteToolFunc func(ctx context.Context, toolName string, args map[string]any) (content string, isError bool)

// Hooks bundles the callbacks a streamed run is governed by.
type Hooks struct {
	CanUseTool  CanUseToolFunc
	ExecuteTool ExecuteToolFunc
	Stop        StopFunc
}

// Client is an opaque SDK session handle — either the live main session or
// a forked clone of it.
type Client interface {
	SessionID() string
	// StreamChat runs prompt on this client under hooks, returning a channel
	// of text deltas and a channel that receives at most one terminal error.
	StreamChat(ctx context.Context, prompt string, hooks Hooks) (<-chan Delta, <-chan error)
	// Fork returns a clone of this client sharing context up to this point.
	Fork(ctx context.Context) (Client, error)
}

// NewClientFunc constructs the main session's Client against whatever LLM
// agent SDK is actually wired in. This package never ships an
// implementation (spec §1's SDK-internals non-goal): cmd/start.go calls
// this hook at process startup and fails loudly if nothing registered it,
// the same way the upstream SDK's own session object is injected rather
// than constructed here.
var NewClientFunc func(ctx context.Context, stateDir string) (Client, error)

// Runtime owns the single live main session per owner and coordinates forks.
type Runtime struct {
	lock        *AgentLock
	main        Client
	forkTracker *fork.Tracker
	exitCh      chan ExitResult
}

// ExitResult is what PopForkExit hands to the idle watchdog / orchestrator.
type ExitResult struct {
	Action  fork.ExitAction
	Summary string
	Client  Client // non-nil when Action == ExitSave and promotion should occur
}

func NewRuntime(main Client, forkTracker *fork.Tracker) *Runtime {
	return &Runtime{
		lock:        NewAgentLock(),
		main:        main,
		forkTracker: forkTracker,
		exitCh:      make(chan ExitResult, 8),
	}
}

func (r *Runtime) Lock() *AgentLock { return r.lock }

func (r *Runtime) MainSessionID() string {
	if r.main == nil {
		return ""
	}
	return r.main.SessionID()
}

// StreamChat runs prompt on the live main session.
func (r *Runtime) StreamChat(ctx context.Context, prompt string, hooks Hooks) (<-chan Delta, <-chan error) {
	return r.main.StreamChat(ctx, prompt, hooks)
}

// CreateForkedClient clones the current main session.
func (r *Runtime) CreateForkedClient(ctx context.Context) (Client, error) {
	c, err := r.main.Fork(ctx)
	if err != nil {
		return nil, fmt.Errorf("agentrt: fork main session: %w", err)
	}
	return c, nil
}

// RunOnClient executes prompt on client and returns the resulting session id.
func (r *Runtime) RunOnClient(ctx context.Context, client Client, prompt string, hooks Hooks) (string, error) {
	deltas, errs := client.StreamChat(ctx, prompt, hooks)
	for range deltas {
		// Background forks discard streamed text unless a tool call routes
		// it through ping_user/discord_embed/report_updates; this loop only
		// drains the channel so StreamChat's goroutine can finish.
	}
	if err := <-errs; err != nil {
		return client.SessionID(), err
	}
	return client.SessionID(), nil
}

// SwapClient adopts client as the new main session (promotion).
func (r *Runtime) SwapClient(client Client, sessionID string) {
	r.main = client
}

// PushForkExit is called by fork completion handlers (or the idle watchdog)
// to hand an exit decision to the orchestrator.
func (r *Runtime) PushForkExit(res ExitResult) {
	select {
	case r.exitCh <- res:
	default:
	}
}

// PopForkExit drains the next pending exit decision, if any.
func (r *Runtime) PopForkExit() (ExitResult, bool) {
	select {
	case res := <-r.exitCh:
		return res, true
	default:
		return ExitResult{}, false
	}
}

// EnforceStop applies the stop-hook contract table (spec §4.G) for a
// background fork about to finish its turn.
func EnforceStop(mode schedule.UpdateMainSession, bg fork.BackgroundState) *StopViolation {
	switch mode {
	case schedule.UpdateAlways:
		if !bg.Reported {
			return &StopViolation{Message: "call report_updates before finishing this background task"}
		}
	case schedule.UpdateOnPing:
		if bg.OutputSent && !bg.Reported {
			return &StopViolation{Message: "call report_updates before finishing this background task"}
		}
	case schedule.UpdateFreely, schedule.UpdateBlocked:
		// always pass; blocked discards any report anyway.
	}
	return nil
}
