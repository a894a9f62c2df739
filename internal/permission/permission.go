// Package permission implements the Discord-reaction-based permission
// arbiter gating every tool call from the agent SDK's canUseTool hook
// (spec §4.D), ported from the original program's permissions.py.
package permission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
)

// Emoji constants for the approval reactions.
const (
	Approve = "✅"
	Deny    = "❌"
	Always  = "🔓"
)

const approvalTimeout = 60 * time.Second

// Decision is the arbiter's allow/deny verdict.
type Decision struct {
	Allowed bool
	Reason  string // populated when Allowed is false
}

func allow() Decision          { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Messenger is the abstract chat surface the arbiter posts approval
// requests to and edits afterwards — satisfied by the Discord channel
// adapter, but kept independent of it per spec's non-goal on Discord UI
// internals.
type Messenger interface {
	SendApprovalRequest(ctx context.Context, label string) (messageID string, err error)
	EditMessage(ctx context.Context, messageID, content string) error
}

// pendingApproval mirrors the original's _PendingApproval: a cancellation
// signal plus a single mutable result slot. Resolution happens exactly
// once; resolve_approval / cancel_pending are both safe to call from any
// goroutine because the channel send below is non-blocking and guarded.
type pendingApproval struct {
	resultCh chan string // buffered(1); receives the chosen emoji, or is closed with no value to signal cancellation
	once     sync.Once
}

func (p *pendingApproval) resolve(emoji string) {
	p.once.Do(func() {
		p.resultCh <- emoji
		close(p.resultCh)
	})
}

func (p *pendingApproval) cancel() {
	p.once.Do(func() {
		close(p.resultCh)
	})
}

// Arbiter holds the process-singleton approval state.
type Arbiter struct {
	mu            sync.Mutex
	dontAsk       bool
	sessionAllow  map[string]bool
	pending       map[string]*pendingApproval
	messenger     Messenger
	forkTracker   *fork.Tracker
}

func New(forkTracker *fork.Tracker) *Arbiter {
	return &Arbiter{
		dontAsk:      true,
		sessionAllow: map[string]bool{},
		pending:      map[string]*pendingApproval{},
		forkTracker:  forkTracker,
	}
}

func (a *Arbiter) SetMessenger(m Messenger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messenger = m
}

func (a *Arbiter) DontAsk() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dontAsk
}

func (a *Arbiter) SetDontAsk(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dontAsk = v
}

func (a *Arbiter) IsSessionAllowed(toolName string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionAllow[toolName]
}

func (a *Arbiter) SessionAllow(toolName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionAllow[toolName] = true
}

// Reset clears session-allow and cancels all pending approvals (bound to
// resolve as deny for their waiters). Called on /clear.
func (a *Arbiter) Reset() {
	a.mu.Lock()
	pending := a.pending
	a.pending = map[string]*pendingApproval{}
	a.sessionAllow = map[string]bool{}
	a.mu.Unlock()

	for _, p := range pending {
		p.cancel()
	}
}

// ResolveApproval is called from the Discord reaction handler when the
// owner reacts to a pending approval message.
func (a *Arbiter) ResolveApproval(messageID, emoji string) {
	a.mu.Lock()
	p, ok := a.pending[messageID]
	if ok {
		delete(a.pending, messageID)
	}
	a.mu.Unlock()
	if ok {
		p.resolve(emoji)
	}
}

// HandleToolPermission is the canUseTool callback: bg forks deny outright,
// don't-ask mode consults the session allow-list, otherwise an interactive
// approval round-trip runs.
func (a *Arbiter) HandleToolPermission(ctx context.Context, toolName string, argHint string) Decision {
	if a.forkTracker != nil && a.forkTracker.InBackgroundFork() {
		return deny(fmt.Sprintf("%s is not allowed", toolName))
	}
	if a.DontAsk() {
		if a.IsSessionAllowed(toolName) {
			return allow()
		}
		return deny(fmt.Sprintf("%s is not allowed", toolName))
	}
	return a.requestApproval(ctx, toolName, argHint)
}

func (a *Arbiter) requestApproval(ctx context.Context, toolName, argHint string) Decision {
	if a.IsSessionAllowed(toolName) {
		return allow()
	}

	a.mu.Lock()
	messenger := a.messenger
	a.mu.Unlock()
	if messenger == nil {
		return deny("failed to send approval request")
	}

	label := formatToolLabel(toolName, argHint)

	msgID, err := messenger.SendApprovalRequest(ctx, label)
	if err != nil {
		return deny("failed to send approval request")
	}

	p := &pendingApproval{resultCh: make(chan string, 1)}
	a.mu.Lock()
	a.pending[msgID] = p
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.pending, msgID)
		a.mu.Unlock()
	}()

	// A bounded, cancellation-safe wait: select on the approval channel, the
	// caller's context, and a timer — never a bare future whose cancellation
	// could race the SDK's own transport loop (see permission arbiter design
	// note). The channel-based pendingApproval plus explicit timer is Go's
	// analogue of the anyio Event+fail_after pairing the callback's origin
	// program required.
	timer := time.NewTimer(approvalTimeout)
	defer timer.Stop()

	select {
	case emoji, ok := <-p.resultCh:
		if !ok {
			messenger.EditMessage(ctx, msgID, fmt.Sprintf("~~%s~~ — cancelled", label))
			return deny("approval cancelled")
		}
		switch emoji {
		case Approve:
			messenger.EditMessage(ctx, msgID, fmt.Sprintf("%s — allowed", label))
			return allow()
		case Always:
			a.SessionAllow(toolName)
			messenger.EditMessage(ctx, msgID, fmt.Sprintf("%s — always allowed", label))
			return allow()
		default:
			messenger.EditMessage(ctx, msgID, fmt.Sprintf("~~%s~~ — denied", label))
			return deny("denied via Discord")
		}
	case <-timer.C:
		messenger.EditMessage(ctx, msgID, fmt.Sprintf("~~%s~~ — timed out", label))
		return deny("approval timed out")
	case <-ctx.Done():
		return deny("approval cancelled")
	}
}
