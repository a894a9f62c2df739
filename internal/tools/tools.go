// Package tools implements the agent-facing tool contracts of spec §4.E as
// tagged variants sharing one handle(args) → Result entry point, per the
// design notes' instruction to model inheritance-free tool polymorphism
// this way rather than with a class hierarchy.
package tools

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw-sched/internal/budget"
	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
	"github.com/nextlevelbuilder/goclaw-sched/internal/fork"
	"github.com/nextlevelbuilder/goclaw-sched/internal/inquiries"
	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

// Result is the uniform tool outcome: either textual content the agent
// reads back, or an error message (still textual — the SDK surfaces tool
// errors to the model as content, not as a distinct transport-level error).
type Result struct {
	Content string
	IsError bool
}

func ok(content string) Result  { return Result{Content: content} }
func errf(format string, a ...any) Result {
	return Result{Content: fmt.Sprintf(format, a...), IsError: true}
}

// Messenger is the abstract surface ping_user/discord_embed publish to.
type Messenger interface {
	SendPlain(ctx context.Context, text string) error
	SendEmbed(ctx context.Context, fields map[string]string) error
}

// FireContext is the explicit, per-fire value every tool handler receives —
// the design notes' FireContext replacement for the source program's
// process-wide module globals (channel pointer, fork flags, chain context).
// It is constructed fresh by the orchestrator for each fire and passed
// through every tool invocation; nothing here is a package-level global.
type FireContext struct {
	ForkTracker *fork.Tracker
	Budget      *budget.Budget
	Pending     *inquiries.PendingUpdates
	Messenger   Messenger
	Chain       *schedule.ChainContext // non-nil only while a chain reminder's fire is in flight
	ScheduleMgr *schedule.Manager
	Clock       clock.Clock
	Busy        bool
}

// Tool is the uniform handler interface every tool variant implements.
type Tool interface {
	Name() string
	Handle(ctx context.Context, fc *FireContext, args map[string]any) Result
}

// Registry resolves a tool name to its handler, honoring the policy-driven
// allow/deny restrictions applied by the permission arbiter upstream (this
// registry itself does not gate calls — it only dispatches them).
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: map[string]Tool{}}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

func (r *Registry) Handle(ctx context.Context, fc *FireContext, name string, args map[string]any) Result {
	t, ok := r.tools[name]
	if !ok {
		return errf("unknown tool %q", name)
	}
	return t.Handle(ctx, fc, args)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]any, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

func floatArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}
