package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

// policyFlags holds the raw flag values for the fork-policy knobs shared by
// `reminder add`, `routine add`, and `webhook add` (spec §3.3).
type policyFlags struct {
	background        bool
	skipIfBusy        bool
	model             string
	isolated          bool
	thinking          bool
	updateMainSession string
	allowPing         bool
	allowedTools      string
	blockedTools      string
}

func bindPolicyFlags(cmd *cobra.Command) *policyFlags {
	pf := &policyFlags{updateMainSession: string(schedule.DefaultUpdateMainSession), allowPing: true}
	cmd.Flags().BoolVar(&pf.background, "background", false, "run on a forked session instead of the main conversation")
	cmd.Flags().BoolVar(&pf.skipIfBusy, "skip-if-busy", false, "skip this fire entirely if the main session is already busy")
	cmd.Flags().StringVar(&pf.model, "model", "", "override the model for this fire")
	cmd.Flags().BoolVar(&pf.isolated, "isolated", false, "mark the fire as isolated in its prompt (the fork is still cloned from the main session context)")
	cmd.Flags().BoolVar(&pf.thinking, "thinking", false, "enable extended thinking for this fire")
	cmd.Flags().StringVar(&pf.updateMainSession, "update-main-session", string(schedule.DefaultUpdateMainSession), "always|on_ping|freely|blocked")
	cmd.Flags().BoolVar(&pf.allowPing, "allow-ping", true, "allow ping_user/discord_embed tools")
	cmd.Flags().StringVar(&pf.allowedTools, "allowed-tools", "", "comma-separated tool allowlist (mutually exclusive with --blocked-tools)")
	cmd.Flags().StringVar(&pf.blockedTools, "blocked-tools", "", "comma-separated tool blocklist (mutually exclusive with --allowed-tools)")
	return pf
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (pf *policyFlags) build() schedule.Policy {
	return schedule.Policy{
		Background:        pf.background,
		SkipIfBusy:        pf.skipIfBusy,
		Model:             pf.model,
		Isolated:          pf.isolated,
		Thinking:          pf.thinking,
		UpdateMainSession: schedule.UpdateMainSession(pf.updateMainSession),
		AllowPing:         pf.allowPing,
		AllowedTools:      splitCSV(pf.allowedTools),
		BlockedTools:      splitCSV(pf.blockedTools),
	}
}

func loadManager() (*schedule.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return schedule.NewManager(cfg.Paths.StateDir, true)
}
