// Package cmd implements the scheduling core's CLI surface (spec §6.1,
// SPEC_FULL §6.6): starting the orchestrator process and managing the
// declarative schedule entries it polls. Layout and flag-binding style
// follow the teacher's cobra-based cmd/root.go.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-sched/internal/config"
)

// Version is set at build time via -ldflags "-X .../cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "goclaw-sched",
	Short: "goclaw-sched — single-user agent scheduling and fork-execution core",
	Long: "goclaw-sched drives a long-running agent conversation on a schedule: " +
		"cron routines and one-shot reminders fire prompts into a forked or " +
		"main session under a configured policy, gated by a reactive " +
		"permission arbiter and a ping budget.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $GOCLAW_SCHED_CONFIG or none)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(reminderCmd())
	rootCmd.AddCommand(routineCmd())
	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(pingBudgetCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(resetApprovalsCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("goclaw-sched %s\n", Version)
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the orchestrator (scheduler, Discord channel, webhook listener)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

// loadConfig loads and resolves config for the standalone, file-backed CLI
// subcommands (reminder/routine/webhook/ping-budget): these never need
// Discord or webhook credentials, only Paths, so Validate is deliberately
// not called here.
func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("GOCLAW_SCHED_CONFIG"); v != "" {
		return v
	}
	return ""
}

// Execute runs the root command; main() just calls this and exits 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
