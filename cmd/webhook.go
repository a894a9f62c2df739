package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

// webhookCmd manages the declarative webhook specs the HTTP listener
// validates inbound POSTs against (SPEC_FULL §3.6/§6.3).
func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage webhook triggers",
	}
	cmd.AddCommand(webhookAddCmd())
	cmd.AddCommand(webhookListCmd())
	cmd.AddCommand(webhookRemoveCmd())
	return cmd
}

// webhookAddCmd's --field flag repeats, one per accepted JSON field, each
// shaped name:type[:required][:enum=a|b][:maxlen=N].
func webhookAddCmd() *cobra.Command {
	var id, message string
	var fieldSpecs []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a webhook trigger",
	}
	cmd.Flags().StringVar(&id, "id", "", "webhook id (used in the POST /hook/<id> path)")
	cmd.Flags().StringVar(&message, "message", "", "prompt template; {field} placeholders are interpolated")
	cmd.Flags().StringArrayVar(&fieldSpecs, "field", nil, "name:type[:required][:enum=a|b][:maxlen=N] — repeatable")
	pf := bindPolicyFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if id == "" || message == "" {
			return fmt.Errorf("--id and --message are required")
		}
		fields, err := parseFieldSpecs(fieldSpecs)
		if err != nil {
			return err
		}
		policy := pf.build()
		if err := policy.Validate(); err != nil {
			return err
		}
		w := schedule.Webhook{ID: id, Message: message, Fields: fields, Policy: policy}
		mgr, err := loadManager()
		if err != nil {
			return err
		}
		if err := mgr.AddWebhook(w); err != nil {
			return fmt.Errorf("add webhook: %w", err)
		}
		fmt.Printf("webhook %s registered (POST /hook/%s)\n", w.ID, w.ID)
		return nil
	}
	return cmd
}

func parseFieldSpecs(specs []string) ([]schedule.WebhookField, error) {
	fields := make([]schedule.WebhookField, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid --field %q, want name:type[:required][:enum=a|b][:maxlen=N]", spec)
		}
		f := schedule.WebhookField{Name: parts[0], Type: parts[1]}
		for _, p := range parts[2:] {
			switch {
			case p == "required":
				f.Required = true
			case strings.HasPrefix(p, "enum="):
				f.Enum = strings.Split(strings.TrimPrefix(p, "enum="), "|")
			case strings.HasPrefix(p, "maxlen="):
				fmt.Sscanf(strings.TrimPrefix(p, "maxlen="), "%d", &f.MaxLength)
			default:
				return nil, fmt.Errorf("invalid --field %q, unrecognized token %q", spec, p)
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func webhookListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			hooks, err := mgr.ListWebhooks()
			if err != nil {
				return fmt.Errorf("list webhooks: %w", err)
			}
			if len(hooks) == 0 {
				fmt.Println("no webhooks registered")
				return nil
			}
			for _, w := range hooks {
				names := make([]string, len(w.Fields))
				for i, f := range w.Fields {
					names[i] = f.Name
				}
				fmt.Printf("%s  fields=[%s]  %s\n", w.ID, strings.Join(names, ","), w.Message)
			}
			return nil
		},
	}
}

func webhookRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a webhook trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			if err := mgr.RemoveWebhook(args[0]); err != nil {
				return fmt.Errorf("remove webhook: %w", err)
			}
			fmt.Printf("webhook %s removed\n", args[0])
			return nil
		},
	}
}
