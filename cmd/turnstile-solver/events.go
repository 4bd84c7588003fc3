package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"turnstile-solver/config"
	"turnstile-solver/eventbus"
)

// eventsCmd tails outcome events published by serve.
func eventsCmd() *cobra.Command {
	var natsURL, subject string

	cmd := &cobra.Command{
		Use:          "events",
		Short:        "Print solve outcome events from NATS",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv(config.Default())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("nats") || cfg.NATSURL == "" {
				cfg.NATSURL = natsURL
			}
			if cmd.Flags().Changed("subject") {
				cfg.NATSSubject = subject
			}

			bus, err := eventbus.NewNATSBus(eventbus.NATSConfig{
				URL:     cfg.NATSURL,
				Subject: cfg.NATSSubject,
				Name:    "turnstile-solver-events",
			})
			if err != nil {
				return err
			}
			defer bus.Close()

			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			if _, err := bus.Subscribe(ctx, func(evt eventbus.Event) {
				b, _ := json.MarshalIndent(evt, "", "  ")
				fmt.Fprintf(out, "[%s] %s %s\n%s\n", time.Now().Format(time.RFC3339), evt.Type, evt.TaskID, string(b))
			}); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}

			fmt.Fprintf(out, "listening on %s\n", bus.Subject())
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats", "nats://127.0.0.1:4222", "NATS URL (NATS_URL)")
	cmd.Flags().StringVar(&subject, "subject", eventbus.DefaultSubject, "Subject to listen on (SOLVER_NATS_SUBJECT)")
	return cmd
}
