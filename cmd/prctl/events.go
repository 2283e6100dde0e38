package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/procura/api/internal/events"
	"github.com/spf13/cobra"
)

func eventsCmd() *cobra.Command {
	var (
		url     string
		subject string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow procurement request events",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := events.NewNATSSubscriber(url)
			if err != nil {
				return err
			}
			defer sub.Close()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			return sub.Subscribe(cmd.Context(), subject,
				func(_ context.Context, subject string, ev events.RequestEvent) error {
					fmt.Fprintf(out, "%s ", subject)
					return enc.Encode(ev)
				},
				func(err error) {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				},
			)
		},
	}

	defaultURL := os.Getenv("NATS_URL")
	if defaultURL == "" {
		defaultURL = "nats://127.0.0.1:4222"
	}
	cmd.Flags().StringVar(&url, "nats-url", defaultURL, "NATS server URL")
	cmd.Flags().StringVar(&subject, "subject", "procurement.request.>", "subject to follow")
	return cmd
}
