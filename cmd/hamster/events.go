package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream pool events",
	Long: `Stream pool events from the manager until interrupted.

Examples:
  hamster events
  hamster events --type deployment.placed --type resource.offline`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetStringSlice("type")

		c, err := connect(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		eventTypes := make([]events.EventType, 0, len(filter))
		for _, t := range filter {
			eventTypes = append(eventTypes, events.EventType(t))
		}

		err = c.WatchEvents(ctx, eventTypes, func(e *events.Event) error {
			if jsonOutput(cmd) {
				return printJSON(e)
			}
			fmt.Printf("%s  %-24s %s\n", e.Timestamp.Format(time.RFC3339), e.Type, e.Message)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	eventsCmd.Flags().StringSlice("type", nil, "Only show events of this type (repeatable)")
}
