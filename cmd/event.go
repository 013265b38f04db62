package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/recurpay/internal/core/events"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Manage events: publish merchant events through the bus and inspect its handlers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a merchant event",
	Long:  `Publish a merchant event on the wired bus so it is queued as a webhook and mirrored to AMQP when configured`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishEvent(cmd.Context(), args[0])
	},
}

var listEventsCmd = &cobra.Command{
	Use:   "list",
	Short: "List merchant event types",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(strings.Join(events.MerchantEventTypes, "\n"))
	},
}

var (
	eventOrganization string
	eventData         string
)

func publishEvent(ctx context.Context, eventType string) error {
	if !slices.Contains(events.MerchantEventTypes, eventType) {
		return fmt.Errorf("unknown event type %q, expected one of %s", eventType, strings.Join(events.MerchantEventTypes, ", "))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	deps, err := initializeDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	event := events.NewBillingEvent(eventOrganization, eventType, map[string]interface{}{
		"message": eventData,
		"source":  "cli-command",
	})

	deps.Logger.Info("publishing event", "event_type", eventType, "event_id", event.EventID(), "organization_id", eventOrganization)

	if err := deps.Bus.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	deps.Logger.Info("event published")
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventOrganization, "org", "", "organization id the event belongs to")
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "event data message")
	_ = publishEventCmd.MarkFlagRequired("org")

	eventCmd.AddCommand(publishEventCmd)
	eventCmd.AddCommand(listEventsCmd)

	rootCmd.AddCommand(eventCmd)
}
