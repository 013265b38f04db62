package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/recurpay/internal/auth"
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Organization commands",
}

var (
	orgWebhookURL    string
	orgWebhookSecret string
)

var orgWebhookCmd = &cobra.Command{
	Use:   "webhook [organization-id]",
	Short: "Set the webhook endpoint of an organization",
	Long:  `Set the webhook URL and signing secret. A new secret is generated unless one is given.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		secret := orgWebhookSecret
		if secret == "" {
			if _, secret, _, err = auth.GenerateAPIKey(); err != nil {
				return fmt.Errorf("failed to generate webhook secret: %w", err)
			}
		}

		if err := deps.Organizations.UpdateWebhook(ctx, args[0], orgWebhookURL, secret); err != nil {
			return err
		}

		fmt.Println("webhook url:   ", orgWebhookURL)
		fmt.Println("webhook secret:", secret)
		return nil
	},
}

func init() {
	orgWebhookCmd.Flags().StringVar(&orgWebhookURL, "url", "", "webhook endpoint, empty disables delivery")
	orgWebhookCmd.Flags().StringVar(&orgWebhookSecret, "secret", "", "signing secret, generated when empty")

	orgCmd.AddCommand(orgWebhookCmd)
	rootCmd.AddCommand(orgCmd)
}
