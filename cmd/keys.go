package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/recurpay/internal/auth"
	"github.com/frahmantamala/recurpay/internal/authority"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a fresh authority keypair",
	Long:  `Print a new ed25519 authority address and its base58 secret for AUTHORITY_SECRET_KEY`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := authority.Generate()
		if err != nil {
			return err
		}
		fmt.Println("address:", a.Address())
		fmt.Println("secret: ", a.SecretBase58())
		return nil
	},
}

var (
	triggerTTL  time.Duration
	triggerBase string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [billing|webhooks|sessions]",
	Short: "Call a scheduler endpoint with a short-lived token",
	Long:  `Issue an HS256 trigger token from the configured cron secret and POST to the matching /api/v1/cron endpoint`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := map[string]string{
			"billing":  "/api/v1/cron/billing",
			"webhooks": "/api/v1/cron/webhooks",
			"sessions": "/api/v1/cron/sessions/expire",
		}
		path, ok := paths[args[0]]
		if !ok {
			return fmt.Errorf("unknown trigger %q", args[0])
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		token, err := auth.IssueTriggerToken(cfg.Security.CronSecret, triggerTTL)
		if err != nil {
			return fmt.Errorf("failed to issue trigger token: %w", err)
		}

		base := triggerBase
		if base == "" {
			base = cfg.Server.BaseURL
		}
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout+10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("trigger request failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		fmt.Printf("%s %s\n", resp.Status, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 300 {
			return fmt.Errorf("trigger returned %s", resp.Status)
		}
		return nil
	},
}

func init() {
	triggerCmd.Flags().DurationVar(&triggerTTL, "ttl", 5*time.Minute, "token lifetime")
	triggerCmd.Flags().StringVar(&triggerBase, "base-url", "", "server base url, defaults to http_server.base_url")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(triggerCmd)
}
