package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/recurpay/internal/auth"
	catalogdm "github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
)

var (
	seedOrgName    string
	seedWebhookURL string
	seedTokenMint  string
	seedMerchant   string
	seedDecimals   uint8
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a sample organization",
	Long:  `Create an organization with a fresh API key, one product and one monthly plan for local development.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.Close()

		keyID, secret, full, err := auth.GenerateAPIKey()
		if err != nil {
			log.Fatalf("failed to generate api key: %v", err)
		}
		hash, err := auth.HashSecret(secret, deps.Config.Security.APIKeyBcryptCost)
		if err != nil {
			log.Fatalf("failed to hash api key: %v", err)
		}

		_, webhookSecret, _, err := auth.GenerateAPIKey()
		if err != nil {
			log.Fatalf("failed to generate webhook secret: %v", err)
		}

		org := &orgdm.Organization{
			Name:          seedOrgName,
			APIKeyID:      keyID,
			APIKeyHash:    hash,
			WebhookURL:    seedWebhookURL,
			WebhookSecret: webhookSecret,
			FeeWallet:     deps.Config.Billing.PlatformFeeWallet,
		}
		if err := deps.Organizations.Create(ctx, org); err != nil {
			log.Fatalf("failed to create organization: %v", err)
		}

		product := &catalogdm.Product{
			OrganizationID:  org.ID,
			Name:            "Starter pack",
			Price:           10 * pow10(seedDecimals),
			TokenMint:       seedTokenMint,
			TokenDecimals:   seedDecimals,
			MerchantAccount: seedMerchant,
			Active:          true,
		}
		if err := deps.Catalog.CreateProduct(ctx, product); err != nil {
			log.Fatalf("failed to create product: %v", err)
		}

		plan := &catalogdm.SubscriptionPlan{
			OrganizationID:    org.ID,
			Name:              "Monthly",
			AmountPerBilling:  20*pow10(seedDecimals) + deps.Config.Billing.PlatformFee,
			BillingPeriodDays: 30,
			TokenMint:         seedTokenMint,
			TokenDecimals:     seedDecimals,
			MerchantAccount:   seedMerchant,
			Active:            true,
		}
		if err := deps.Catalog.CreatePlan(ctx, plan); err != nil {
			log.Fatalf("failed to create plan: %v", err)
		}

		fmt.Println("Seeded organization:", org.ID)
		fmt.Println("  api key:        ", full)
		fmt.Println("  webhook secret: ", webhookSecret)
		fmt.Println("  product:        ", product.ID)
		fmt.Println("  plan:           ", plan.ID)
	},
}

func pow10(n uint8) int64 {
	v := int64(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}

func init() {
	seedCmd.Flags().StringVar(&seedOrgName, "name", "Demo Merchant", "organization name")
	seedCmd.Flags().StringVar(&seedWebhookURL, "webhook-url", "", "merchant webhook endpoint")
	seedCmd.Flags().StringVar(&seedTokenMint, "mint", "", "stablecoin mint address")
	seedCmd.Flags().StringVar(&seedMerchant, "merchant-account", "", "merchant token account")
	seedCmd.Flags().Uint8Var(&seedDecimals, "decimals", 6, "token decimals")
	_ = seedCmd.MarkFlagRequired("mint")
	_ = seedCmd.MarkFlagRequired("merchant-account")
}
