package catalog_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/catalog"
	"github.com/frahmantamala/recurpay/internal/catalog/postgres"
	"github.com/frahmantamala/recurpay/internal/chain/chaintest"
	catalogdm "github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
	"github.com/frahmantamala/recurpay/internal/core/datamodel/datamodeltest"
	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
)

func TestCatalog(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Catalog Suite")
}

const platformFee = int64(1_000_000)

var _ = Describe("Catalog Service", func() {
	var (
		ctx     context.Context
		service *catalog.Service
		org     *orgdm.Organization
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := datamodeltest.Open()
		Expect(err).NotTo(HaveOccurred())

		org = &orgdm.Organization{Name: "Acme", APIKeyID: "rk_acme", APIKeyHash: "hash"}
		Expect(db.Create(org).Error).To(Succeed())

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = catalog.NewService(postgres.NewCatalogRepository(db), platformFee, logger)
	})

	newProduct := func() *catalogdm.Product {
		return &catalogdm.Product{
			OrganizationID:  org.ID,
			Name:            "Starter pack",
			Price:           10_000_000,
			TokenMint:       chaintest.RandomAddress(),
			TokenDecimals:   6,
			MerchantAccount: chaintest.RandomAddress(),
			Active:          true,
		}
	}

	newPlan := func() *catalogdm.SubscriptionPlan {
		return &catalogdm.SubscriptionPlan{
			OrganizationID:    org.ID,
			Name:              "Monthly",
			AmountPerBilling:  11_000_000,
			BillingPeriodDays: 30,
			TokenMint:         chaintest.RandomAddress(),
			TokenDecimals:     6,
			MerchantAccount:   chaintest.RandomAddress(),
			Active:            true,
		}
	}

	Describe("products", func() {
		It("stores and returns a product to its owner", func() {
			p := newProduct()
			Expect(service.CreateProduct(ctx, p)).To(Succeed())
			Expect(p.ID).NotTo(BeEmpty())

			got, err := service.GetProduct(ctx, org.ID, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Price).To(Equal(p.Price))
		})

		It("hides products from other organizations", func() {
			p := newProduct()
			Expect(service.CreateProduct(ctx, p)).To(Succeed())

			_, err := service.GetProduct(ctx, "someone-else", p.ID)
			Expect(err).To(MatchError(errs.ErrProductNotFound))
		})

		It("hides inactive products", func() {
			inactive := newProduct()
			inactive.Active = false
			Expect(service.CreateProduct(ctx, inactive)).To(Succeed())

			_, err := service.GetProduct(ctx, org.ID, inactive.ID)
			Expect(err).To(MatchError(errs.ErrProductNotFound))
		})

		It("rejects a zero price", func() {
			p := newProduct()
			p.Price = 0

			err := service.CreateProduct(ctx, p)
			appErr, ok := errs.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errs.ErrorTypeValidation))
		})

		It("returns not found for an unknown id", func() {
			_, err := service.GetProduct(ctx, org.ID, "missing")
			Expect(err).To(MatchError(errs.ErrProductNotFound))
		})
	})

	Describe("plans", func() {
		It("stores a plan priced above the platform fee", func() {
			plan := newPlan()
			Expect(service.CreatePlan(ctx, plan)).To(Succeed())

			got, err := service.GetPlan(ctx, plan.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.BillingPeriod().Hours()).To(BeNumerically("==", 30*24))
		})

		It("rejects a plan that leaves the merchant nothing", func() {
			plan := newPlan()
			plan.AmountPerBilling = platformFee

			err := service.CreatePlan(ctx, plan)
			appErr, ok := errs.IsAppError(err)
			Expect(ok).To(BeTrue())
			details, _ := appErr.Details.(errs.ValidationErrors)
			Expect(details.Errors).To(ConsistOf(HaveField("Field", "amount_per_billing")))
		})

		It("rejects a non-positive billing period", func() {
			plan := newPlan()
			plan.BillingPeriodDays = 0

			err := service.CreatePlan(ctx, plan)
			appErr, ok := errs.IsAppError(err)
			Expect(ok).To(BeTrue())
			details, _ := appErr.Details.(errs.ValidationErrors)
			Expect(details.Errors).To(ConsistOf(HaveField("Code", string(errs.ErrCodeInvalidPeriod))))
		})

		It("returns not found for an unknown plan", func() {
			_, err := service.GetPlan(ctx, "missing")
			Expect(err).To(MatchError(errs.ErrPlanNotFound))
		})
	})
})
