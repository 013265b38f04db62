package revenue_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/core/datamodel/datamodeltest"
	revenuedm "github.com/frahmantamala/recurpay/internal/core/datamodel/revenue"
	"github.com/frahmantamala/recurpay/internal/revenue"
	revenuePostgres "github.com/frahmantamala/recurpay/internal/revenue/postgres"
)

func TestRevenue(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Revenue Suite")
}

func ptr(s string) *string { return &s }

var _ = Describe("Service.Summary", func() {
	var (
		ctx     context.Context
		service *revenue.Service
		now     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)

		db, err := datamodeltest.Open()
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())

		rows := []revenuedm.PlatformRevenue{
			{OrganizationID: "org-1", SubscriptionPaymentID: ptr("sp-1"), FeeAmount: 1_000_000, MerchantAmount: 9_000_000, TotalAmount: 10_000_000, GasCost: 5_000, CreatedAt: now.Add(-48 * time.Hour)},
			{OrganizationID: "org-1", SubscriptionPaymentID: ptr("sp-2"), FeeAmount: 1_000_000, MerchantAmount: 9_000_000, TotalAmount: 10_000_000, GasCost: 5_000, CreatedAt: now.Add(-24 * time.Hour)},
			{OrganizationID: "org-1", PaymentID: ptr("p-1"), FeeAmount: 1_000_000, MerchantAmount: 10_000_000, TotalAmount: 11_000_000, GasCost: 7_000, CreatedAt: now.Add(-time.Hour)},
			{OrganizationID: "org-1", PaymentID: ptr("p-old"), FeeAmount: 1_000_000, MerchantAmount: 1_000_000, TotalAmount: 2_000_000, GasCost: 1, CreatedAt: now.Add(-90 * 24 * time.Hour)},
			{OrganizationID: "org-2", PaymentID: ptr("p-2"), FeeAmount: 1_000_000, MerchantAmount: 4_000_000, TotalAmount: 5_000_000, GasCost: 1, CreatedAt: now.Add(-time.Hour)},
		}
		Expect(db.Create(&rows).Error).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		repo := revenuePostgres.NewRevenueRepository(sqlx.NewDb(sqlDB, "sqlite3"))
		service = revenue.NewService(repo, logger).WithClock(func() time.Time { return now })
	})

	It("sums the trailing thirty days for one organization", func() {
		summary, err := service.Summary(ctx, "org-1", time.Time{}, time.Time{})
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Settlements).To(Equal(int64(3)))
		Expect(summary.SubscriptionPayments).To(Equal(int64(2)))
		Expect(summary.OneTimePayments).To(Equal(int64(1)))
		Expect(summary.FeeAmount).To(Equal(int64(3_000_000)))
		Expect(summary.MerchantAmount).To(Equal(int64(28_000_000)))
		Expect(summary.TotalAmount).To(Equal(int64(31_000_000)))
		Expect(summary.GasCost).To(Equal(int64(17_000)))
		Expect(summary.NetFee).To(Equal(int64(2_983_000)))
		Expect(summary.TotalAmount).To(Equal(summary.FeeAmount + summary.MerchantAmount))
	})

	It("honours explicit bounds", func() {
		summary, err := service.Summary(ctx, "org-1", now.Add(-30*time.Hour), now.Add(-2*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Settlements).To(Equal(int64(1)))
		Expect(summary.TotalAmount).To(Equal(int64(10_000_000)))
	})

	It("returns zeros for an empty window", func() {
		summary, err := service.Summary(ctx, "org-3", time.Time{}, time.Time{})
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Settlements).To(BeZero())
		Expect(summary.NetFee).To(BeZero())
	})

	It("rejects inverted and oversized windows", func() {
		_, err := service.Summary(ctx, "org-1", now, now.Add(-time.Hour))
		Expect(err).To(MatchError(errs.NewValidationFieldError("from", "", errs.ErrCodeValidationFailed)))

		_, err = service.Summary(ctx, "org-1", now.Add(-400*24*time.Hour), now)
		Expect(err).To(HaveOccurred())
	})
})
