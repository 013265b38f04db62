package subscription_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/authority"
	"github.com/frahmantamala/recurpay/internal/catalog"
	catalogPostgres "github.com/frahmantamala/recurpay/internal/catalog/postgres"
	"github.com/frahmantamala/recurpay/internal/chain"
	"github.com/frahmantamala/recurpay/internal/chain/chaintest"
	catalogdm "github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
	"github.com/frahmantamala/recurpay/internal/core/datamodel/datamodeltest"
	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
	settledm "github.com/frahmantamala/recurpay/internal/core/datamodel/settlement"
	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/core/events"
	"github.com/frahmantamala/recurpay/internal/delegation"
	"github.com/frahmantamala/recurpay/internal/organization"
	orgPostgres "github.com/frahmantamala/recurpay/internal/organization/postgres"
	"github.com/frahmantamala/recurpay/internal/settlement"
	settlementPostgres "github.com/frahmantamala/recurpay/internal/settlement/postgres"
	"github.com/frahmantamala/recurpay/internal/subscription"
	subscriptionPostgres "github.com/frahmantamala/recurpay/internal/subscription/postgres"
)

func TestSubscription(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Subscription Service Suite")
}

type recordingNotifier struct {
	mu    sync.Mutex
	types []string
}

func (n *recordingNotifier) Notify(_ context.Context, _, eventType string, _ map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, eventType)
	return nil
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.types...)
}

// gatedExecutor holds the first ExecuteFirst call until release is closed.
type gatedExecutor struct {
	next    subscription.FirstCycleExecutor
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedExecutor) ExecuteFirst(ctx context.Context, t settlement.Target) settlement.Result {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.next.ExecuteFirst(ctx, t)
}

var _ = Describe("CanTransition", func() {
	DescribeTable("transition table",
		func(from, to subdm.Status, allowed bool) {
			Expect(subscription.CanTransition(from, to)).To(Equal(allowed))
		},
		Entry("pending to active", subdm.StatusPendingApproval, subdm.StatusActive, true),
		Entry("pending to cancelled", subdm.StatusPendingApproval, subdm.StatusCancelled, true),
		Entry("pending to paused", subdm.StatusPendingApproval, subdm.StatusPaused, false),
		Entry("active to paused", subdm.StatusActive, subdm.StatusPaused, true),
		Entry("active to expired", subdm.StatusActive, subdm.StatusExpired, true),
		Entry("paused to active", subdm.StatusPaused, subdm.StatusActive, true),
		Entry("paused to expired", subdm.StatusPaused, subdm.StatusExpired, false),
		Entry("cancelled is terminal", subdm.StatusCancelled, subdm.StatusActive, false),
		Entry("expired is terminal", subdm.StatusExpired, subdm.StatusActive, false),
	)
})

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		gateway  *chaintest.Gateway
		auth     *authority.Authority
		notifier *recordingNotifier
		service  *subscription.Service
		deps     subscription.Dependencies
		newSvc   func(subscription.Dependencies) *subscription.Service
		org      *orgdm.Organization
		plan     *catalogdm.SubscriptionPlan
		payer    string
		now      time.Time
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = datamodeltest.Open()
		Expect(err).NotTo(HaveOccurred())
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }

		gateway = chaintest.New()
		auth, err = authority.Generate()
		Expect(err).NotTo(HaveOccurred())
		notifier = &recordingNotifier{}

		orgService := organization.NewService(orgPostgres.NewOrganizationRepository(db), logger)
		catalogService := catalog.NewService(catalogPostgres.NewCatalogRepository(db), 1_000_000, logger)
		manager := delegation.NewManager(gateway, auth, logger).WithClock(clock)
		engine := settlement.NewEngine(settlementPostgres.NewSettlementRepository(db), gateway, manager, auth, notifier,
			settlement.Config{ConfirmAttempts: 2}, logger).WithClock(clock)

		org = &orgdm.Organization{Name: "Acme", APIKeyID: "key-1", APIKeyHash: "hash", FeeWallet: chaintest.RandomAddress()}
		Expect(orgService.Create(ctx, org)).To(Succeed())

		plan = &catalogdm.SubscriptionPlan{
			OrganizationID:    org.ID,
			Name:              "Monthly",
			AmountPerBilling:  11_000_000,
			BillingPeriodDays: 30,
			TokenMint:         chaintest.RandomAddress(),
			TokenDecimals:     6,
			MerchantAccount:   chaintest.RandomAddress(),
			Active:            true,
		}
		Expect(catalogService.CreatePlan(ctx, plan)).To(Succeed())

		deps = subscription.Dependencies{
			Plans:         catalogService,
			Organizations: orgService,
			Delegation:    manager,
			Confirmer:     gateway,
			Executor:      engine,
			Notifier:      notifier,
		}
		newSvc = func(d subscription.Dependencies) *subscription.Service {
			return subscription.NewService(subscriptionPostgres.NewSubscriptionRepository(db), d,
				subscription.Config{PlatformFee: 1_000_000, ConfirmAttempts: 2}, logger).WithClock(clock)
		}
		service = newSvc(deps)

		payer = chaintest.RandomAddress()
	})

	approve := func(total int64) string {
		gateway.Delegate(payer, plan.TokenMint, auth.Address(), 500_000_000, total)
		sig := chaintest.RandomSignature()
		gateway.Land(sig)
		return sig
	}

	Describe("Create", func() {
		It("stores a pending subscription with the plan split and returns the allowance", func() {
			sub, allowance, err := service.Create(ctx, org.ID, subscription.CreateSubscriptionDTO{PlanID: plan.ID, PayerWallet: payer})

			Expect(err).NotTo(HaveOccurred())
			Expect(sub.Status).To(Equal(subdm.StatusPendingApproval))
			Expect(sub.TotalAmount).To(Equal(int64(11_000_000)))
			Expect(sub.MerchantAmount).To(Equal(int64(10_000_000)))
			Expect(sub.PlatformAmount).To(Equal(int64(1_000_000)))
			Expect(allowance.TotalAllowance).To(Equal(int64(132_000_000)))
			Expect(allowance.DelegateAuthority).To(Equal(auth.Address()))
			Expect(sub.DelegatedAccount).To(Equal(allowance.DelegatedAccount))

			tx, err := chain.Decode(allowance.ApprovalTransaction)
			Expect(err).NotTo(HaveOccurred())
			Expect(tx.FeePayer).To(Equal(payer))
		})

		It("rejects a second open subscription for the same payer and plan", func() {
			_, _, err := service.Create(ctx, org.ID, subscription.CreateSubscriptionDTO{PlanID: plan.ID, PayerWallet: payer})
			Expect(err).NotTo(HaveOccurred())

			_, _, err = service.Create(ctx, org.ID, subscription.CreateSubscriptionDTO{PlanID: plan.ID, PayerWallet: payer})
			Expect(err).To(MatchError(errs.ErrSubscriptionExists))
		})

		It("allows a new subscription once the previous one is cancelled", func() {
			sub, _, err := service.Create(ctx, org.ID, subscription.CreateSubscriptionDTO{PlanID: plan.ID, PayerWallet: payer})
			Expect(err).NotTo(HaveOccurred())
			_, _, err = service.Cancel(ctx, org.ID, sub.ID)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = service.Create(ctx, org.ID, subscription.CreateSubscriptionDTO{PlanID: plan.ID, PayerWallet: payer})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects an invalid wallet", func() {
			_, _, err := service.Create(ctx, org.ID, subscription.CreateSubscriptionDTO{PlanID: plan.ID, PayerWallet: "not-a-wallet"})
			appErr, ok := errs.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errs.ErrorTypeValidation))
		})

		It("hides plans owned by another organization", func() {
			_, _, err := service.Create(ctx, "other-org", subscription.CreateSubscriptionDTO{PlanID: plan.ID, PayerWallet: payer})
			Expect(err).To(MatchError(errs.ErrPlanNotFound))
		})
	})

	Describe("Activate", func() {
		var sub *subdm.Subscription

		BeforeEach(func() {
			var err error
			sub, _, err = service.Create(ctx, org.ID, subscription.CreateSubscriptionDTO{PlanID: plan.ID, PayerWallet: payer})
			Expect(err).NotTo(HaveOccurred())
		})

		It("charges the first cycle and activates the subscription", func() {
			sig := approve(sub.AllowanceAmount)

			activated, result, err := service.Activate(ctx, org.ID, sub.ID, subscription.ActivateDTO{ApprovalSignature: sig})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Success).To(BeTrue())
			Expect(activated.Status).To(Equal(subdm.StatusActive))
			Expect(activated.TotalPayments).To(Equal(1))
			Expect(*activated.ApprovalSignature).To(Equal(sig))
			Expect(activated.NextBillingDate.Equal(now.Add(30 * 24 * time.Hour))).To(BeTrue())
			Expect(notifier.sent()).To(Equal([]string{events.EventTypePaymentSucceeded, events.EventTypeSubscriptionCreated}))
		})

		It("rejects an approval that has not landed", func() {
			gateway.Delegate(payer, plan.TokenMint, auth.Address(), 500_000_000, sub.AllowanceAmount)

			_, _, err := service.Activate(ctx, org.ID, sub.ID, subscription.ActivateDTO{ApprovalSignature: chaintest.RandomSignature()})

			Expect(err).To(MatchError(errs.ErrNotConfirmed))
		})

		It("rejects activation when the allowance is not in place", func() {
			sig := chaintest.RandomSignature()
			gateway.Land(sig)

			_, _, err := service.Activate(ctx, org.ID, sub.ID, subscription.ActivateDTO{ApprovalSignature: sig})

			Expect(err).To(MatchError(errs.ErrAllowanceMissing))
		})

		It("keeps the subscription pending when the first charge fails", func() {
			sig := approve(sub.AllowanceAmount)
			gateway.FailSubmits = 1

			_, result, err := service.Activate(ctx, org.ID, sub.ID, subscription.ActivateDTO{ApprovalSignature: sig})

			Expect(err).To(HaveOccurred())
			Expect(result.Success).To(BeFalse())
			reloaded, err := service.Get(ctx, org.ID, sub.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.Status).To(Equal(subdm.StatusPendingApproval))
			Expect(reloaded.ApprovalSignature).To(BeNil())

			activated, result, err := service.Activate(ctx, org.ID, sub.ID, subscription.ActivateDTO{ApprovalSignature: sig})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Success).To(BeTrue())
			Expect(activated.Status).To(Equal(subdm.StatusActive))
		})

		It("charges once when two activations overlap", func() {
			sig := approve(sub.AllowanceAmount)
			gate := &gatedExecutor{next: deps.Executor, entered: make(chan struct{}), release: make(chan struct{})}
			gatedDeps := deps
			gatedDeps.Executor = gate
			gated := newSvc(gatedDeps)

			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, _, err := gated.Activate(ctx, org.ID, sub.ID, subscription.ActivateDTO{ApprovalSignature: sig})
				done <- err
			}()
			Eventually(gate.entered).Should(BeClosed())

			_, result, err := gated.Activate(ctx, org.ID, sub.ID, subscription.ActivateDTO{ApprovalSignature: sig})
			Expect(err).To(MatchError(errs.ErrInvalidTransition))
			Expect(result.Success).To(BeFalse())

			close(gate.release)
			var firstErr error
			Eventually(done).Should(Receive(&firstErr))
			Expect(firstErr).NotTo(HaveOccurred())

			Expect(gateway.Submitted()).To(HaveLen(1))
			var payments int64
			Expect(db.Model(&settledm.SubscriptionPayment{}).Where("subscription_id = ?", sub.ID).Count(&payments).Error).To(Succeed())
			Expect(payments).To(Equal(int64(1)))
			Expect(gate.calls.Load()).To(Equal(int32(1)))
		})

		It("refuses to activate twice", func() {
			sig := approve(sub.AllowanceAmount)
			_, _, err := service.Activate(ctx, org.ID, sub.ID, subscription.ActivateDTO{ApprovalSignature: sig})
			Expect(err).NotTo(HaveOccurred())

			_, _, err = service.Activate(ctx, org.ID, sub.ID, subscription.ActivateDTO{ApprovalSignature: sig})
			Expect(err).To(MatchError(errs.ErrInvalidTransition))
		})
	})

	Describe("Cancel", func() {
		It("cancels immediately and returns a revocation transaction", func() {
			sub, _, err := service.Create(ctx, org.ID, subscription.CreateSubscriptionDTO{PlanID: plan.ID, PayerWallet: payer})
			Expect(err).NotTo(HaveOccurred())
			_, _, err = service.Activate(ctx, org.ID, sub.ID, subscription.ActivateDTO{ApprovalSignature: approve(sub.AllowanceAmount)})
			Expect(err).NotTo(HaveOccurred())

			cancelled, revocation, err := service.Cancel(ctx, org.ID, sub.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(cancelled.Status).To(Equal(subdm.StatusCancelled))
			Expect(cancelled.CancelledAt).NotTo(BeNil())
			Expect(revocation).NotTo(BeEmpty())
			Expect(notifier.sent()).To(ContainElement(events.EventTypeSubscriptionCancelled))

			_, _, err = service.Cancel(ctx, org.ID, sub.ID)
			Expect(err).To(MatchError(errs.ErrInvalidTransition))
		})

		It("returns not found for another organization's subscription", func() {
			sub, _, err := service.Create(ctx, org.ID, subscription.CreateSubscriptionDTO{PlanID: plan.ID, PayerWallet: payer})
			Expect(err).NotTo(HaveOccurred())

			_, _, err = service.Cancel(ctx, "other-org", sub.ID)
			Expect(err).To(MatchError(errs.ErrSubscriptionNotFound))
		})
	})
})
