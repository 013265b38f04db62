package session_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
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
	revenuedm "github.com/frahmantamala/recurpay/internal/core/datamodel/revenue"
	sessiondm "github.com/frahmantamala/recurpay/internal/core/datamodel/session"
	settledm "github.com/frahmantamala/recurpay/internal/core/datamodel/settlement"
	"github.com/frahmantamala/recurpay/internal/organization"
	orgPostgres "github.com/frahmantamala/recurpay/internal/organization/postgres"
	"github.com/frahmantamala/recurpay/internal/session"
	sessionPostgres "github.com/frahmantamala/recurpay/internal/session/postgres"
)

func TestSession(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Suite")
}

type countingNotifier struct {
	mu    sync.Mutex
	count map[string]int
}

func (n *countingNotifier) Notify(_ context.Context, _, eventType string, _ map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.count == nil {
		n.count = map[string]int{}
	}
	n.count[eventType]++
	return nil
}

func (n *countingNotifier) of(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count[eventType]
}

type fixture struct {
	db       *gorm.DB
	gateway  *chaintest.Gateway
	platform *authority.Authority
	payer    *authority.Authority
	notifier *countingNotifier
	service  *session.Service
	org      *orgdm.Organization
	product  *catalogdm.Product
	now      *time.Time
}

func newFixture(ctx context.Context) *fixture {
	db, err := datamodeltest.Open()
	Expect(err).NotTo(HaveOccurred())
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	f := &fixture{db: db, gateway: chaintest.New(), notifier: &countingNotifier{}}
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f.now = &now

	f.platform, err = authority.Generate()
	Expect(err).NotTo(HaveOccurred())
	f.payer, err = authority.Generate()
	Expect(err).NotTo(HaveOccurred())

	orgService := organization.NewService(orgPostgres.NewOrganizationRepository(db), logger)
	catalogService := catalog.NewService(catalogPostgres.NewCatalogRepository(db), 1_000_000, logger)

	f.org = &orgdm.Organization{Name: "Acme", APIKeyID: "key-1", APIKeyHash: "hash"}
	Expect(orgService.Create(ctx, f.org)).To(Succeed())

	f.product = &catalogdm.Product{
		OrganizationID:  f.org.ID,
		Name:            "E-book",
		Price:           10_000_000,
		TokenMint:       chaintest.RandomAddress(),
		TokenDecimals:   6,
		MerchantAccount: chaintest.RandomAddress(),
		Active:          true,
	}
	Expect(catalogService.CreateProduct(ctx, f.product)).To(Succeed())

	f.service = session.NewService(sessionPostgres.NewSessionRepository(db), catalogService, orgService, f.gateway, f.platform, f.notifier,
		session.Config{PlatformFee: 1_000_000, PlatformFeeWallet: chaintest.RandomAddress(), ConfirmAttempts: 2}, logger).
		WithClock(func() time.Time { return *f.now })

	f.gateway.Delegate(f.payer.Address(), f.product.TokenMint, "", 50_000_000, 0)
	return f
}

// payerSubmits countersigns the session transaction as the payer and lands it.
func (f *fixture) payerSubmits(ctx context.Context, sess *sessiondm.PaymentSession) string {
	tx, err := chain.Decode(sess.Transaction)
	Expect(err).NotTo(HaveOccurred())
	Expect(tx.Sign(f.payer)).To(Succeed())
	raw, err := tx.Serialize()
	Expect(err).NotTo(HaveOccurred())
	result, err := f.gateway.Submit(ctx, raw)
	Expect(err).NotTo(HaveOccurred())
	return result.Signature
}

var _ = Describe("Service", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture(ctx)
	})

	Describe("Create", func() {
		It("quotes price plus platform fee with a 30 minute expiry", func() {
			sess, err := f.service.Create(ctx, f.org.ID, session.CreateSessionDTO{ProductID: f.product.ID, PayerWallet: f.payer.Address()})

			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Status).To(Equal(sessiondm.StatusPending))
			Expect(sess.MerchantAmount).To(Equal(int64(10_000_000)))
			Expect(sess.PlatformFee).To(Equal(int64(1_000_000)))
			Expect(sess.TotalAmount).To(Equal(int64(11_000_000)))
			Expect(sess.ExpiresAt).To(Equal(f.now.Add(30 * time.Minute)))
			Expect(sess.NetworkFee).To(BeNumerically(">", 0))
		})

		It("pre-signs only as fee payer and leaves the payer signature open", func() {
			sess, err := f.service.Create(ctx, f.org.ID, session.CreateSessionDTO{ProductID: f.product.ID, PayerWallet: f.payer.Address()})
			Expect(err).NotTo(HaveOccurred())

			tx, err := chain.Decode(sess.Transaction)
			Expect(err).NotTo(HaveOccurred())
			Expect(tx.FeePayer).To(Equal(f.platform.Address()))
			Expect(tx.RequiredSigners()).To(ConsistOf(f.platform.Address(), f.payer.Address()))
			Expect(tx.Signatures).To(HaveKey(f.platform.Address()))
			Expect(tx.IsFullySigned()).To(BeFalse())
			Expect(sess.ExpectedSignature).To(Equal(tx.ID()))
		})

		It("rejects products of another organization", func() {
			_, err := f.service.Create(ctx, "other-org", session.CreateSessionDTO{ProductID: f.product.ID, PayerWallet: f.payer.Address()})
			Expect(err).To(MatchError(errs.ErrProductNotFound))
		})
	})

	Describe("Confirm", func() {
		var sess *sessiondm.PaymentSession

		BeforeEach(func() {
			var err error
			sess, err = f.service.Create(ctx, f.org.ID, session.CreateSessionDTO{ProductID: f.product.ID, PayerWallet: f.payer.Address()})
			Expect(err).NotTo(HaveOccurred())
		})

		It("completes the session with one confirmed payment and one revenue row", func() {
			sig := f.payerSubmits(ctx, sess)

			completed, payment, err := f.service.Confirm(ctx, f.org.ID, sess.ID, session.ConfirmSessionDTO{Signature: sig})

			Expect(err).NotTo(HaveOccurred())
			Expect(completed.Status).To(Equal(sessiondm.StatusCompleted))
			Expect(payment.Status).To(Equal(settledm.StatusConfirmed))
			Expect(payment.MerchantAmount).To(Equal(int64(10_000_000)))
			Expect(payment.PlatformFee).To(Equal(int64(1_000_000)))

			var revenue []revenuedm.PlatformRevenue
			Expect(f.db.Find(&revenue).Error).NotTo(HaveOccurred())
			Expect(revenue).To(HaveLen(1))
			Expect(revenue[0].FeeAmount).To(Equal(int64(1_000_000)))
			Expect(f.notifier.of("payment.succeeded")).To(Equal(1))
		})

		It("rejects a second confirmation without side effects", func() {
			sig := f.payerSubmits(ctx, sess)
			_, _, err := f.service.Confirm(ctx, f.org.ID, sess.ID, session.ConfirmSessionDTO{Signature: sig})
			Expect(err).NotTo(HaveOccurred())

			_, _, err = f.service.Confirm(ctx, f.org.ID, sess.ID, session.ConfirmSessionDTO{Signature: sig})

			Expect(err).To(MatchError(errs.ErrSessionClosed))
			var payments int64
			Expect(f.db.Model(&settledm.Payment{}).Count(&payments).Error).NotTo(HaveOccurred())
			Expect(payments).To(Equal(int64(1)))
			Expect(f.notifier.of("payment.succeeded")).To(Equal(1))
		})

		It("expires the session when confirmed after its ttl", func() {
			sig := f.payerSubmits(ctx, sess)
			*f.now = f.now.Add(31 * time.Minute)

			_, _, err := f.service.Confirm(ctx, f.org.ID, sess.ID, session.ConfirmSessionDTO{Signature: sig})
			Expect(err).To(MatchError(errs.ErrSessionExpired))

			reloaded, err := f.service.Get(ctx, f.org.ID, sess.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.Status).To(Equal(sessiondm.StatusExpired))

			_, _, err = f.service.Confirm(ctx, f.org.ID, sess.ID, session.ConfirmSessionDTO{Signature: sig})
			Expect(err).To(MatchError(errs.ErrSessionExpired))
		})

		It("rejects a signature that has not landed", func() {
			_, _, err := f.service.Confirm(ctx, f.org.ID, sess.ID, session.ConfirmSessionDTO{Signature: sess.ExpectedSignature})
			Expect(err).To(MatchError(errs.ErrNotConfirmed))
		})

		It("rejects a signature from a different transaction", func() {
			_, _, err := f.service.Confirm(ctx, f.org.ID, sess.ID, session.ConfirmSessionDTO{Signature: chaintest.RandomSignature()})
			appErr, ok := errs.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errs.ErrorTypeValidation))
		})
	})

	Describe("ExpireStale", func() {
		It("expires only pending sessions past their ttl", func() {
			_, err := f.service.Create(ctx, f.org.ID, session.CreateSessionDTO{ProductID: f.product.ID, PayerWallet: f.payer.Address()})
			Expect(err).NotTo(HaveOccurred())

			n, err := f.service.ExpireStale(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			*f.now = f.now.Add(time.Hour)
			n, err = f.service.ExpireStale(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
		})
	})
})
