package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/recurpay/internal/core/datamodel/datamodeltest"
	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
	webhookdm "github.com/frahmantamala/recurpay/internal/core/datamodel/webhook"
	"github.com/frahmantamala/recurpay/internal/core/events"
	"github.com/frahmantamala/recurpay/internal/organization"
	orgPostgres "github.com/frahmantamala/recurpay/internal/organization/postgres"
	"github.com/frahmantamala/recurpay/internal/webhook"
	webhookPostgres "github.com/frahmantamala/recurpay/internal/webhook/postgres"
)

func TestWebhook(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Webhook Suite")
}

type receiver struct {
	mu       sync.Mutex
	statuses []int
	requests []*http.Request
	bodies   [][]byte
	reply    []byte
	onCall   func()
}

func (rc *receiver) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		rc.requests = append(rc.requests, r)
		rc.bodies = append(rc.bodies, body)
		if rc.onCall != nil {
			rc.onCall()
		}
		status := http.StatusOK
		if len(rc.statuses) > 0 {
			status = rc.statuses[0]
			rc.statuses = rc.statuses[1:]
		}
		w.WriteHeader(status)
		if rc.reply != nil {
			_, _ = w.Write(rc.reply)
			return
		}
		_, _ = w.Write([]byte(`{"received":true}`))
	}
}

func (rc *receiver) calls() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.requests)
}

var _ = Describe("Sign and Verify", func() {
	It("round-trips and rejects tampering", func() {
		payload := []byte(`{"event":"payment.succeeded"}`)
		sig := webhook.Sign(payload, "secret")

		Expect(sig).To(HaveLen(64))
		Expect(webhook.Verify(payload, "secret", sig)).To(BeTrue())
		Expect(webhook.Verify(payload, "other", sig)).To(BeFalse())
		Expect(webhook.Verify([]byte(`{}`), "secret", sig)).To(BeFalse())
		Expect(webhook.Verify(payload, "secret", "zz")).To(BeFalse())
	})
})

var _ = Describe("Backoff", func() {
	DescribeTable("doubles from a minute and caps at an hour",
		func(failures int, expected time.Duration) {
			Expect(webhook.Backoff(failures)).To(Equal(expected))
		},
		Entry("no failures", 0, time.Duration(0)),
		Entry("first failure", 1, time.Minute),
		Entry("second failure", 2, 2*time.Minute),
		Entry("fourth failure", 4, 8*time.Minute),
		Entry("capped", 10, time.Hour),
	)
})

var _ = Describe("Dispatcher", func() {
	var (
		ctx        context.Context
		db         *gorm.DB
		repo       webhook.RepositoryAPI
		dispatcher *webhook.Dispatcher
		org        *orgdm.Organization
		rc         *receiver
		server     *httptest.Server
		now        time.Time
	)

	reload := func(id string) *webhookdm.Webhook {
		w, err := repo.GetByID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return w
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = datamodeltest.Open()
		Expect(err).NotTo(HaveOccurred())
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		now = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

		rc = &receiver{}
		server = httptest.NewServer(rc.handler())
		DeferCleanup(server.Close)

		orgService := organization.NewService(orgPostgres.NewOrganizationRepository(db), logger)
		org = &orgdm.Organization{
			Name:          "Acme",
			APIKeyID:      "key-1",
			APIKeyHash:    "hash",
			WebhookURL:    server.URL,
			WebhookSecret: "whsec_test",
		}
		Expect(orgService.Create(ctx, org)).To(Succeed())

		repo = webhookPostgres.NewWebhookRepository(db)
		dispatcher = webhook.NewDispatcher(repo, orgService, webhook.Config{Timeout: 2 * time.Second}, logger).
			WithClock(func() time.Time { return now })
	})

	Describe("Queue", func() {
		It("persists a pending envelope without delivering", func() {
			w, err := dispatcher.Queue(ctx, org.ID, events.EventTypePaymentSucceeded, map[string]interface{}{"payment_id": "p-1"})

			Expect(err).NotTo(HaveOccurred())
			Expect(w.Status).To(Equal(webhookdm.StatusPending))
			Expect(rc.calls()).To(BeZero())

			var env webhook.Envelope
			Expect(json.Unmarshal(w.Payload, &env)).To(Succeed())
			Expect(env.Event).To(Equal(events.EventTypePaymentSucceeded))
			Expect(env.Data).To(HaveKeyWithValue("payment_id", "p-1"))
		})
	})

	Describe("DeliverOne", func() {
		It("signs the payload and sends identifying headers", func() {
			w, err := dispatcher.Queue(ctx, org.ID, events.EventTypeSubscriptionCreated, nil)
			Expect(err).NotTo(HaveOccurred())

			ok, err := dispatcher.DeliverOne(ctx, w)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(rc.calls()).To(Equal(1))
			req := rc.requests[0]
			Expect(req.Header.Get(webhook.HeaderEvent)).To(Equal(events.EventTypeSubscriptionCreated))
			Expect(req.Header.Get(webhook.HeaderID)).To(Equal(w.ID))
			Expect(req.Header.Get(webhook.HeaderTimestamp)).NotTo(BeEmpty())
			Expect(webhook.Verify(rc.bodies[0], "whsec_test", req.Header.Get(webhook.HeaderSignature))).To(BeTrue())

			stored := reload(w.ID)
			Expect(stored.Status).To(Equal(webhookdm.StatusSent))
			Expect(stored.SentAt).NotTo(BeNil())
			Expect(*stored.ResponseStatus).To(Equal(http.StatusOK))
		})

		It("dead-letters immediately when the organization has no url", func() {
			Expect(db.Model(org).Update("webhook_url", "").Error).NotTo(HaveOccurred())
			w, err := dispatcher.Queue(ctx, org.ID, events.EventTypePaymentSucceeded, nil)
			Expect(err).NotTo(HaveOccurred())

			ok, err := dispatcher.DeliverOne(ctx, w)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			stored := reload(w.ID)
			Expect(stored.Status).To(Equal(webhookdm.StatusFailed))
			Expect(stored.DeadLettered()).To(BeTrue())
			Expect(rc.calls()).To(BeZero())
		})

		It("truncates long response bodies", func() {
			long := make([]byte, 5000)
			for i := range long {
				long[i] = 'x'
			}
			failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write(long)
			}))
			defer failing.Close()
			Expect(db.Model(org).Update("webhook_url", failing.URL).Error).NotTo(HaveOccurred())

			w, err := dispatcher.Queue(ctx, org.ID, events.EventTypePaymentSucceeded, nil)
			Expect(err).NotTo(HaveOccurred())
			ok, err := dispatcher.DeliverOne(ctx, w)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			stored := reload(w.ID)
			Expect(stored.RetryCount).To(Equal(1))
			Expect(*stored.ResponseBody).To(HaveLen(1000))
			Expect(stored.NextAttemptAt.Equal(now.Add(time.Minute))).To(BeTrue())
		})
	})

	Describe("Sweep", func() {
		advance := func() {
			now = now.Add(2 * time.Hour)
		}

		It("delivers on the fifth attempt after four server errors", func() {
			rc.statuses = []int{500, 500, 500, 500, 200}
			w, err := dispatcher.Queue(ctx, org.ID, events.EventTypePaymentSucceeded, nil)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 4; i++ {
				summary, err := dispatcher.Sweep(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(summary.Failed).To(Equal(1))
				Expect(reload(w.ID).RetryCount).To(Equal(i + 1))
				advance()
			}

			summary, err := dispatcher.Sweep(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Delivered).To(Equal(1))
			Expect(rc.calls()).To(Equal(5))
			Expect(reload(w.ID).Status).To(Equal(webhookdm.StatusSent))
		})

		It("stops after five failures and excludes the row from later sweeps", func() {
			rc.statuses = []int{500, 500, 500, 500, 500, 200}
			w, err := dispatcher.Queue(ctx, org.ID, events.EventTypePaymentSucceeded, nil)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 5; i++ {
				_, err := dispatcher.Sweep(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				advance()
			}

			stored := reload(w.ID)
			Expect(stored.Status).To(Equal(webhookdm.StatusFailed))
			Expect(stored.RetryCount).To(Equal(5))
			Expect(stored.DeadLettered()).To(BeTrue())

			summary, err := dispatcher.Sweep(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Processed).To(BeZero())
			Expect(rc.calls()).To(Equal(5))
		})

		It("stores non-ascii error bodies as valid text and still reaches the cap", func() {
			rc.statuses = []int{500, 500, 500, 500, 500}
			rc.reply = []byte("x" + strings.Repeat("é", 600) + "\x00\xff")
			w, err := dispatcher.Queue(ctx, org.ID, events.EventTypePaymentSucceeded, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = dispatcher.Sweep(ctx, 10)
			Expect(err).NotTo(HaveOccurred())

			stored := reload(w.ID)
			Expect(stored.RetryCount).To(Equal(1))
			Expect(stored.ResponseBody).NotTo(BeNil())
			Expect(utf8.ValidString(*stored.ResponseBody)).To(BeTrue())
			Expect(len(*stored.ResponseBody)).To(BeNumerically("<=", 1000))
			Expect(*stored.ResponseBody).To(HavePrefix("xé"))
			Expect(*stored.ResponseBody).NotTo(ContainSubstring("\x00"))

			for i := 1; i < 5; i++ {
				advance()
				_, err := dispatcher.Sweep(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
			}

			stored = reload(w.ID)
			Expect(stored.RetryCount).To(Equal(5))
			Expect(stored.DeadLettered()).To(BeTrue())
			Expect(rc.calls()).To(Equal(5))
		})

		It("records the delivery in flight when the sweep is cancelled", func() {
			first, err := dispatcher.Queue(ctx, org.ID, events.EventTypePaymentSucceeded, nil)
			Expect(err).NotTo(HaveOccurred())
			second, err := dispatcher.Queue(ctx, org.ID, events.EventTypePaymentSucceeded, nil)
			Expect(err).NotTo(HaveOccurred())

			sweepCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			rc.onCall = cancel

			summary, err := dispatcher.Sweep(sweepCtx, 10)

			Expect(err).To(MatchError(context.Canceled))
			Expect(summary.Delivered).To(Equal(1))
			Expect(rc.calls()).To(Equal(1))
			Expect([]webhookdm.Status{reload(first.ID).Status, reload(second.ID).Status}).To(
				ConsistOf(webhookdm.StatusSent, webhookdm.StatusPending))
		})

		It("waits for the backoff before retrying", func() {
			rc.statuses = []int{500}
			_, err := dispatcher.Queue(ctx, org.ID, events.EventTypePaymentSucceeded, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = dispatcher.Sweep(ctx, 10)
			Expect(err).NotTo(HaveOccurred())

			summary, err := dispatcher.Sweep(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Processed).To(BeZero())
		})

		It("dead-letters rows that already reached the cap without posting", func() {
			w, err := dispatcher.Queue(ctx, org.ID, events.EventTypePaymentSucceeded, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(db.Model(&webhookdm.Webhook{}).Where("id = ?", w.ID).Update("retry_count", 5).Error).NotTo(HaveOccurred())

			summary, err := dispatcher.Sweep(ctx, 10)

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.DeadLettered).To(Equal(1))
			Expect(rc.calls()).To(BeZero())
			Expect(reload(w.ID).DeadLettered()).To(BeTrue())
		})
	})

	Describe("RegisterHandlers", func() {
		It("queues a webhook for merchant events published through the notifier", func() {
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
			bus := events.NewEventBus(logger)
			dispatcher.RegisterHandlers(bus)

			err := events.NewNotifier(bus).Notify(ctx, org.ID, events.EventTypeSubscriptionPaused, map[string]interface{}{"subscription_id": "s-1"})
			Expect(err).NotTo(HaveOccurred())

			var rows []webhookdm.Webhook
			Expect(db.Find(&rows).Error).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].EventType).To(Equal(events.EventTypeSubscriptionPaused))
			Expect(rows[0].OrganizationID).To(Equal(org.ID))
		})
	})

	Describe("SendTest", func() {
		It("queues and delivers a payment.test event", func() {
			hook, ok, err := dispatcher.SendTest(ctx, org.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(hook.EventType).To(Equal(events.EventTypePaymentTest))
			Expect(hook.Status).To(Equal(webhookdm.StatusSent))
		})
	})
})
