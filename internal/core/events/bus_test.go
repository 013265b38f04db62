package events_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/recurpay/internal/core/events"
)

var _ = Describe("EventBus", func() {
	var (
		bus *events.EventBus
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		bus = events.NewEventBus(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	})

	It("delivers synchronously in registration order and stops on the first error", func() {
		var order []string
		boom := errors.New("boom")

		bus.Subscribe("payment.succeeded", func(context.Context, events.Event) error {
			order = append(order, "first")
			return boom
		})
		bus.Subscribe("payment.succeeded", func(context.Context, events.Event) error {
			order = append(order, "second")
			return nil
		})

		err := bus.PublishSync(ctx, events.NewBillingEvent("org-1", "payment.succeeded", nil))

		Expect(err).To(MatchError(boom))
		Expect(order).To(Equal([]string{"first"}))
	})

	It("runs asynchronous handlers even after the caller's context is cancelled", func() {
		var calls atomic.Int32
		bus.Subscribe("payment.test", func(ctx context.Context, _ events.Event) error {
			if ctx.Err() == nil {
				calls.Add(1)
			}
			return nil
		})

		cctx, cancel := context.WithCancel(ctx)
		Expect(bus.Publish(cctx, events.NewBillingEvent("org-1", "payment.test", nil))).To(Succeed())
		cancel()

		Eventually(calls.Load).Should(Equal(int32(1)))
	})

	It("ignores events nobody subscribed to", func() {
		Expect(bus.PublishSync(ctx, events.NewBillingEvent("org-1", "unknown", nil))).To(Succeed())
	})

	It("lists subscribed event types", func() {
		bus.SubscribeMany(events.MerchantEventTypes, func(context.Context, events.Event) error { return nil })
		Expect(bus.EventTypes()).To(ConsistOf(events.MerchantEventTypes))
	})
})

var _ = Describe("Notifier", func() {
	It("publishes organization-scoped billing events", func() {
		bus := events.NewEventBus(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
		var got events.OrganizationEvent
		bus.Subscribe(events.EventTypeSubscriptionPaused, func(_ context.Context, e events.Event) error {
			got = e.(events.OrganizationEvent)
			return nil
		})

		notifier := events.NewNotifier(bus)
		err := notifier.Notify(context.Background(), "org-7", events.EventTypeSubscriptionPaused, map[string]interface{}{"subscription_id": "sub-1"})

		Expect(err).NotTo(HaveOccurred())
		Expect(got.OrganizationID()).To(Equal("org-7"))
		Expect(got.Payload()).To(HaveKeyWithValue("subscription_id", "sub-1"))
	})
})
