package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentSucceeded      = "payment.succeeded"
	EventTypeSubscriptionCreated   = "subscription.created"
	EventTypeSubscriptionPaused    = "subscription.paused"
	EventTypeSubscriptionCancelled = "subscription.cancelled"
	EventTypePaymentTest           = "payment.test"
)

// MerchantEventTypes are the events delivered to organization webhooks.
var MerchantEventTypes = []string{
	EventTypePaymentSucceeded,
	EventTypeSubscriptionCreated,
	EventTypeSubscriptionPaused,
	EventTypeSubscriptionCancelled,
	EventTypePaymentTest,
}

// OrganizationEvent is implemented by events scoped to one merchant.
type OrganizationEvent interface {
	Event
	OrganizationID() string
}

type BillingEvent struct {
	BaseEvent
	OrgID string `json:"organization_id"`
}

func (e *BillingEvent) OrganizationID() string {
	return e.OrgID
}

func NewBillingEvent(organizationID, eventType string, data map[string]interface{}) *BillingEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &BillingEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Data:      data,
		},
		OrgID: organizationID,
	}
}

// Notifier publishes merchant-facing events through the bus synchronously so a
// subscriber failure reaches the caller.
type Notifier struct {
	bus *EventBus
}

func NewNotifier(bus *EventBus) *Notifier {
	return &Notifier{bus: bus}
}

func (n *Notifier) Notify(ctx context.Context, organizationID, eventType string, data map[string]interface{}) error {
	return n.bus.PublishSync(ctx, NewBillingEvent(organizationID, eventType, data))
}
