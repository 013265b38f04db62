// Package datamodel groups the persisted models for schema tooling.
package datamodel

import (
	"github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
	"github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
	"github.com/frahmantamala/recurpay/internal/core/datamodel/revenue"
	"github.com/frahmantamala/recurpay/internal/core/datamodel/session"
	"github.com/frahmantamala/recurpay/internal/core/datamodel/settlement"
	"github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/core/datamodel/webhook"
)

// All lists every model in dependency order.
func All() []interface{} {
	return []interface{}{
		&organization.Organization{},
		&catalog.Product{},
		&catalog.SubscriptionPlan{},
		&subscription.Subscription{},
		&session.PaymentSession{},
		&settlement.Payment{},
		&settlement.SubscriptionPayment{},
		&revenue.PlatformRevenue{},
		&webhook.Webhook{},
	}
}
