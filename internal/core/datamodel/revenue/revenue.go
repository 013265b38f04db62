package revenue

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlatformRevenue is append-only. One row per confirmed settlement.
type PlatformRevenue struct {
	ID                    string    `gorm:"primaryKey;type:varchar(36)"`
	OrganizationID        string    `gorm:"column:organization_id;not null;index"`
	PaymentID             *string   `gorm:"column:payment_id;uniqueIndex"`
	SubscriptionPaymentID *string   `gorm:"column:subscription_payment_id;uniqueIndex"`
	FeeAmount             int64     `gorm:"column:fee_amount;not null"`
	MerchantAmount        int64     `gorm:"column:merchant_amount;not null"`
	TotalAmount           int64     `gorm:"column:total_amount;not null"`
	GasCost               int64     `gorm:"column:gas_cost;not null"`
	CreatedAt             time.Time `gorm:"column:created_at;index"`
}

func (PlatformRevenue) TableName() string {
	return "platform_revenue"
}

func (r *PlatformRevenue) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
