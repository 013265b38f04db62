package settlement

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Payment settles one payment session.
type Payment struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	SessionID      string     `gorm:"column:session_id;not null;uniqueIndex"`
	OrganizationID string     `gorm:"column:organization_id;not null;index"`
	MerchantAmount int64      `gorm:"column:merchant_amount;not null"`
	PlatformFee    int64      `gorm:"column:platform_fee;not null"`
	TotalAmount    int64      `gorm:"column:total_amount;not null"`
	GasCost        int64      `gorm:"column:gas_cost;not null"`
	Status         Status     `gorm:"column:status;not null"`
	TxSignature    *string    `gorm:"column:tx_signature"`
	DeliveryMethod *string    `gorm:"column:delivery_method"`
	RetryCount     int        `gorm:"column:retry_count;not null"`
	ErrorMessage   *string    `gorm:"column:error_message"`
	ConfirmedAt    *time.Time `gorm:"column:confirmed_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// SubscriptionPayment settles one billing cycle. A failed row is terminal for that cycle only.
type SubscriptionPayment struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	SubscriptionID string     `gorm:"column:subscription_id;not null;index"`
	OrganizationID string     `gorm:"column:organization_id;not null;index"`
	MerchantAmount int64      `gorm:"column:merchant_amount;not null"`
	PlatformFee    int64      `gorm:"column:platform_fee;not null"`
	TotalAmount    int64      `gorm:"column:total_amount;not null"`
	GasCost        int64      `gorm:"column:gas_cost;not null"`
	Status         Status     `gorm:"column:status;not null;index"`
	TxSignature    *string    `gorm:"column:tx_signature"`
	DeliveryMethod *string    `gorm:"column:delivery_method"`
	RetryCount     int        `gorm:"column:retry_count;not null"`
	ErrorMessage   *string    `gorm:"column:error_message"`
	BillingDate    time.Time  `gorm:"column:billing_date;not null"`
	ConfirmedAt    *time.Time `gorm:"column:confirmed_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (SubscriptionPayment) TableName() string {
	return "subscription_payments"
}

func (p *SubscriptionPayment) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
