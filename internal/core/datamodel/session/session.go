package session

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// PaymentSession is a one-time purchase intent. Terminal states are sticky.
type PaymentSession struct {
	ID                string     `gorm:"primaryKey;type:varchar(36)"`
	ProductID         string     `gorm:"column:product_id;not null;index"`
	OrganizationID    string     `gorm:"column:organization_id;not null;index"`
	PayerWallet       string     `gorm:"column:payer_wallet;not null"`
	MerchantAmount    int64      `gorm:"column:merchant_amount;not null"`
	PlatformFee       int64      `gorm:"column:platform_fee;not null"`
	TotalAmount       int64      `gorm:"column:total_amount;not null"`
	NetworkFee        int64      `gorm:"column:network_fee;not null"`
	Transaction       string     `gorm:"column:transaction;type:text"`
	ExpectedSignature string     `gorm:"column:expected_signature"`
	Status            Status     `gorm:"column:status;not null;index"`
	ExpiresAt         time.Time  `gorm:"column:expires_at;not null;index"`
	CompletedAt       *time.Time `gorm:"column:completed_at"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (PaymentSession) TableName() string {
	return "payment_sessions"
}

func (s *PaymentSession) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (s *PaymentSession) IsExpired(now time.Time) bool {
	return s.Status == StatusExpired || !now.Before(s.ExpiresAt)
}
