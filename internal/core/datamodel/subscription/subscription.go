package subscription

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusActive          Status = "active"
	StatusPaused          Status = "paused"
	StatusCancelled       Status = "cancelled"
	StatusExpired         Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusActive, StatusPaused, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Open reports whether the status counts toward the one-open-subscription-per-payer-and-plan rule.
func (s Status) Open() bool {
	return s == StatusPendingApproval || s == StatusActive
}

type Subscription struct {
	ID                 string     `gorm:"primaryKey;type:varchar(36)"`
	PlanID             string     `gorm:"column:plan_id;not null;index"`
	OrganizationID     string     `gorm:"column:organization_id;not null;index"`
	PayerWallet        string     `gorm:"column:payer_wallet;not null"`
	DelegatedAccount   string     `gorm:"column:delegated_account;not null"`
	TotalAmount        int64      `gorm:"column:total_amount;not null"`
	MerchantAmount     int64      `gorm:"column:merchant_amount;not null"`
	PlatformAmount     int64      `gorm:"column:platform_amount;not null"`
	Status             Status     `gorm:"column:status;not null;index"`
	NextBillingDate    time.Time  `gorm:"column:next_billing_date;not null;index"`
	LastBillingDate    *time.Time `gorm:"column:last_billing_date"`
	TotalPayments      int        `gorm:"column:total_payments;not null"`
	FailedPayments     int        `gorm:"column:failed_payments;not null"`
	AllowanceAmount    int64      `gorm:"column:allowance_amount;not null"`
	AllowanceExpiresAt *time.Time `gorm:"column:allowance_expires_at"`
	ApprovalSignature  *string    `gorm:"column:approval_signature"`
	LockedUntil        *time.Time `gorm:"column:locked_until"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (s *Subscription) AllowanceExpired(now time.Time) bool {
	return s.AllowanceExpiresAt != nil && !now.Before(*s.AllowanceExpiresAt)
}
