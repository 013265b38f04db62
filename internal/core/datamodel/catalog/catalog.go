package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a sellable one-time item. Price is in token minor units and excludes the platform fee.
type Product struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)"`
	OrganizationID  string    `gorm:"column:organization_id;not null;index"`
	Name            string    `gorm:"column:name;not null"`
	Price           int64     `gorm:"column:price;not null"`
	TokenMint       string    `gorm:"column:token_mint;not null"`
	TokenDecimals   uint8     `gorm:"column:token_decimals;not null"`
	MerchantAccount string    `gorm:"column:merchant_account;not null"`
	Active          bool      `gorm:"column:active;not null"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (Product) TableName() string {
	return "products"
}

func (p *Product) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// SubscriptionPlan is a recurring offering. AmountPerBilling is what the payer owes per cycle,
// platform fee included.
type SubscriptionPlan struct {
	ID                string    `gorm:"primaryKey;type:varchar(36)"`
	OrganizationID    string    `gorm:"column:organization_id;not null;index"`
	Name              string    `gorm:"column:name;not null"`
	AmountPerBilling  int64     `gorm:"column:amount_per_billing;not null"`
	BillingPeriodDays int       `gorm:"column:billing_period_days;not null"`
	TokenMint         string    `gorm:"column:token_mint;not null"`
	TokenDecimals     uint8     `gorm:"column:token_decimals;not null"`
	MerchantAccount   string    `gorm:"column:merchant_account;not null"`
	Active            bool      `gorm:"column:active;not null"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

func (p *SubscriptionPlan) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *SubscriptionPlan) BillingPeriod() time.Duration {
	return time.Duration(p.BillingPeriodDays) * 24 * time.Hour
}
