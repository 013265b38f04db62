package organization

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization is a merchant tenant. Rows are never hard-deleted.
type Organization struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)"`
	Name          string    `gorm:"column:name;not null"`
	APIKeyID      string    `gorm:"column:api_key_id;not null;uniqueIndex"`
	APIKeyHash    string    `gorm:"column:api_key_hash;not null"`
	WebhookURL    string    `gorm:"column:webhook_url"`
	WebhookSecret string    `gorm:"column:webhook_secret"`
	FeeWallet     string    `gorm:"column:fee_wallet"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

func (o *Organization) BeforeCreate(_ *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

func (o *Organization) HasWebhook() bool {
	return o.WebhookURL != ""
}
