package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Webhook is an outbound notification. A row with DeadLetteredAt set is never swept again.
type Webhook struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)"`
	OrganizationID string          `gorm:"column:organization_id;not null;index"`
	EventType      string          `gorm:"column:event_type;not null"`
	Payload        json.RawMessage `gorm:"column:payload;not null"`
	Status         Status          `gorm:"column:status;not null;index"`
	ResponseStatus *int            `gorm:"column:response_status"`
	ResponseBody   *string         `gorm:"column:response_body"`
	RetryCount     int             `gorm:"column:retry_count;not null"`
	NextAttemptAt  time.Time       `gorm:"column:next_attempt_at;not null;index"`
	DeadLetteredAt *time.Time      `gorm:"column:dead_lettered_at"`
	SentAt         *time.Time      `gorm:"column:sent_at"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

func (Webhook) TableName() string {
	return "webhooks"
}

func (w *Webhook) BeforeCreate(_ *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

func (w *Webhook) DeadLettered() bool {
	return w.DeadLetteredAt != nil
}
