package postgres

import (
	"context"
	"errors"
	"time"

	webhookdm "github.com/frahmantamala/recurpay/internal/core/datamodel/webhook"
	"github.com/frahmantamala/recurpay/internal/webhook"
	"gorm.io/gorm"
)

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) webhook.RepositoryAPI {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(ctx context.Context, w *webhookdm.Webhook) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*webhookdm.Webhook, error) {
	var w webhookdm.Webhook
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webhook.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *WebhookRepository) FindDeliverable(ctx context.Context, now time.Time, limit int) ([]*webhookdm.Webhook, error) {
	var rows []*webhookdm.Webhook
	err := r.db.WithContext(ctx).
		Where("status IN ? AND dead_lettered_at IS NULL AND next_attempt_at <= ?",
			[]webhookdm.Status{webhookdm.StatusPending, webhookdm.StatusFailed}, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *WebhookRepository) MarkSent(ctx context.Context, id string, a webhook.Attempt) error {
	return r.db.WithContext(ctx).Model(&webhookdm.Webhook{}).
		Where("id = ? AND status <> ?", id, webhookdm.StatusSent).
		Updates(map[string]interface{}{
			"status":          webhookdm.StatusSent,
			"response_status": a.StatusCode,
			"response_body":   a.Body,
			"sent_at":         a.At,
			"updated_at":      a.At,
		}).Error
}

func (r *WebhookRepository) MarkFailed(ctx context.Context, id string, a webhook.Attempt, nextAttemptAt time.Time) error {
	return r.db.WithContext(ctx).Model(&webhookdm.Webhook{}).
		Where("id = ? AND status <> ? AND dead_lettered_at IS NULL", id, webhookdm.StatusSent).
		Updates(map[string]interface{}{
			"status":          webhookdm.StatusFailed,
			"response_status": a.StatusCode,
			"response_body":   a.Body,
			"retry_count":     gorm.Expr("retry_count + 1"),
			"next_attempt_at": nextAttemptAt,
			"updated_at":      a.At,
		}).Error
}

func (r *WebhookRepository) DeadLetter(ctx context.Context, id, reason string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&webhookdm.Webhook{}).
		Where("id = ? AND status <> ?", id, webhookdm.StatusSent).
		Updates(map[string]interface{}{
			"status":           webhookdm.StatusFailed,
			"response_body":    reason,
			"dead_lettered_at": at,
			"updated_at":       at,
		}).Error
}
