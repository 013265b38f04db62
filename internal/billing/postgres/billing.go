package postgres

import (
	"context"
	"time"

	"github.com/frahmantamala/recurpay/internal/billing"
	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"gorm.io/gorm"
)

type BillingRepository struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) billing.RepositoryAPI {
	return &BillingRepository{db: db}
}

func (r *BillingRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*subdm.Subscription, error) {
	var subs []*subdm.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_billing_date <= ?", subdm.StatusActive, now).
		Where("locked_until IS NULL OR locked_until < ?", now).
		Order("organization_id ASC, next_billing_date ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *BillingRepository) Claim(ctx context.Context, id string, now, until time.Time) (*subdm.Subscription, error) {
	res := r.db.WithContext(ctx).Model(&subdm.Subscription{}).
		Where("id = ? AND status = ? AND next_billing_date <= ?", id, subdm.StatusActive, now).
		Where("locked_until IS NULL OR locked_until < ?", now).
		Update("locked_until", until)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var sub subdm.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *BillingRepository) Release(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&subdm.Subscription{}).
		Where("id = ?", id).
		Update("locked_until", nil).Error
}

func (r *BillingRepository) Hold(ctx context.Context, id string, until time.Time) error {
	return r.db.WithContext(ctx).Model(&subdm.Subscription{}).
		Where("id = ?", id).
		Update("locked_until", until).Error
}

func (r *BillingRepository) Expire(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&subdm.Subscription{}).
		Where("id = ? AND status = ?", id, subdm.StatusActive).
		Updates(map[string]interface{}{
			"status":     subdm.StatusExpired,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
