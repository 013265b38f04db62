package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/subscription"
	"gorm.io/gorm"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) subscription.RepositoryAPI {
	return &SubscriptionRepository{db: db}
}

// Create relies on the partial unique index over open rows to close the check-then-insert race.
func (r *SubscriptionRepository) Create(ctx context.Context, s *subdm.Subscription) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return subscription.ErrExists
		}
		return err
	}
	return nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*subdm.Subscription, error) {
	var s subdm.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) HasOpen(ctx context.Context, payerWallet, planID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&subdm.Subscription{}).
		Where("payer_wallet = ? AND plan_id = ? AND status IN ?", payerWallet, planID,
			[]subdm.Status{subdm.StatusPendingApproval, subdm.StatusActive}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordApproval claims a pending subscription for activation. Only one caller can hold the
// claim; it stays set until the first charge succeeds or ReleaseApproval clears it.
func (r *SubscriptionRepository) RecordApproval(ctx context.Context, id, signature string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&subdm.Subscription{}).
		Where("id = ? AND status = ? AND approval_signature IS NULL", id, subdm.StatusPendingApproval).
		Updates(map[string]interface{}{
			"approval_signature": signature,
			"updated_at":         at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *SubscriptionRepository) ReleaseApproval(ctx context.Context, id, signature string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&subdm.Subscription{}).
		Where("id = ? AND status = ? AND approval_signature = ?", id, subdm.StatusPendingApproval, signature).
		Updates(map[string]interface{}{
			"approval_signature": nil,
			"updated_at":         at,
		}).Error
}

func (r *SubscriptionRepository) Transition(ctx context.Context, id string, from []subdm.Status, to subdm.Status, at time.Time) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("unknown subscription status %q", to)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	if to == subdm.StatusCancelled {
		updates["cancelled_at"] = at
	}

	res := r.db.WithContext(ctx).Model(&subdm.Subscription{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
