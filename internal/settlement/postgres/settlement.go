package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	revenuedm "github.com/frahmantamala/recurpay/internal/core/datamodel/revenue"
	settledm "github.com/frahmantamala/recurpay/internal/core/datamodel/settlement"
	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/settlement"
	"gorm.io/gorm"
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) settlement.RepositoryAPI {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) CreatePending(ctx context.Context, p *settledm.SubscriptionPayment) error {
	p.Status = settledm.StatusPending
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *SettlementRepository) CompleteCycle(ctx context.Context, c settlement.CycleSuccess) (bool, error) {
	advanced := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&settledm.SubscriptionPayment{}).
			Where("id = ? AND status = ?", c.PaymentID, settledm.StatusPending).
			Updates(map[string]interface{}{
				"status":          settledm.StatusConfirmed,
				"tx_signature":    c.Signature,
				"delivery_method": c.DeliveryMethod,
				"gas_cost":        c.GasCost,
				"confirmed_at":    c.ConfirmedAt,
				"updated_at":      c.ConfirmedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to confirm payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return settlement.ErrPaymentNotPending
		}

		paymentID := c.PaymentID
		rev := &revenuedm.PlatformRevenue{
			OrganizationID:        c.OrganizationID,
			SubscriptionPaymentID: &paymentID,
			FeeAmount:             c.Amounts.PlatformFee,
			MerchantAmount:        c.Amounts.MerchantAmount,
			TotalAmount:           c.Amounts.TotalAmount,
			GasCost:               c.GasCost,
			CreatedAt:             c.ConfirmedAt,
		}
		if err := tx.Create(rev).Error; err != nil {
			return fmt.Errorf("failed to record platform revenue: %w", err)
		}

		sub := tx.Model(&subdm.Subscription{}).
			Where("id = ? AND status = ?", c.SubscriptionID, c.FromStatus).
			Updates(map[string]interface{}{
				"status":            subdm.StatusActive,
				"next_billing_date": c.NextBillingDate,
				"last_billing_date": c.ConfirmedAt,
				"total_payments":    gorm.Expr("total_payments + 1"),
				"failed_payments":   0,
				"updated_at":        c.ConfirmedAt,
			})
		if sub.Error != nil {
			return fmt.Errorf("failed to advance subscription: %w", sub.Error)
		}
		advanced = sub.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return advanced, nil
}

func (r *SettlementRepository) FailCycle(ctx context.Context, c settlement.CycleFailure) (int, error) {
	var failed int

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":        settledm.StatusFailed,
			"error_message": c.ErrorMessage,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"updated_at":    c.FailedAt,
		}
		if c.Signature != "" {
			updates["tx_signature"] = c.Signature
		}

		res := tx.Model(&settledm.SubscriptionPayment{}).
			Where("id = ? AND status = ?", c.PaymentID, settledm.StatusPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to mark payment failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return settlement.ErrPaymentNotPending
		}

		if c.CountTowardPause {
			err := tx.Model(&subdm.Subscription{}).
				Where("id = ? AND status = ?", c.SubscriptionID, subdm.StatusActive).
				Updates(map[string]interface{}{
					"failed_payments": gorm.Expr("failed_payments + 1"),
					"updated_at":      c.FailedAt,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to count failed payment: %w", err)
			}
		}

		var counts []int
		if err := tx.Model(&subdm.Subscription{}).
			Where("id = ?", c.SubscriptionID).
			Pluck("failed_payments", &counts).Error; err != nil {
			return fmt.Errorf("failed to read failed payments: %w", err)
		}
		if len(counts) == 0 {
			return gorm.ErrRecordNotFound
		}
		failed = counts[0]
		return nil
	})
	if err != nil {
		return 0, err
	}
	return failed, nil
}

func (r *SettlementRepository) Pause(ctx context.Context, subscriptionID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&subdm.Subscription{}).
		Where("id = ? AND status = ? AND failed_payments >= ?", subscriptionID, subdm.StatusActive, settlement.MaxConsecutiveFailures).
		Updates(map[string]interface{}{
			"status":     subdm.StatusPaused,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to pause subscription: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *SettlementRepository) GetSubscriptionPayment(ctx context.Context, id string) (*settledm.SubscriptionPayment, error) {
	var p settledm.SubscriptionPayment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("subscription payment %s: %w", id, err)
		}
		return nil, err
	}
	return &p, nil
}

func (r *SettlementRepository) ListSubscriptionPayments(ctx context.Context, subscriptionID string) ([]*settledm.SubscriptionPayment, error) {
	var payments []*settledm.SubscriptionPayment
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("billing_date ASC, created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
