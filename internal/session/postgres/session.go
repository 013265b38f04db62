package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	revenuedm "github.com/frahmantamala/recurpay/internal/core/datamodel/revenue"
	sessiondm "github.com/frahmantamala/recurpay/internal/core/datamodel/session"
	settledm "github.com/frahmantamala/recurpay/internal/core/datamodel/settlement"
	"github.com/frahmantamala/recurpay/internal/session"
	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) session.RepositoryAPI {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *sessiondm.PaymentSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*sessiondm.PaymentSession, error) {
	var s sessiondm.PaymentSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Complete(ctx context.Context, c session.Completion) (*settledm.Payment, error) {
	var payment *settledm.Payment

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&sessiondm.PaymentSession{}).
			Where("id = ? AND status = ?", c.SessionID, sessiondm.StatusPending).
			Updates(map[string]interface{}{
				"status":       sessiondm.StatusCompleted,
				"completed_at": c.CompletedAt,
				"updated_at":   c.CompletedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return session.ErrClosed
		}

		signature := c.Signature
		method := c.DeliveryMethod
		confirmedAt := c.CompletedAt
		p := &settledm.Payment{
			SessionID:      c.SessionID,
			OrganizationID: c.OrganizationID,
			MerchantAmount: c.Amounts.MerchantAmount,
			PlatformFee:    c.Amounts.PlatformFee,
			TotalAmount:    c.Amounts.TotalAmount,
			GasCost:        c.GasCost,
			Status:         settledm.StatusConfirmed,
			TxSignature:    &signature,
			DeliveryMethod: &method,
			ConfirmedAt:    &confirmedAt,
		}
		if err := tx.Create(p).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return session.ErrClosed
			}
			return fmt.Errorf("failed to record payment: %w", err)
		}

		paymentID := p.ID
		rev := &revenuedm.PlatformRevenue{
			OrganizationID: c.OrganizationID,
			PaymentID:      &paymentID,
			FeeAmount:      c.Amounts.PlatformFee,
			MerchantAmount: c.Amounts.MerchantAmount,
			TotalAmount:    c.Amounts.TotalAmount,
			GasCost:        c.GasCost,
			CreatedAt:      c.CompletedAt,
		}
		if err := tx.Create(rev).Error; err != nil {
			return fmt.Errorf("failed to record platform revenue: %w", err)
		}

		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *SessionRepository) MarkExpired(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&sessiondm.PaymentSession{}).
		Where("id = ? AND status = ?", id, sessiondm.StatusPending).
		Updates(map[string]interface{}{
			"status":     sessiondm.StatusExpired,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *SessionRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&sessiondm.PaymentSession{}).
		Where("status = ? AND expires_at <= ?", sessiondm.StatusPending, now).
		Updates(map[string]interface{}{
			"status":     sessiondm.StatusExpired,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}
