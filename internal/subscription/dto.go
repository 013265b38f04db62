package subscription

import (
	"time"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/core/common/validation"
	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/delegation"
)

type CreateSubscriptionDTO struct {
	PlanID      string `json:"plan_id"`
	PayerWallet string `json:"payer_wallet"`
	MaxCycles   int    `json:"max_cycles,omitempty"`
}

func (d CreateSubscriptionDTO) Validate() *errs.AppError {
	v := validation.NewValidator()
	v.Field("plan_id", d.PlanID).Required()
	v.Field("payer_wallet", d.PayerWallet).Required().WalletAddress()
	v.Field("max_cycles", d.MaxCycles).MinInt(0, errs.ErrCodeValidationFailed).MaxInt(MaxCycles, errs.ErrCodeValidationFailed)
	return v.Validate()
}

type ActivateDTO struct {
	ApprovalSignature string `json:"approval_signature"`
}

func (d ActivateDTO) Validate() *errs.AppError {
	v := validation.NewValidator()
	v.Field("approval_signature", d.ApprovalSignature).Required().Signature()
	return v.Validate()
}

type SubscriptionResponse struct {
	ID               string       `json:"id"`
	PlanID           string       `json:"plan_id"`
	PayerWallet      string       `json:"payer_wallet"`
	DelegatedAccount string       `json:"delegated_account"`
	Status           subdm.Status `json:"status"`
	TotalAmount      int64        `json:"total_amount"`
	MerchantAmount   int64        `json:"merchant_amount"`
	PlatformAmount   int64        `json:"platform_amount"`
	NextBillingDate  time.Time    `json:"next_billing_date"`
	LastBillingDate  *time.Time   `json:"last_billing_date,omitempty"`
	TotalPayments    int          `json:"total_payments"`
	FailedPayments   int          `json:"failed_payments"`
	AllowanceAmount  int64        `json:"allowance_amount"`
	AllowanceExpires *time.Time   `json:"allowance_expires_at,omitempty"`
	CancelledAt      *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

type CreateResponse struct {
	Subscription SubscriptionResponse  `json:"subscription"`
	Allowance    *delegation.Allowance `json:"allowance"`
}

type ActivateResponse struct {
	Subscription   SubscriptionResponse `json:"subscription"`
	PaymentID      string               `json:"payment_id"`
	TxSignature    string               `json:"tx_signature"`
	DeliveryMethod string               `json:"delivery_method"`
}

type CancelResponse struct {
	Subscription          SubscriptionResponse `json:"subscription"`
	RevocationTransaction string               `json:"revocation_transaction,omitempty"`
}

func ToResponse(s *subdm.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:               s.ID,
		PlanID:           s.PlanID,
		PayerWallet:      s.PayerWallet,
		DelegatedAccount: s.DelegatedAccount,
		Status:           s.Status,
		TotalAmount:      s.TotalAmount,
		MerchantAmount:   s.MerchantAmount,
		PlatformAmount:   s.PlatformAmount,
		NextBillingDate:  s.NextBillingDate,
		LastBillingDate:  s.LastBillingDate,
		TotalPayments:    s.TotalPayments,
		FailedPayments:   s.FailedPayments,
		AllowanceAmount:  s.AllowanceAmount,
		AllowanceExpires: s.AllowanceExpiresAt,
		CancelledAt:      s.CancelledAt,
		CreatedAt:        s.CreatedAt,
	}
}
