package session

import (
	"time"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/core/common/validation"
	sessiondm "github.com/frahmantamala/recurpay/internal/core/datamodel/session"
)

type CreateSessionDTO struct {
	ProductID   string `json:"product_id"`
	PayerWallet string `json:"payer_wallet"`
}

func (d CreateSessionDTO) Validate() *errs.AppError {
	v := validation.NewValidator()
	v.Field("product_id", d.ProductID).Required()
	v.Field("payer_wallet", d.PayerWallet).Required().WalletAddress()
	return v.Validate()
}

type ConfirmSessionDTO struct {
	Signature string `json:"signature"`
}

func (d ConfirmSessionDTO) Validate() *errs.AppError {
	v := validation.NewValidator()
	v.Field("signature", d.Signature).Required().Signature()
	return v.Validate()
}

type SessionResponse struct {
	ID                string           `json:"id"`
	ProductID         string           `json:"product_id"`
	PayerWallet       string           `json:"payer_wallet"`
	MerchantAmount    int64            `json:"merchant_amount"`
	PlatformFee       int64            `json:"platform_fee"`
	TotalAmount       int64            `json:"total_amount"`
	NetworkFee        int64            `json:"network_fee"`
	Transaction       string           `json:"transaction,omitempty"`
	ExpectedSignature string           `json:"expected_signature,omitempty"`
	Status            sessiondm.Status `json:"status"`
	ExpiresAt         time.Time        `json:"expires_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

type ConfirmResponse struct {
	Session   SessionResponse `json:"session"`
	PaymentID string          `json:"payment_id"`
}

type ExpireResponse struct {
	Expired int64 `json:"expired"`
}

func ToResponse(s *sessiondm.PaymentSession) SessionResponse {
	resp := SessionResponse{
		ID:             s.ID,
		ProductID:      s.ProductID,
		PayerWallet:    s.PayerWallet,
		MerchantAmount: s.MerchantAmount,
		PlatformFee:    s.PlatformFee,
		TotalAmount:    s.TotalAmount,
		NetworkFee:     s.NetworkFee,
		Status:         s.Status,
		ExpiresAt:      s.ExpiresAt,
		CompletedAt:    s.CompletedAt,
	}
	if s.Status == sessiondm.StatusPending {
		resp.Transaction = s.Transaction
		resp.ExpectedSignature = s.ExpectedSignature
	}
	return resp
}
