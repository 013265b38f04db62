// Package fee splits settlement amounts between merchant and platform.
// Every settlement path goes through Split so one-time and recurring flows
// share the same integer arithmetic.
package fee

import (
	"errors"
	"fmt"
)

// DefaultPlatformFee is 1 token unit at 6 decimals.
const DefaultPlatformFee int64 = 1_000_000

var (
	ErrInvalidTotal = errors.New("fee: total amount must exceed the platform fee")
	ErrInvalidFee   = errors.New("fee: platform fee must not be negative")
	ErrInvalidPrice = errors.New("fee: price must be positive")
)

type Breakdown struct {
	MerchantAmount int64 `json:"merchant_amount"`
	PlatformFee    int64 `json:"platform_fee"`
	TotalAmount    int64 `json:"total_amount"`
}

// Balanced reports whether merchant + fee == total.
func (b Breakdown) Balanced() bool {
	return b.MerchantAmount+b.PlatformFee == b.TotalAmount
}

// Split derives the merchant share from a fee-inclusive total.
func Split(totalAmount, platformFee int64) (Breakdown, error) {
	if platformFee < 0 {
		return Breakdown{}, ErrInvalidFee
	}
	if totalAmount <= platformFee {
		return Breakdown{}, fmt.Errorf("%w: total=%d fee=%d", ErrInvalidTotal, totalAmount, platformFee)
	}

	b := Breakdown{
		MerchantAmount: totalAmount - platformFee,
		PlatformFee:    platformFee,
		TotalAmount:    totalAmount,
	}
	if !b.Balanced() {
		return Breakdown{}, fmt.Errorf("fee: split does not balance: %+v", b)
	}
	return b, nil
}

// ForProduct quotes a one-time purchase where the product price is the merchant share
// and the payer owes price + fee.
func ForProduct(price, platformFee int64) (Breakdown, error) {
	if price <= 0 {
		return Breakdown{}, ErrInvalidPrice
	}
	if platformFee < 0 {
		return Breakdown{}, ErrInvalidFee
	}
	return Split(price+platformFee, platformFee)
}
