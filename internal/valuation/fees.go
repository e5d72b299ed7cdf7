// Package valuation estimates resale value and fee-adjusted profit for listings.
package valuation

import "github.com/shopspring/decimal"

// FeeSchedule turns a sale price into the seller's proceeds after platform fees.
type FeeSchedule interface {
	Net(salePrice decimal.Decimal) decimal.Decimal
}

// MarketplaceFees is a flat percentage fee schedule: a final value fee and a
// payment processing fee, both on the sale price, plus a fixed per-order fee.
type MarketplaceFees struct {
	FinalValueRate decimal.Decimal
	PaymentRate    decimal.Decimal
	FixedFee       decimal.Decimal
}

func DefaultFees() MarketplaceFees {
	return MarketplaceFees{
		FinalValueRate: decimal.RequireFromString("0.136"),
		PaymentRate:    decimal.RequireFromString("0.0235"),
		FixedFee:       decimal.RequireFromString("0.30"),
	}
}

func (f MarketplaceFees) Net(salePrice decimal.Decimal) decimal.Decimal {
	afterFinalValue := salePrice.Mul(decimal.NewFromInt(1).Sub(f.FinalValueRate))
	return afterFinalValue.Sub(salePrice.Mul(f.PaymentRate)).Sub(f.FixedFee)
}
