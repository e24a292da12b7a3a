package ledger

import "github.com/shopspring/decimal"

// DerivePaymentStatus classifies a sale from its total and the amount paid.
//
//	amountDue == 0          -> paid
//	0 < amountDue < total   -> partial
//	otherwise               -> unpaid
func DerivePaymentStatus(total, amountPaid decimal.Decimal) PaymentStatus {
	due := total.Sub(amountPaid)
	switch {
	case due.IsZero():
		return StatusPaid
	case due.IsPositive() && due.LessThan(total):
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// SaleTotal applies a discount to a subtotal. Percentage discounts are
// rounded to paisa.
func SaleTotal(subtotal, discount decimal.Decimal, kind DiscountType) decimal.Decimal {
	if kind == DiscountPercentage {
		off := subtotal.Mul(discount).Div(decimal.NewFromInt(100)).Round(2)
		return subtotal.Sub(off)
	}
	return subtotal.Sub(discount)
}
