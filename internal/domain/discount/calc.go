package discount

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Compute returns the discount amount for the given code and order subtotal.
// Pure: no side effects, no errors, total over valid inputs.
//
// The caller is responsible for having checked MinOrderAmount; Compute does
// not re-validate eligibility.
//
// PERCENTAGE: subtotal * value/100, capped by MaxDiscountAmount when set.
// FIXED_AMOUNT: the value as-is; the max cap does not apply to fixed codes.
// Both kinds are clamped to [0, subtotal] so a misconfigured code can never
// produce a negative order total.
func Compute(c *Code, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal

	switch c.Type {
	case TypePercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscountAmount.IsPositive() {
			amount = decimal.Min(amount, c.MaxDiscountAmount)
		}
	case TypeFixedAmount:
		amount = c.Value
	default:
		return decimal.Zero
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}
