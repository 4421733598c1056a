// Package billing computes salon bills: subtotal, membership discount, loyalty
// redemption, tax and loyalty points earned. It is pure; callers own persistence
// and the customer balance update.
package billing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

func init() {
	// Currency amounts are emitted as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

var hundred = decimal.NewFromInt(100)

type Membership struct {
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	PointsMultiplier   decimal.Decimal `json:"pointsMultiplier"`
}

// UnmarshalJSON defaults an absent pointsMultiplier to 1.
func (m *Membership) UnmarshalJSON(data []byte) error {
	var wire struct {
		DiscountPercentage decimal.Decimal  `json:"discountPercentage"`
		PointsMultiplier   *decimal.Decimal `json:"pointsMultiplier"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.DiscountPercentage = wire.DiscountPercentage
	m.PointsMultiplier = decimal.NewFromInt(1)
	if wire.PointsMultiplier != nil {
		m.PointsMultiplier = *wire.PointsMultiplier
	}
	return nil
}

type TaxConfig struct {
	Enabled bool            `json:"enabled"`
	Rate    decimal.Decimal `json:"rate"`
}

// Rules holds the store-level loyalty conversion constants.
type Rules struct {
	// PointValue is the currency value of one redeemed point.
	PointValue decimal.Decimal
	// BasePointsRate is the points earned per currency unit of the total
	// before the membership multiplier (0.01 = one point per 100).
	BasePointsRate decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		PointValue:     decimal.NewFromInt(1),
		BasePointsRate: decimal.RequireFromString("0.01"),
	}
}

type Input struct {
	Items      []Item
	Membership *Membership
	// PointsToRedeem must not exceed CustomerPointsBalance, and its value must
	// not exceed the subtotal left after the membership discount.
	PointsToRedeem int64
	// CustomerPointsBalance is nil for walk-in sales without a customer.
	CustomerPointsBalance *int64
	TaxConfig             TaxConfig
}

// Request is the JSON contract accepted by the calculate endpoint and CLI.
type Request struct {
	LineItems             []LineItem  `json:"lineItems"`
	Membership            *Membership `json:"membership,omitempty"`
	PointsToRedeem        int64       `json:"pointsToRedeem,omitempty"`
	CustomerPointsBalance *int64      `json:"customerPointsBalance,omitempty"`
	TaxConfig             TaxConfig   `json:"taxConfig"`
}

// Input converts the wire request into a typed Input.
func (r Request) Input() (Input, error) {
	items := make([]Item, 0, len(r.LineItems))
	for _, li := range r.LineItems {
		item, err := li.Item()
		if err != nil {
			return Input{}, err
		}
		items = append(items, item)
	}
	return Input{
		Items:                 items,
		Membership:            r.Membership,
		PointsToRedeem:        r.PointsToRedeem,
		CustomerPointsBalance: r.CustomerPointsBalance,
		TaxConfig:             r.TaxConfig,
	}, nil
}

type Bill struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	RedemptionValue decimal.Decimal `json:"redemptionValue"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PointsEarned    int64           `json:"pointsEarned"`
	PointsRedeemed  int64           `json:"pointsRedeemed"`
}

type Calculator struct {
	rules Rules
}

func NewCalculator(rules Rules) *Calculator {
	defaults := DefaultRules()
	if rules.PointValue.IsNegative() || rules.PointValue.IsZero() {
		rules.PointValue = defaults.PointValue
	}
	if rules.BasePointsRate.IsNegative() {
		rules.BasePointsRate = defaults.BasePointsRate
	}
	return &Calculator{rules: rules}
}

func (c *Calculator) Rules() Rules {
	return c.rules
}

// Compute applies the membership discount first, then loyalty redemption,
// then tax on what remains.
func (c *Calculator) Compute(in Input) (Bill, error) {
	if err := validate(in); err != nil {
		return Bill{}, err
	}

	subtotal := decimal.Zero
	for _, item := range in.Items {
		subtotal = subtotal.Add(item.Price().Mul(decimal.NewFromInt(int64(item.Qty()))))
	}
	subtotal = subtotal.Round(2)

	discount := decimal.Zero
	multiplier := decimal.NewFromInt(1)
	if in.Membership != nil {
		discount = subtotal.Mul(in.Membership.DiscountPercentage).Div(hundred).Round(2)
		multiplier = in.Membership.PointsMultiplier
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	redemption := decimal.NewFromInt(in.PointsToRedeem).Mul(c.rules.PointValue).Round(2)
	if payable := subtotal.Sub(discount); redemption.GreaterThan(payable) {
		return Bill{}, invalid("pointsToRedeem", fmt.Sprintf("redemption value %s exceeds the %s payable after discount", redemption.StringFixed(2), payable.StringFixed(2)))
	}

	taxable := decimal.Max(decimal.Zero, subtotal.Sub(discount).Sub(redemption))

	tax := decimal.Zero
	if in.TaxConfig.Enabled {
		tax = taxable.Mul(in.TaxConfig.Rate).Div(hundred).Round(2)
	}

	total := decimal.Max(decimal.Zero, taxable.Add(tax).Round(2))
	earned := total.Mul(multiplier).Mul(c.rules.BasePointsRate).Floor().IntPart()

	return Bill{
		Subtotal:        subtotal,
		DiscountAmount:  discount,
		RedemptionValue: redemption,
		TaxAmount:       tax,
		TotalAmount:     total,
		PointsEarned:    earned,
		PointsRedeemed:  in.PointsToRedeem,
	}, nil
}

func validate(in Input) error {
	if len(in.Items) == 0 {
		return invalid("lineItems", "at least one item is required")
	}
	for i, item := range in.Items {
		if item == nil {
			return invalid(fmt.Sprintf("lineItems[%d]", i), "missing item")
		}
		if item.Price().IsNegative() {
			return invalid(fmt.Sprintf("lineItems[%d].unitPrice", i), "must not be negative")
		}
		if item.Qty() < 1 {
			return invalid(fmt.Sprintf("lineItems[%d].quantity", i), "must be at least 1")
		}
	}

	if m := in.Membership; m != nil {
		if m.DiscountPercentage.IsNegative() || m.DiscountPercentage.GreaterThan(hundred) {
			return invalid("membership.discountPercentage", "must be between 0 and 100")
		}
		if m.PointsMultiplier.IsNegative() {
			return invalid("membership.pointsMultiplier", "must not be negative")
		}
	}

	if in.TaxConfig.Rate.IsNegative() {
		return invalid("taxConfig.rate", "must not be negative")
	}

	if in.PointsToRedeem < 0 {
		return invalid("pointsToRedeem", "must not be negative")
	}
	if in.PointsToRedeem > 0 {
		if in.CustomerPointsBalance == nil {
			return invalid("pointsToRedeem", "redemption requires a customer")
		}
		if in.PointsToRedeem > *in.CustomerPointsBalance {
			return invalid("pointsToRedeem", fmt.Sprintf("exceeds balance of %d points", *in.CustomerPointsBalance))
		}
	}
	return nil
}
