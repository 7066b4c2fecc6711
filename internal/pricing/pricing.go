// Package pricing computes order totals and per-item earnings splits.
// It is a pure function of its inputs and never touches the store.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	Delivery OrderType = "DELIVERY"
	Pickup   OrderType = "PICKUP"
)

// taxRate is the flat 5% applied to every subtotal.
var taxRate = decimal.New(5, -2)

// Default earnings splits, applied when the restaurant has none configured.
var (
	defaultRestaurantSplit = decimal.NewFromInt(40)
	defaultPlatformSplit   = decimal.NewFromInt(10)
)

// Line is one cart line with prices frozen at order time.
type Line struct {
	MenuItemID    string
	Quantity      int
	Price         decimal.Decimal
	OriginalPrice decimal.Decimal
}

// RestaurantPricing is the slice of restaurant configuration the engine needs.
// Split values are percentages; zero means "use the default".
type RestaurantPricing struct {
	MinimumOrderAmount decimal.Decimal
	DeliveryFee        decimal.Decimal
	RestaurantSplit    decimal.Decimal
	PlatformSplit      decimal.Decimal
}

// LineEarnings carries the per-line restaurant and platform cuts.
type LineEarnings struct {
	MenuItemID string
	Restaurant decimal.Decimal
	Platform   decimal.Decimal
}

type Quote struct {
	Subtotal    decimal.Decimal
	Taxes       decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
	Earnings    []LineEarnings
}

type BelowMinimumOrderError struct {
	Subtotal decimal.Decimal
	Minimum  decimal.Decimal
}

func (e *BelowMinimumOrderError) Error() string {
	return fmt.Sprintf("subtotal %s below restaurant minimum %s", e.Subtotal, e.Minimum)
}

// Compute prices a cart. Earnings are computed off each item's original
// (pre-discount) price, not the sale price; that is deliberate business
// behavior, not a bug.
func Compute(lines []Line, cfg RestaurantPricing, orderType OrderType) (*Quote, error) {
	restSplit := cfg.RestaurantSplit
	if restSplit.IsZero() {
		restSplit = defaultRestaurantSplit
	}
	platSplit := cfg.PlatformSplit
	if platSplit.IsZero() {
		platSplit = defaultPlatformSplit
	}
	hundred := decimal.NewFromInt(100)

	subtotal := decimal.Zero
	earnings := make([]LineEarnings, 0, len(lines))
	for _, ln := range lines {
		qty := decimal.NewFromInt(int64(ln.Quantity))
		subtotal = subtotal.Add(ln.Price.Mul(qty))
		earnings = append(earnings, LineEarnings{
			MenuItemID: ln.MenuItemID,
			Restaurant: ln.OriginalPrice.Mul(restSplit).Div(hundred).Mul(qty).Round(2),
			Platform:   ln.OriginalPrice.Mul(platSplit).Div(hundred).Mul(qty).Round(2),
		})
	}

	if subtotal.LessThan(cfg.MinimumOrderAmount) {
		return nil, &BelowMinimumOrderError{Subtotal: subtotal, Minimum: cfg.MinimumOrderAmount}
	}

	taxes := subtotal.Mul(taxRate).Round(2)
	fee := decimal.Zero
	if orderType == Delivery {
		fee = cfg.DeliveryFee
	}

	return &Quote{
		Subtotal:    subtotal,
		Taxes:       taxes,
		DeliveryFee: fee,
		Total:       subtotal.Add(taxes).Add(fee),
		Earnings:    earnings,
	}, nil
}
