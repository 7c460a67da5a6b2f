package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/tuathcoir/storefront/internal/config"
	"github.com/tuathcoir/storefront/pkg/models"
)

// Engine computes the money fields for an order from its item snapshot.
// It is pure: no I/O, deterministic for a given rate configuration. All
// arithmetic runs on decimals so profit reporting never drifts the way
// binary floats do.
type Engine struct {
	rates config.PricingConfig
}

// Quote is the priced breakdown of an order. TotalCost feeds the profit
// calculation only and is never returned to the client.
type Quote struct {
	Subtotal     decimal.Decimal
	TotalCost    decimal.Decimal
	Tax          decimal.Decimal
	Shipping     decimal.Decimal
	Total        decimal.Decimal
	ProcessorFee decimal.Decimal
	Profit       decimal.Decimal
}

func NewEngine(rates config.PricingConfig) *Engine {
	return &Engine{rates: rates}
}

// Price computes subtotal, tax, shipping, processor fee and profit for the
// given snapshot items. Money values are rounded to cents; profit is always
// subtotal - total cost - processor fee on the rounded figures.
func (e *Engine) Price(items []models.OrderItem) Quote {
	subtotal := decimal.Zero
	totalCost := decimal.Zero

	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		subtotal = subtotal.Add(item.Price.Mul(qty))
		totalCost = totalCost.Add(item.CostPrice.Mul(qty))
	}
	subtotal = subtotal.Round(2)
	totalCost = totalCost.Round(2)

	tax := subtotal.Mul(e.rates.TaxRate).Round(2)

	shipping := e.rates.FlatShippingFee
	if subtotal.GreaterThan(e.rates.FreeShippingOver) {
		shipping = decimal.Zero
	}

	total := subtotal.Add(tax).Add(shipping)
	processorFee := total.Mul(e.rates.ProcessorFeeRate).Add(e.rates.ProcessorFeeFixed).Round(2)
	profit := subtotal.Sub(totalCost).Sub(processorFee)

	return Quote{
		Subtotal:     subtotal,
		TotalCost:    totalCost,
		Tax:          tax,
		Shipping:     shipping,
		Total:        total,
		ProcessorFee: processorFee,
		Profit:       profit,
	}
}
