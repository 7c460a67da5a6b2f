package pricing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tuathcoir/storefront/internal/config"
	"github.com/tuathcoir/storefront/pkg/models"
)

func defaultRates() config.PricingConfig {
	return config.PricingConfig{
		TaxRate:           decimal.RequireFromString("0.08"),
		FreeShippingOver:  decimal.RequireFromString("50.00"),
		FlatShippingFee:   decimal.RequireFromString("5.99"),
		ProcessorFeeRate:  decimal.RequireFromString("0.029"),
		ProcessorFeeFixed: decimal.RequireFromString("0.30"),
	}
}

func item(price, cost string, qty int) models.OrderItem {
	return models.OrderItem{
		Price:     decimal.RequireFromString(price),
		CostPrice: decimal.RequireFromString(cost),
		Quantity:  qty,
	}
}

func TestPriceBreakdown(t *testing.T) {
	engine := NewEngine(defaultRates())

	quote := engine.Price([]models.OrderItem{
		item("24.99", "11.50", 2), // 49.98 subtotal, 23.00 cost
	})

	if got, want := quote.Subtotal.StringFixed(2), "49.98"; got != want {
		t.Errorf("subtotal = %s, want %s", got, want)
	}
	if got, want := quote.Tax.StringFixed(2), "4.00"; got != want {
		t.Errorf("tax = %s, want %s", got, want)
	}
	// Subtotal is under the free-shipping threshold
	if got, want := quote.Shipping.StringFixed(2), "5.99"; got != want {
		t.Errorf("shipping = %s, want %s", got, want)
	}
	if got, want := quote.Total.StringFixed(2), "59.97"; got != want {
		t.Errorf("total = %s, want %s", got, want)
	}
	// 59.97 * 0.029 + 0.30 = 2.0391 -> 2.04
	if got, want := quote.ProcessorFee.StringFixed(2), "2.04"; got != want {
		t.Errorf("processor fee = %s, want %s", got, want)
	}
	// 49.98 - 23.00 - 2.04
	if got, want := quote.Profit.StringFixed(2), "24.94"; got != want {
		t.Errorf("profit = %s, want %s", got, want)
	}
}

func TestFreeShippingThreshold(t *testing.T) {
	engine := NewEngine(defaultRates())

	tests := []struct {
		name     string
		subtotal string
		shipping string
	}{
		{"above threshold", "60.00", "0.00"},
		{"below threshold", "40.00", "5.99"},
		{"exactly at threshold", "50.00", "5.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote := engine.Price([]models.OrderItem{item(tt.subtotal, "10.00", 1)})
			if got := quote.Shipping.StringFixed(2); got != tt.shipping {
				t.Errorf("shipping for subtotal %s = %s, want %s", tt.subtotal, got, tt.shipping)
			}
		})
	}
}

func TestProfitIdentity(t *testing.T) {
	engine := NewEngine(defaultRates())

	items := []models.OrderItem{
		item("24.99", "11.50", 3),
		item("12.00", "4.25", 1),
		item("89.95", "41.10", 2),
	}

	quote := engine.Price(items)
	want := quote.Subtotal.Sub(quote.TotalCost).Sub(quote.ProcessorFee)
	if !quote.Profit.Equal(want) {
		t.Errorf("profit = %s, want subtotal - cost - fee = %s", quote.Profit, want)
	}
}

func TestPriceOrderIndependent(t *testing.T) {
	engine := NewEngine(defaultRates())

	items := []models.OrderItem{
		item("19.99", "8.00", 1),
		item("34.50", "15.75", 2),
		item("7.25", "2.10", 4),
		item("120.00", "55.00", 1),
	}

	baseline := engine.Price(items)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]models.OrderItem, len(items))
		copy(shuffled, items)
		r.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		quote := engine.Price(shuffled)
		if !quote.Profit.Equal(baseline.Profit) || !quote.Total.Equal(baseline.Total) {
			t.Fatalf("pricing depends on item order: got total=%s profit=%s, want total=%s profit=%s",
				quote.Total, quote.Profit, baseline.Total, baseline.Profit)
		}
	}
}

func TestEmptyItems(t *testing.T) {
	engine := NewEngine(defaultRates())
	quote := engine.Price(nil)

	if !quote.Subtotal.IsZero() {
		t.Errorf("subtotal for empty items = %s, want 0", quote.Subtotal)
	}
	// Empty cart still accrues the flat fee and fixed processor fee; the
	// order service rejects empty carts before pricing ever runs.
	if got, want := quote.Shipping.StringFixed(2), "5.99"; got != want {
		t.Errorf("shipping = %s, want %s", got, want)
	}
}

func TestConfigurableRates(t *testing.T) {
	rates := defaultRates()
	rates.TaxRate = decimal.RequireFromString("0.20")
	rates.FreeShippingOver = decimal.RequireFromString("100.00")
	engine := NewEngine(rates)

	quote := engine.Price([]models.OrderItem{item("60.00", "20.00", 1)})

	if got, want := quote.Tax.StringFixed(2), "12.00"; got != want {
		t.Errorf("tax = %s, want %s", got, want)
	}
	if got, want := quote.Shipping.StringFixed(2), "5.99"; got != want {
		t.Errorf("shipping = %s, want %s (threshold raised to 100)", got, want)
	}
}
