package fulfillment

import (
	"context"

	"github.com/tuathcoir/storefront/pkg/models"
)

// Adapter submits one supplier group of an order to a fulfillment partner
// and returns the partner's order id for later shipment correlation.
type Adapter interface {
	Name() string
	// Configured reports whether credentials are present. Unconfigured
	// suppliers are skipped with a warning, never treated as failures.
	Configured() bool
	Submit(ctx context.Context, order *models.Order, items []models.OrderItem) (string, error)
}

// splitName splits a customer name into the first/last pair some supplier
// APIs insist on.
func splitName(name string) (string, string) {
	if name == "" {
		return "Customer", ""
	}
	for i, r := range name {
		if r == ' ' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}
