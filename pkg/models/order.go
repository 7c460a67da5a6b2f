package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment lifecycle values. Payment moves unpaid -> paid or unpaid -> failed,
// never back.
const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
	PaymentFailed = "failed"
)

// Fulfillment lifecycle values. Fulfillment only advances:
// unfulfilled -> processing -> shipped.
const (
	FulfillmentUnfulfilled = "unfulfilled"
	FulfillmentProcessing  = "processing"
	FulfillmentShipped     = "shipped"
)

// Aggregate order status values.
const (
	StatusPendingPayment = "pending_payment"
	StatusProcessing     = "processing"
	StatusPaymentFailed  = "payment_failed"
)

// Supplier names as they appear on catalog rows and in dispatch ledgers.
const (
	SupplierPrintful = "Printful"
	SupplierEprolo   = "EPROLO"
	SupplierZendrop  = "Zendrop"
	SupplierFaire    = "Faire"
)

// Dispatch aggregate states derived from the per-supplier ledger.
const (
	DispatchAllSucceeded   = "all_succeeded"
	DispatchPartialFailure = "partial_failure"
	DispatchAllFailed      = "all_failed"
	DispatchSkipped        = "skipped"
)

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// OrderItem is the immutable catalog snapshot taken at order creation.
// Catalog changes after the order is placed never alter it.
type OrderItem struct {
	ProductID         int64           `json:"product_id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Quantity          int             `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	Supplier          string          `json:"supplier"`
	SupplierProductID string          `json:"supplier_product_id"`
}

type Order struct {
	OrderNumber     string          `json:"order_number"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerPhone   string          `json:"customer_phone"`
	ShippingAddress Address         `json:"shipping_address"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Shipping        decimal.Decimal `json:"shipping"`
	Total           decimal.Decimal `json:"total"`
	Profit          decimal.Decimal `json:"profit"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	FulfillStatus   string          `json:"fulfillment_status"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	TrackingURL     string          `json:"tracking_url,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SupplierGroups partitions the order's items by supplier. Every item lands
// in exactly one group; items with an empty supplier are returned separately
// so callers can fail loudly instead of silently dropping them.
func (o *Order) SupplierGroups() (map[string][]OrderItem, []OrderItem) {
	groups := make(map[string][]OrderItem)
	var orphans []OrderItem
	for _, item := range o.Items {
		if item.Supplier == "" {
			orphans = append(orphans, item)
			continue
		}
		groups[item.Supplier] = append(groups[item.Supplier], item)
	}
	return groups, orphans
}

// DispatchResult records one supplier fulfillment attempt. The full set is
// persisted on the order as the dispatch ledger.
type DispatchResult struct {
	Supplier        string    `json:"supplier"`
	Success         bool      `json:"success"`
	Skipped         bool      `json:"skipped,omitempty"`
	ExternalOrderID string    `json:"external_order_id,omitempty"`
	Error           string    `json:"error,omitempty"`
	AttemptedAt     time.Time `json:"attempted_at"`
}

// AggregateDispatchState folds a ledger into a single operator-facing state.
func AggregateDispatchState(results map[string]DispatchResult) string {
	var succeeded, failed int
	for _, r := range results {
		if r.Skipped {
			continue
		}
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	switch {
	case succeeded == 0 && failed == 0:
		return DispatchSkipped
	case failed == 0:
		return DispatchAllSucceeded
	case succeeded == 0:
		return DispatchAllFailed
	default:
		return DispatchPartialFailure
	}
}
