package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/pricing"
	"github.com/tuathcoir/storefront/internal/store"
	"github.com/tuathcoir/storefront/pkg/models"
)

const mintAttempts = 3

// ProductNotFoundError aborts order creation entirely; there are no
// partial orders.
type ProductNotFoundError struct {
	ProductIDs []int64
}

func (e *ProductNotFoundError) Error() string {
	ids := make([]string, len(e.ProductIDs))
	for i, id := range e.ProductIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("products not found: %s", strings.Join(ids, ", "))
}

type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, error)
}

// Service validates incoming order requests, snapshots the catalog, prices
// the order and persists it.
type Service struct {
	catalog Catalog
	orders  OrderStore
	pricer  *pricing.Engine
	logger  *logrus.Logger
}

func NewService(catalog Catalog, orders OrderStore, pricer *pricing.Engine, logger *logrus.Logger) *Service {
	return &Service{
		catalog: catalog,
		orders:  orders,
		pricer:  pricer,
		logger:  logger,
	}
}

// CreateOrder runs the full creation pipeline: validate, snapshot, price,
// mint an order number, persist. Returns *ValidationError for malformed
// input, *ProductNotFoundError when any referenced product does not
// resolve.
func (s *Service) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	if verr := validateRequest(req); verr != nil {
		return nil, verr
	}

	items, missing, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &ProductNotFoundError{ProductIDs: missing}
	}

	quote := s.pricer.Price(items)

	now := time.Now().UTC()
	order := &models.Order{
		CustomerName:    sanitizeName(req.CustomerName),
		CustomerEmail:   strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		ShippingAddress: req.ShippingAddress,
		Items:           items,
		Subtotal:        quote.Subtotal,
		Tax:             quote.Tax,
		Shipping:        quote.Shipping,
		Total:           quote.Total,
		Profit:          quote.Profit,
		Status:          models.StatusPendingPayment,
		PaymentStatus:   models.PaymentUnpaid,
		FulfillStatus:   models.FulfillmentUnfulfilled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.ShippingAddress.Country == "" {
		order.ShippingAddress.Country = "US"
	}

	// Uniqueness lives in the store's unique index, not the ID space.
	// A collision just means minting again.
	for attempt := 0; attempt < mintAttempts; attempt++ {
		order.OrderNumber = mintOrderNumber(now)

		err = s.orders.CreateOrder(ctx, order)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"order_number":   order.OrderNumber,
				"customer_email": order.CustomerEmail,
				"total":          order.Total.StringFixed(2),
				"profit":         order.Profit.StringFixed(2),
				"items_count":    len(order.Items),
			}).Info("Order created")
			return order, nil
		}
		if !errors.Is(err, store.ErrDuplicateOrderNumber) {
			return nil, err
		}
		s.logger.WithField("order_number", order.OrderNumber).Warn("Order number collision, reminting")
	}

	return nil, fmt.Errorf("failed to mint a unique order number after %d attempts: %w", mintAttempts, err)
}

// GetOrder returns the order projection for tracking.
func (s *Service) GetOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.orders.GetOrder(ctx, orderNumber)
}

// snapshotItems resolves every requested product at this instant and copies
// price, cost and supplier onto the line items. Later catalog edits never
// reach a placed order.
func (s *Service) snapshotItems(ctx context.Context, reqs []models.OrderItemRequest) ([]models.OrderItem, []int64, error) {
	var items []models.OrderItem
	var missing []int64

	for _, r := range reqs {
		product, err := s.catalog.GetProduct(ctx, r.ProductID)
		if errors.Is(err, store.ErrProductNotFound) {
			missing = append(missing, r.ProductID)
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		items = append(items, models.OrderItem{
			ProductID:         product.ID,
			SKU:               product.SKU,
			Name:              product.Name,
			Quantity:          r.Quantity,
			Price:             product.Price,
			CostPrice:         product.CostPrice,
			Supplier:          product.Supplier,
			SupplierProductID: product.SupplierProductID,
		})
	}

	return items, missing, nil
}

// mintOrderNumber builds a TC-prefixed, date-stamped number with a
// UUID-derived suffix. Human-readable, and unique in combination with the
// store's unique index plus the remint loop above.
func mintOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("TC%s%s", now.Format("20060102"), suffix)
}
