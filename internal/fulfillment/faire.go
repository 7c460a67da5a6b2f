package fulfillment

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/pkg/models"
)

// FaireClient handles wholesale items sourced through Faire. Faire has no
// order-submission API for this flow; staff reorder stock through the Faire
// dashboard and ship from local inventory. Submit therefore records the
// dispatch for operator follow-up rather than calling out.
type FaireClient struct {
	logger *logrus.Logger
}

func NewFaireClient(logger *logrus.Logger) *FaireClient {
	return &FaireClient{logger: logger}
}

func (c *FaireClient) Name() string { return models.SupplierFaire }

// Configured is always true: manual processing needs no credentials.
func (c *FaireClient) Configured() bool { return true }

func (c *FaireClient) Submit(ctx context.Context, order *models.Order, items []models.OrderItem) (string, error) {
	c.logger.WithFields(logrus.Fields{
		"order_number": order.OrderNumber,
		"items":        len(items),
	}).Info("Faire items queued for manual processing")

	// The order number doubles as the external reference; there is no
	// partner-side id to record.
	return order.OrderNumber, nil
}
