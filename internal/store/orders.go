package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/pkg/models"
)

// CreateOrder persists a new order and its activity record in one
// transaction, so the catalog snapshot and the durable row can never
// diverge. Returns ErrDuplicateOrderNumber when the unique index rejects
// the minted number; the order service retries with a fresh one.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	snapshotJSON, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order snapshot: %w", err)
	}

	query := `
		INSERT INTO orders (
			order_number, customer_name, customer_email, customer_phone,
			shipping_address, order_data,
			subtotal, tax, shipping, total_amount, profit_amount,
			status, payment_status, fulfillment_status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = tx.ExecContext(ctx, query,
		order.OrderNumber, order.CustomerName, order.CustomerEmail, order.CustomerPhone,
		addressJSON, snapshotJSON,
		order.Subtotal, order.Tax, order.Shipping, order.Total, order.Profit,
		order.Status, order.PaymentStatus, order.FulfillStatus,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrderNumber
		}
		return err
	}

	activityQuery := `INSERT INTO activity_logs (action, description, created_at) VALUES ($1, $2, $3)`
	description := fmt.Sprintf("Order %s created for %s, total %s",
		order.OrderNumber, order.CustomerEmail, order.Total.StringFixed(2))
	if _, err := tx.ExecContext(ctx, activityQuery, "order_created", description, time.Now()); err != nil {
		return err
	}

	return tx.Commit()
}

// GetOrder loads an order by its order number. The line-item snapshot comes
// from the order_data JSON; the mutable status fields come from their own
// columns so webhook transitions are visible without rewriting the snapshot.
func (s *Store) GetOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	query := `
		SELECT order_data, status, payment_status, fulfillment_status,
		       COALESCE(payment_intent_id, ''), COALESCE(tracking_number, ''),
		       COALESCE(tracking_url, ''), updated_at
		FROM orders WHERE order_number = $1
	`

	var snapshot []byte
	var order models.Order
	err := s.db.QueryRowContext(ctx, query, orderNumber).Scan(
		&snapshot, &order.Status, &order.PaymentStatus, &order.FulfillStatus,
		&order.PaymentIntentID, &order.TrackingNumber, &order.TrackingURL,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	status, paymentStatus, fulfillStatus := order.Status, order.PaymentStatus, order.FulfillStatus
	intentID, trackingNumber, trackingURL := order.PaymentIntentID, order.TrackingNumber, order.TrackingURL
	updatedAt := order.UpdatedAt

	if err := json.Unmarshal(snapshot, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order snapshot: %w", err)
	}

	order.Status = status
	order.PaymentStatus = paymentStatus
	order.FulfillStatus = fulfillStatus
	order.PaymentIntentID = intentID
	order.TrackingNumber = trackingNumber
	order.TrackingURL = trackingURL
	order.UpdatedAt = updatedAt

	return &order, nil
}

// SetPaymentIntent records the processor-side intent handle on the order.
func (s *Store) SetPaymentIntent(ctx context.Context, orderNumber, intentID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_intent_id = $1, updated_at = $2 WHERE order_number = $3`,
		intentID, time.Now(), orderNumber)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkPaid transitions payment_status unpaid -> paid and the aggregate
// status to processing. The WHERE clause enforces the one-way invariant:
// a replayed webhook finds no unpaid row and gets transitioned=false.
func (s *Store) MarkPaid(ctx context.Context, orderNumber string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, updated_at = $3
		WHERE order_number = $4 AND payment_status = $5
	`, models.PaymentPaid, models.StatusProcessing, time.Now(), orderNumber, models.PaymentUnpaid)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkPaymentFailed transitions payment_status unpaid -> failed.
func (s *Store) MarkPaymentFailed(ctx context.Context, orderNumber string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, updated_at = $3
		WHERE order_number = $4 AND payment_status = $5
	`, models.PaymentFailed, models.StatusPaymentFailed, time.Now(), orderNumber, models.PaymentUnpaid)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// RecordDispatch writes the complete supplier dispatch ledger and its
// aggregate state in a single update, after the fan-out has finished.
// One write for the whole fan-out, not one per supplier, so concurrent
// completions can't clobber each other. fulfillment_status only moves off
// unfulfilled; an order already shipped keeps its status.
func (s *Store) RecordDispatch(ctx context.Context, orderNumber string, results map[string]models.DispatchResult, aggregate string) error {
	ledgerJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch ledger: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE orders
		SET fulfillment_status = CASE WHEN fulfillment_status = $1 THEN $2 ELSE fulfillment_status END,
		    dispatch_results = $3,
		    dispatch_state = $4,
		    updated_at = $5
		WHERE order_number = $6
	`, models.FulfillmentUnfulfilled, models.FulfillmentProcessing,
		ledgerJSON, aggregate, time.Now(), orderNumber)
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"order_number":   orderNumber,
		"dispatch_state": aggregate,
		"suppliers":      len(results),
	}).Info("Dispatch ledger recorded")

	return nil
}

// MarkShipped advances fulfillment to shipped and records tracking info.
// The guard keeps the status from regressing or double-firing: only an
// order not yet shipped transitions, so the shipment notification goes out
// exactly once per order.
func (s *Store) MarkShipped(ctx context.Context, orderNumber, trackingNumber, trackingURL string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET fulfillment_status = $1, tracking_number = $2, tracking_url = $3, updated_at = $4
		WHERE order_number = $5 AND fulfillment_status <> $1
	`, models.FulfillmentShipped, trackingNumber, trackingURL, time.Now(), orderNumber)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
