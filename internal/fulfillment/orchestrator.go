// Package fulfillment fans a paid order out to its suppliers. Each supplier
// group is submitted concurrently behind a circuit breaker; every attempt is
// recorded in the dispatch ledger so partial failures stay visible to
// operators instead of being silently counted as success.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/circuitbreaker"
	"github.com/tuathcoir/storefront/internal/events"
	"github.com/tuathcoir/storefront/internal/store"
	"github.com/tuathcoir/storefront/pkg/models"
)

// DispatchStore is the slice of the order store the orchestrator needs.
type DispatchStore interface {
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	RecordDispatch(ctx context.Context, orderNumber string, results map[string]models.DispatchResult, aggregate string) error
	LogActivity(ctx context.Context, action, description string) error
}

type Orchestrator struct {
	adapters map[string]Adapter
	store    DispatchStore
	breakers *circuitbreaker.Manager
	timeout  time.Duration
	logger   *logrus.Logger
}

func NewOrchestrator(adapters []Adapter, dispatchStore DispatchStore, breakers *circuitbreaker.Manager, timeout time.Duration, logger *logrus.Logger) *Orchestrator {
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Orchestrator{
		adapters: byName,
		store:    dispatchStore,
		breakers: breakers,
		timeout:  timeout,
		logger:   logger,
	}
}

// HandleOrderPaid is the consumer entry point: load the order, run the
// supplier fan-out, persist the ledger. Redeliveries of an order whose
// fan-out already ran are skipped by the fulfillment_status check.
func (o *Orchestrator) HandleOrderPaid(ctx context.Context, event events.OrderPaidEvent) error {
	order, err := o.store.GetOrder(ctx, event.OrderNumber)
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", event.OrderNumber, err)
	}

	if order.FulfillStatus != models.FulfillmentUnfulfilled {
		o.logger.WithFields(logrus.Fields{
			"order_number":       order.OrderNumber,
			"fulfillment_status": order.FulfillStatus,
		}).Info("Order already dispatched, skipping redelivery")
		return nil
	}

	return o.Fulfill(ctx, order)
}

// IsRetryable treats a missing order as terminal; everything else (supplier
// timeouts, database hiccups) gets the consumer's backoff retries.
func (o *Orchestrator) IsRetryable(err error) bool {
	return !errors.Is(err, store.ErrOrderNotFound)
}

// Fulfill runs the supplier fan-out for one order. Adapter failures never
// abort the fan-out: each supplier's outcome lands in the ledger and the
// aggregate state is derived from the full set.
func (o *Orchestrator) Fulfill(ctx context.Context, order *models.Order) error {
	groups, orphans := order.SupplierGroups()

	results := make(map[string]models.DispatchResult)
	var mutex sync.Mutex

	if len(orphans) > 0 {
		// Items with no supplier can't be dispatched anywhere. Record a
		// failed entry so the gap shows up as partial_failure, not success.
		o.logger.WithFields(logrus.Fields{
			"order_number": order.OrderNumber,
			"items":        len(orphans),
		}).Error("Order has items with no supplier assigned")
		results["unknown"] = models.DispatchResult{
			Supplier:    "unknown",
			Success:     false,
			Error:       fmt.Sprintf("%d item(s) have no supplier assigned", len(orphans)),
			AttemptedAt: time.Now(),
		}
	}

	var wg sync.WaitGroup
	for supplier, items := range groups {
		wg.Add(1)
		go func(supplier string, items []models.OrderItem) {
			defer wg.Done()
			result := o.dispatch(ctx, order, supplier, items)
			mutex.Lock()
			results[supplier] = result
			mutex.Unlock()
		}(supplier, items)
	}
	wg.Wait()

	aggregate := models.AggregateDispatchState(results)
	if err := o.store.RecordDispatch(ctx, order.OrderNumber, results, aggregate); err != nil {
		return fmt.Errorf("failed to record dispatch ledger: %w", err)
	}

	description := fmt.Sprintf("Order %s dispatched to %d supplier(s): %s",
		order.OrderNumber, len(groups), aggregate)
	if err := o.store.LogActivity(ctx, "order_dispatched", description); err != nil {
		o.logger.WithError(err).Warn("Failed to write dispatch activity log")
	}

	o.logger.WithFields(logrus.Fields{
		"order_number":   order.OrderNumber,
		"dispatch_state": aggregate,
		"suppliers":      len(groups),
	}).Info("Supplier fan-out complete")

	return nil
}

// dispatch submits one supplier group and converts every outcome, including
// panics in an adapter, into a ledger entry.
func (o *Orchestrator) dispatch(ctx context.Context, order *models.Order, supplier string, items []models.OrderItem) (result models.DispatchResult) {
	result = models.DispatchResult{
		Supplier:    supplier,
		AttemptedAt: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.WithFields(logrus.Fields{
				"order_number": order.OrderNumber,
				"supplier":     supplier,
				"panic":        r,
			}).Error("Supplier adapter panicked")
			result.Success = false
			result.Error = fmt.Sprintf("adapter panic: %v", r)
		}
	}()

	adapter, ok := o.adapters[supplier]
	if !ok {
		// A supplier name on a catalog row with no registered adapter is a
		// configuration bug; surface it as a failure, never drop the items.
		o.logger.WithFields(logrus.Fields{
			"order_number": order.OrderNumber,
			"supplier":     supplier,
		}).Error("No adapter registered for supplier")
		result.Error = "no adapter registered for supplier"
		return result
	}

	if !adapter.Configured() {
		o.logger.WithFields(logrus.Fields{
			"order_number": order.OrderNumber,
			"supplier":     supplier,
		}).Warn("Supplier not configured, skipping dispatch")
		result.Skipped = true
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var externalID string
	err := o.breakers.GetOrCreate(supplier).Execute(func() error {
		var submitErr error
		externalID, submitErr = adapter.Submit(callCtx, order, items)
		return submitErr
	})
	if err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"order_number": order.OrderNumber,
			"supplier":     supplier,
			"items":        len(items),
		}).Error("Supplier dispatch failed")
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.ExternalOrderID = externalID
	return result
}
