package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/circuitbreaker"
	"github.com/tuathcoir/storefront/internal/events"
	"github.com/tuathcoir/storefront/internal/store"
	"github.com/tuathcoir/storefront/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type fakeAdapter struct {
	name       string
	configured bool
	externalID string
	err        error
	delay      time.Duration
	calls      int
}

func (a *fakeAdapter) Name() string     { return a.name }
func (a *fakeAdapter) Configured() bool { return a.configured }

func (a *fakeAdapter) Submit(ctx context.Context, order *models.Order, items []models.OrderItem) (string, error) {
	a.calls++
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if a.err != nil {
		return "", a.err
	}
	return a.externalID, nil
}

type fakeDispatchStore struct {
	orders    map[string]*models.Order
	ledger    map[string]models.DispatchResult
	aggregate string
	recorded  int
}

func newFakeDispatchStore(orders ...*models.Order) *fakeDispatchStore {
	s := &fakeDispatchStore{orders: make(map[string]*models.Order)}
	for _, o := range orders {
		s.orders[o.OrderNumber] = o
	}
	return s
}

func (s *fakeDispatchStore) GetOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, ok := s.orders[orderNumber]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	return order, nil
}

func (s *fakeDispatchStore) RecordDispatch(ctx context.Context, orderNumber string, results map[string]models.DispatchResult, aggregate string) error {
	s.recorded++
	s.ledger = results
	s.aggregate = aggregate
	return nil
}

func (s *fakeDispatchStore) LogActivity(ctx context.Context, action, description string) error {
	return nil
}

func testOrder(items ...models.OrderItem) *models.Order {
	return &models.Order{
		OrderNumber:   "TC2026082812AB34CD",
		CustomerName:  "Aoife Byrne",
		CustomerEmail: "aoife@example.com",
		ShippingAddress: models.Address{
			Line1:      "12 Harbour Rd",
			City:       "Galway",
			State:      "GA",
			PostalCode: "H91",
			Country:    "IE",
		},
		Items:         items,
		Subtotal:      decimal.NewFromFloat(49.98),
		Total:         decimal.NewFromFloat(59.97),
		PaymentStatus: models.PaymentPaid,
		FulfillStatus: models.FulfillmentUnfulfilled,
	}
}

func item(supplier string) models.OrderItem {
	return models.OrderItem{
		ProductID:         1,
		Name:              "Test Product",
		Quantity:          1,
		Price:             decimal.NewFromFloat(24.99),
		Supplier:          supplier,
		SupplierProductID: "sp-1",
	}
}

func TestFulfillRecordsMixedOutcomes(t *testing.T) {
	printful := &fakeAdapter{name: models.SupplierPrintful, configured: true, externalID: "pf-991"}
	eprolo := &fakeAdapter{name: models.SupplierEprolo, configured: true, delay: time.Second}

	order := testOrder(item(models.SupplierPrintful), item(models.SupplierEprolo))
	dispatchStore := newFakeDispatchStore(order)

	o := NewOrchestrator(
		[]Adapter{printful, eprolo},
		dispatchStore,
		circuitbreaker.NewManager(testLogger()),
		50*time.Millisecond, // eprolo's delay exceeds this, so it times out
		testLogger(),
	)

	if err := o.Fulfill(context.Background(), order); err != nil {
		t.Fatalf("Fulfill returned %v, want nil (supplier failures must not abort the fan-out)", err)
	}

	if dispatchStore.aggregate != models.DispatchPartialFailure {
		t.Errorf("aggregate = %s, want %s", dispatchStore.aggregate, models.DispatchPartialFailure)
	}

	pf, ok := dispatchStore.ledger[models.SupplierPrintful]
	if !ok || !pf.Success {
		t.Fatalf("printful ledger entry = %+v, want success", pf)
	}
	if pf.ExternalOrderID != "pf-991" {
		t.Errorf("printful external id = %q, want pf-991", pf.ExternalOrderID)
	}

	ep, ok := dispatchStore.ledger[models.SupplierEprolo]
	if !ok || ep.Success {
		t.Fatalf("eprolo ledger entry = %+v, want failure", ep)
	}
	if ep.Error == "" {
		t.Error("eprolo ledger entry has no error message")
	}
}

func TestFulfillAllSucceeded(t *testing.T) {
	printful := &fakeAdapter{name: models.SupplierPrintful, configured: true, externalID: "pf-1"}
	zendrop := &fakeAdapter{name: models.SupplierZendrop, configured: true, externalID: "zd-2"}

	order := testOrder(item(models.SupplierPrintful), item(models.SupplierZendrop))
	dispatchStore := newFakeDispatchStore(order)

	o := NewOrchestrator([]Adapter{printful, zendrop}, dispatchStore,
		circuitbreaker.NewManager(testLogger()), time.Second, testLogger())

	if err := o.Fulfill(context.Background(), order); err != nil {
		t.Fatalf("Fulfill returned %v", err)
	}
	if dispatchStore.aggregate != models.DispatchAllSucceeded {
		t.Errorf("aggregate = %s, want %s", dispatchStore.aggregate, models.DispatchAllSucceeded)
	}
	if dispatchStore.recorded != 1 {
		t.Errorf("RecordDispatch called %d times, want 1", dispatchStore.recorded)
	}
}

func TestFulfillSkipsUnconfiguredSupplier(t *testing.T) {
	eprolo := &fakeAdapter{name: models.SupplierEprolo, configured: false}

	order := testOrder(item(models.SupplierEprolo))
	dispatchStore := newFakeDispatchStore(order)

	o := NewOrchestrator([]Adapter{eprolo}, dispatchStore,
		circuitbreaker.NewManager(testLogger()), time.Second, testLogger())

	if err := o.Fulfill(context.Background(), order); err != nil {
		t.Fatalf("Fulfill returned %v", err)
	}

	if eprolo.calls != 0 {
		t.Errorf("unconfigured adapter was called %d times, want 0", eprolo.calls)
	}
	entry := dispatchStore.ledger[models.SupplierEprolo]
	if !entry.Skipped {
		t.Errorf("ledger entry = %+v, want skipped", entry)
	}
	if dispatchStore.aggregate != models.DispatchSkipped {
		t.Errorf("aggregate = %s, want %s", dispatchStore.aggregate, models.DispatchSkipped)
	}
}

func TestFulfillUnknownSupplierFails(t *testing.T) {
	order := testOrder(item("AcmeDropship"))
	dispatchStore := newFakeDispatchStore(order)

	o := NewOrchestrator(nil, dispatchStore,
		circuitbreaker.NewManager(testLogger()), time.Second, testLogger())

	if err := o.Fulfill(context.Background(), order); err != nil {
		t.Fatalf("Fulfill returned %v", err)
	}

	entry, ok := dispatchStore.ledger["AcmeDropship"]
	if !ok {
		t.Fatal("unregistered supplier missing from ledger")
	}
	if entry.Success || entry.Skipped {
		t.Errorf("ledger entry = %+v, want recorded failure", entry)
	}
	if dispatchStore.aggregate != models.DispatchAllFailed {
		t.Errorf("aggregate = %s, want %s", dispatchStore.aggregate, models.DispatchAllFailed)
	}
}

func TestFulfillRecordsItemsWithoutSupplier(t *testing.T) {
	printful := &fakeAdapter{name: models.SupplierPrintful, configured: true, externalID: "pf-7"}

	order := testOrder(item(models.SupplierPrintful), item(""))
	dispatchStore := newFakeDispatchStore(order)

	o := NewOrchestrator([]Adapter{printful}, dispatchStore,
		circuitbreaker.NewManager(testLogger()), time.Second, testLogger())

	if err := o.Fulfill(context.Background(), order); err != nil {
		t.Fatalf("Fulfill returned %v", err)
	}

	if _, ok := dispatchStore.ledger["unknown"]; !ok {
		t.Error("supplier-less items left no ledger entry")
	}
	if dispatchStore.aggregate != models.DispatchPartialFailure {
		t.Errorf("aggregate = %s, want %s", dispatchStore.aggregate, models.DispatchPartialFailure)
	}
}

func TestHandleOrderPaidSkipsDispatchedOrder(t *testing.T) {
	printful := &fakeAdapter{name: models.SupplierPrintful, configured: true, externalID: "pf-8"}

	order := testOrder(item(models.SupplierPrintful))
	order.FulfillStatus = models.FulfillmentProcessing
	dispatchStore := newFakeDispatchStore(order)

	o := NewOrchestrator([]Adapter{printful}, dispatchStore,
		circuitbreaker.NewManager(testLogger()), time.Second, testLogger())

	event := events.OrderPaidEvent{OrderNumber: order.OrderNumber}
	if err := o.HandleOrderPaid(context.Background(), event); err != nil {
		t.Fatalf("HandleOrderPaid returned %v, want nil for redelivery", err)
	}
	if printful.calls != 0 {
		t.Errorf("adapter called %d times on redelivery, want 0", printful.calls)
	}
	if dispatchStore.recorded != 0 {
		t.Errorf("RecordDispatch called %d times on redelivery, want 0", dispatchStore.recorded)
	}
}

func TestIsRetryable(t *testing.T) {
	o := NewOrchestrator(nil, newFakeDispatchStore(),
		circuitbreaker.NewManager(testLogger()), time.Second, testLogger())

	if o.IsRetryable(store.ErrOrderNotFound) {
		t.Error("missing order treated as retryable")
	}
	if !o.IsRetryable(errors.New("supplier timeout")) {
		t.Error("transient error treated as terminal")
	}
}
