package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/events"
	"github.com/tuathcoir/storefront/internal/store"
	"github.com/tuathcoir/storefront/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type fakeTransitions struct {
	orders map[string]*models.Order
	claims map[string]bool

	markPaidCalls    int
	markShippedCalls int
	markPaidErr      error
}

func newFakeTransitions(orders ...*models.Order) *fakeTransitions {
	f := &fakeTransitions{
		orders: make(map[string]*models.Order),
		claims: make(map[string]bool),
	}
	for _, o := range orders {
		f.orders[o.OrderNumber] = o
	}
	return f
}

func (f *fakeTransitions) GetOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	o, ok := f.orders[orderNumber]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeTransitions) MarkPaid(ctx context.Context, orderNumber string) (bool, error) {
	if f.markPaidErr != nil {
		return false, f.markPaidErr
	}
	f.markPaidCalls++
	o, ok := f.orders[orderNumber]
	if !ok || o.PaymentStatus != models.PaymentUnpaid {
		return false, nil
	}
	o.PaymentStatus = models.PaymentPaid
	o.Status = models.StatusProcessing
	return true, nil
}

func (f *fakeTransitions) MarkPaymentFailed(ctx context.Context, orderNumber string) (bool, error) {
	o, ok := f.orders[orderNumber]
	if !ok || o.PaymentStatus != models.PaymentUnpaid {
		return false, nil
	}
	o.PaymentStatus = models.PaymentFailed
	o.Status = models.StatusPaymentFailed
	return true, nil
}

func (f *fakeTransitions) MarkShipped(ctx context.Context, orderNumber, trackingNumber, trackingURL string) (bool, error) {
	f.markShippedCalls++
	o, ok := f.orders[orderNumber]
	if !ok || o.FulfillStatus == models.FulfillmentShipped {
		return false, nil
	}
	o.FulfillStatus = models.FulfillmentShipped
	o.TrackingNumber = trackingNumber
	o.TrackingURL = trackingURL
	return true, nil
}

func (f *fakeTransitions) ClaimEvent(ctx context.Context, provider, eventID string) (bool, error) {
	key := provider + ":" + eventID
	if f.claims[key] {
		return false, nil
	}
	f.claims[key] = true
	return true, nil
}

func (f *fakeTransitions) ReleaseEvent(ctx context.Context, provider, eventID string) error {
	delete(f.claims, provider+":"+eventID)
	return nil
}

func (f *fakeTransitions) LogActivity(ctx context.Context, action, description string) error {
	return nil
}

type fakePublisher struct {
	published []events.OrderPaidEvent
	err       error
}

func (p *fakePublisher) PublishOrderPaid(event events.OrderPaidEvent) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

type fakeNotifier struct {
	confirmationsSent int
	trackingSent      int
}

func (n *fakeNotifier) SendOrderConfirmation(ctx context.Context, order *models.Order) bool {
	n.confirmationsSent++
	return true
}

func (n *fakeNotifier) SendTrackingUpdate(ctx context.Context, order *models.Order, trackingNumber, trackingURL, carrier string) bool {
	n.trackingSent++
	return true
}

func unpaidOrder(number string) *models.Order {
	return &models.Order{
		OrderNumber:   number,
		CustomerEmail: "aoife@example.com",
		Total:         decimal.RequireFromString("59.97"),
		Status:        models.StatusPendingPayment,
		PaymentStatus: models.PaymentUnpaid,
		FulfillStatus: models.FulfillmentUnfulfilled,
	}
}

func paymentEvent(eventID, eventType, orderNumber string) []byte {
	payload := map[string]interface{}{
		"id":   eventID,
		"type": eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       "pi_123",
				"metadata": map[string]string{"order_number": orderNumber},
			},
		},
	}
	body, _ := json.Marshal(payload)
	return body
}

func postStripe(h *Handler, body []byte, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(body))
	if secret != "" {
		req.Header.Set("Stripe-Signature", SignPayload(secret, body, time.Now()))
	}
	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, req)
	return rec
}

func TestStripeWebhookPaymentSucceeded(t *testing.T) {
	transitions := newFakeTransitions(unpaidOrder("TC20260828AAAA1111"))
	publisher := &fakePublisher{}
	notifier := &fakeNotifier{}
	h := NewHandler(transitions, publisher, notifier, testSecret, false, testLogger())

	body := paymentEvent("evt_1", "payment_intent.succeeded", "TC20260828AAAA1111")
	rec := postStripe(h, body, testSecret)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	order := transitions.orders["TC20260828AAAA1111"]
	if order.PaymentStatus != models.PaymentPaid {
		t.Errorf("payment_status = %s, want paid", order.PaymentStatus)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("published %d events, want 1", len(publisher.published))
	}
	if publisher.published[0].Total != "59.97" {
		t.Errorf("published total = %s, want 59.97", publisher.published[0].Total)
	}
	if notifier.confirmationsSent != 1 {
		t.Errorf("confirmations sent = %d, want 1", notifier.confirmationsSent)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	transitions := newFakeTransitions(unpaidOrder("TC20260828AAAA1111"))
	h := NewHandler(transitions, &fakePublisher{}, &fakeNotifier{}, testSecret, false, testLogger())

	body := paymentEvent("evt_1", "payment_intent.succeeded", "TC20260828AAAA1111")
	rec := postStripe(h, body, "whsec_wrong")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if transitions.markPaidCalls != 0 {
		t.Error("MarkPaid was called for an unverified webhook")
	}
}

func TestStripeWebhookUnconfiguredSecret(t *testing.T) {
	transitions := newFakeTransitions(unpaidOrder("TC20260828AAAA1111"))
	h := NewHandler(transitions, &fakePublisher{}, &fakeNotifier{}, "", false, testLogger())

	body := paymentEvent("evt_1", "payment_intent.succeeded", "TC20260828AAAA1111")
	rec := postStripe(h, body, "")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when verification is not configured", rec.Code)
	}
}

func TestStripeWebhookReplayIsIdempotent(t *testing.T) {
	transitions := newFakeTransitions(unpaidOrder("TC20260828AAAA1111"))
	publisher := &fakePublisher{}
	h := NewHandler(transitions, publisher, &fakeNotifier{}, testSecret, false, testLogger())

	body := paymentEvent("evt_1", "payment_intent.succeeded", "TC20260828AAAA1111")

	first := postStripe(h, body, testSecret)
	if first.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d", first.Code)
	}

	second := postStripe(h, body, testSecret)
	if second.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", second.Code)
	}

	var resp map[string]bool
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp["duplicate"] {
		t.Error("replay response not flagged duplicate")
	}
	if len(publisher.published) != 1 {
		t.Errorf("published %d events across replay, want 1", len(publisher.published))
	}
	if transitions.markPaidCalls != 1 {
		t.Errorf("MarkPaid called %d times, want 1", transitions.markPaidCalls)
	}
}

func TestStripeWebhookPublishFailureReleasesClaim(t *testing.T) {
	transitions := newFakeTransitions(unpaidOrder("TC20260828AAAA1111"))
	publisher := &fakePublisher{err: errors.New("broker unavailable")}
	h := NewHandler(transitions, publisher, &fakeNotifier{}, testSecret, false, testLogger())

	body := paymentEvent("evt_1", "payment_intent.succeeded", "TC20260828AAAA1111")
	rec := postStripe(h, body, testSecret)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the processor redelivers", rec.Code)
	}
	if len(transitions.claims) != 0 {
		t.Error("claim was not released after publish failure")
	}

	// Redelivery with the broker back succeeds.
	publisher.err = nil
	rec = postStripe(h, body, testSecret)
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d, want 200", rec.Code)
	}
	if len(publisher.published) != 1 {
		t.Errorf("published %d events, want 1", len(publisher.published))
	}
}

func TestStripeWebhookPaymentFailed(t *testing.T) {
	transitions := newFakeTransitions(unpaidOrder("TC20260828AAAA1111"))
	h := NewHandler(transitions, &fakePublisher{}, &fakeNotifier{}, testSecret, false, testLogger())

	body := paymentEvent("evt_2", "payment_intent.payment_failed", "TC20260828AAAA1111")
	rec := postStripe(h, body, testSecret)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	order := transitions.orders["TC20260828AAAA1111"]
	if order.PaymentStatus != models.PaymentFailed {
		t.Errorf("payment_status = %s, want failed", order.PaymentStatus)
	}
}

func TestStripeWebhookIgnoresUnknownEventType(t *testing.T) {
	transitions := newFakeTransitions(unpaidOrder("TC20260828AAAA1111"))
	h := NewHandler(transitions, &fakePublisher{}, &fakeNotifier{}, testSecret, false, testLogger())

	body := paymentEvent("evt_3", "charge.refunded", "TC20260828AAAA1111")
	rec := postStripe(h, body, testSecret)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for unhandled types", rec.Code)
	}
	if transitions.markPaidCalls != 0 {
		t.Error("unhandled event type mutated order state")
	}
}

func TestStripeWebhookMissingOrderNumber(t *testing.T) {
	h := NewHandler(newFakeTransitions(), &fakePublisher{}, &fakeNotifier{}, testSecret, false, testLogger())

	body := paymentEvent("evt_4", "payment_intent.succeeded", "")
	rec := postStripe(h, body, testSecret)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing metadata", rec.Code)
	}
}

func shipmentEvent(orderNumber, tracking string) []byte {
	body := fmt.Sprintf(`{
		"type": "package_shipped",
		"data": {
			"order": {"external_id": %q},
			"shipment": {"tracking_number": %q, "tracking_url": "https://track.example/%s"}
		}
	}`, orderNumber, tracking, tracking)
	return []byte(body)
}

func postSupplier(h *Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/supplier", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.SupplierWebhook(rec, req)
	return rec
}

func TestSupplierWebhookShipsOrder(t *testing.T) {
	order := unpaidOrder("TC20260828BBBB2222")
	order.PaymentStatus = models.PaymentPaid
	order.FulfillStatus = models.FulfillmentProcessing
	transitions := newFakeTransitions(order)
	notifier := &fakeNotifier{}
	h := NewHandler(transitions, &fakePublisher{}, notifier, testSecret, false, testLogger())

	rec := postSupplier(h, shipmentEvent("TC20260828BBBB2222", "9400110200830"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if order.FulfillStatus != models.FulfillmentShipped {
		t.Errorf("fulfillment_status = %s, want shipped", order.FulfillStatus)
	}
	if order.TrackingNumber != "9400110200830" {
		t.Errorf("tracking_number = %s, want recorded", order.TrackingNumber)
	}
	if notifier.trackingSent != 1 {
		t.Errorf("tracking notifications = %d, want 1", notifier.trackingSent)
	}
}

func TestSupplierWebhookReplayDoesNotRenotify(t *testing.T) {
	order := unpaidOrder("TC20260828BBBB2222")
	order.FulfillStatus = models.FulfillmentProcessing
	transitions := newFakeTransitions(order)
	notifier := &fakeNotifier{}
	h := NewHandler(transitions, &fakePublisher{}, notifier, testSecret, false, testLogger())

	body := shipmentEvent("TC20260828BBBB2222", "9400110200830")
	postSupplier(h, body)
	rec := postSupplier(h, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", rec.Code)
	}
	if notifier.trackingSent != 1 {
		t.Errorf("tracking notifications across replay = %d, want 1", notifier.trackingSent)
	}
}

func TestSupplierWebhookMissingOrderReference(t *testing.T) {
	h := NewHandler(newFakeTransitions(), &fakePublisher{}, &fakeNotifier{}, testSecret, false, testLogger())

	rec := postSupplier(h, shipmentEvent("", "9400110200830"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
