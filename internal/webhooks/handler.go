package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/events"
	"github.com/tuathcoir/storefront/pkg/models"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// OrderTransitions is the slice of the store the dispatcher mutates.
type OrderTransitions interface {
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	MarkPaid(ctx context.Context, orderNumber string) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderNumber string) (bool, error)
	MarkShipped(ctx context.Context, orderNumber, trackingNumber, trackingURL string) (bool, error)
	ClaimEvent(ctx context.Context, provider, eventID string) (bool, error)
	ReleaseEvent(ctx context.Context, provider, eventID string) error
	LogActivity(ctx context.Context, action, description string) error
}

// Publisher enqueues the fulfillment trigger. The webhook response never
// waits on fulfillment itself; the queue guarantees the work survives the
// response lifecycle.
type Publisher interface {
	PublishOrderPaid(event events.OrderPaidEvent) error
}

// Notifier sends customer-facing email. Best-effort on both methods: mail
// provider trouble never fails a webhook.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) bool
	SendTrackingUpdate(ctx context.Context, order *models.Order, trackingNumber, trackingURL, carrier string) bool
}

type LiveFeed interface {
	Broadcast(messageType string, data interface{}, source string)
}

// Handler verifies inbound webhooks and drives the order state machine.
type Handler struct {
	orders          OrderTransitions
	publisher       Publisher
	notifier        Notifier
	logger          *logrus.Logger
	feed            LiveFeed
	signingSecret   string
	allowUnverified bool
	tolerance       time.Duration
}

func NewHandler(orders OrderTransitions, publisher Publisher, notifier Notifier, signingSecret string, allowUnverified bool, logger *logrus.Logger) *Handler {
	return &Handler{
		orders:          orders,
		publisher:       publisher,
		notifier:        notifier,
		logger:          logger,
		signingSecret:   signingSecret,
		allowUnverified: allowUnverified,
		tolerance:       DefaultTolerance,
	}
}

func (h *Handler) SetLiveFeed(feed LiveFeed) {
	h.feed = feed
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// StripeWebhook handles payment processor events. The body is never parsed
// before the signature checks out; verification failures return a 400 with
// no hint of why.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if h.signingSecret == "" {
		if !h.allowUnverified {
			h.logger.Error("Stripe webhook received but no signing secret is configured")
			h.respondWithError(w, http.StatusServiceUnavailable, "Webhook verification not configured")
			return
		}
		h.logger.Warn("Processing unverified webhook: STRIPE_WEBHOOK_ALLOW_UNVERIFIED is set")
	} else {
		sigHeader := r.Header.Get("Stripe-Signature")
		if err := VerifySignature(h.signingSecret, body, sigHeader, h.tolerance, time.Now()); err != nil {
			h.logger.WithError(err).Warn("Webhook signature verification failed")
			h.respondWithError(w, http.StatusBadRequest, "Invalid signature")
			return
		}
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.WithError(err).Error("Failed to decode webhook event")
		h.respondWithError(w, http.StatusBadRequest, "Invalid event payload")
		return
	}

	orderNumber := event.Data.Object.Metadata["order_number"]

	switch event.Type {
	case "payment_intent.succeeded":
		h.handlePaymentSucceeded(r.Context(), w, &event, orderNumber)
	case "payment_intent.payment_failed":
		h.handlePaymentFailed(r.Context(), w, &event, orderNumber)
	default:
		h.logger.WithField("event_type", event.Type).Info("Ignoring unhandled webhook event type")
		h.respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

func (h *Handler) handlePaymentSucceeded(ctx context.Context, w http.ResponseWriter, event *stripeEvent, orderNumber string) {
	if orderNumber == "" {
		h.logger.Warn("Payment succeeded event has no order_number metadata")
		h.respondWithError(w, http.StatusBadRequest, "Missing order_number metadata")
		return
	}

	eventID := dedupKey(event, orderNumber)
	first, err := h.orders.ClaimEvent(ctx, "stripe", eventID)
	if err != nil {
		h.internalError(w, err, "Failed to claim webhook event")
		return
	}
	if !first {
		h.logger.WithFields(logrus.Fields{
			"order_number": orderNumber,
			"event_id":     eventID,
		}).Info("Duplicate payment webhook, already processed")
		h.respondWithJSON(w, http.StatusOK, map[string]bool{"received": true, "duplicate": true})
		return
	}

	transitioned, err := h.orders.MarkPaid(ctx, orderNumber)
	if err != nil {
		// Undo the claim so the sender's retry can reprocess.
		h.orders.ReleaseEvent(ctx, "stripe", eventID)
		h.internalError(w, err, "Failed to mark order paid")
		return
	}

	order, err := h.orders.GetOrder(ctx, orderNumber)
	if err != nil {
		h.orders.ReleaseEvent(ctx, "stripe", eventID)
		h.internalError(w, err, "Failed to load paid order")
		return
	}

	if order.PaymentStatus != models.PaymentPaid {
		h.logger.WithFields(logrus.Fields{
			"order_number":   orderNumber,
			"payment_status": order.PaymentStatus,
		}).Warn("Payment succeeded event for an order not in paid state")
		h.respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	// The publish is keyed off the claim, not the transition: a previous
	// attempt may have marked the order paid and then failed to enqueue. The
	// worker tolerates a duplicate enqueue; a lost one strands the order.
	paidEvent := events.OrderPaidEvent{
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		Total:         order.Total.StringFixed(2),
		PaidAt:        time.Now().UTC(),
	}
	if err := h.publisher.PublishOrderPaid(paidEvent); err != nil {
		// Release the claim and fail the webhook so the processor
		// redelivers; MarkPaid staying applied is fine.
		h.orders.ReleaseEvent(ctx, "stripe", eventID)
		h.internalError(w, err, "Failed to enqueue fulfillment")
		return
	}

	if transitioned {
		h.orders.LogActivity(ctx, "payment_received",
			fmt.Sprintf("Order %s paid, fulfillment queued", orderNumber))

		sent := h.notifier.SendOrderConfirmation(ctx, order)
		h.logger.WithFields(logrus.Fields{
			"order_number":      orderNumber,
			"confirmation_sent": sent,
		}).Info("Order confirmation attempted")

		if h.feed != nil {
			h.feed.Broadcast("order_paid", map[string]string{
				"order_number": orderNumber,
				"total":        order.Total.StringFixed(2),
			}, "webhooks")
		}
	}

	h.logger.WithField("order_number", orderNumber).Info("Payment confirmed, fulfillment queued")

	h.respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) handlePaymentFailed(ctx context.Context, w http.ResponseWriter, event *stripeEvent, orderNumber string) {
	if orderNumber == "" {
		h.respondWithError(w, http.StatusBadRequest, "Missing order_number metadata")
		return
	}

	transitioned, err := h.orders.MarkPaymentFailed(ctx, orderNumber)
	if err != nil {
		h.internalError(w, err, "Failed to mark payment failed")
		return
	}

	if transitioned {
		h.orders.LogActivity(ctx, "payment_failed",
			fmt.Sprintf("Payment failed for order %s", orderNumber))
		h.logger.WithField("order_number", orderNumber).Info("Payment failed, no fulfillment")
	}

	h.respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// SupplierWebhook handles shipment notifications from fulfillment
// partners. The supplier echoes our order number as external_id.
func (h *Handler) SupplierWebhook(w http.ResponseWriter, r *http.Request) {
	var event models.ShipmentWebhook
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&event); err != nil {
		h.logger.WithError(err).Error("Failed to decode supplier webhook")
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()

	switch event.Type {
	case "package_shipped":
		orderNumber := event.Data.Order.ExternalID
		if orderNumber == "" {
			h.logger.Warn("Supplier shipment webhook has no external order id")
			h.respondWithError(w, http.StatusBadRequest, "Missing order reference")
			return
		}

		shipped, err := h.orders.MarkShipped(ctx, orderNumber,
			event.Data.Shipment.TrackingNumber, event.Data.Shipment.TrackingURL)
		if err != nil {
			h.internalError(w, err, "Failed to mark order shipped")
			return
		}
		if !shipped {
			// Already shipped: a replayed webhook must not re-notify.
			h.logger.WithField("order_number", orderNumber).Info("Order already shipped, skipping notification")
			h.respondWithJSON(w, http.StatusOK, map[string]bool{"received": true, "duplicate": true})
			return
		}

		order, err := h.orders.GetOrder(ctx, orderNumber)
		if err != nil {
			h.internalError(w, err, "Failed to load shipped order")
			return
		}

		carrier := event.Data.Shipment.Carrier
		if carrier == "" {
			carrier = "USPS"
		}
		sent := h.notifier.SendTrackingUpdate(ctx, order,
			event.Data.Shipment.TrackingNumber, event.Data.Shipment.TrackingURL, carrier)

		h.orders.LogActivity(ctx, "order_shipped",
			fmt.Sprintf("Order %s shipped, tracking %s", orderNumber, event.Data.Shipment.TrackingNumber))

		if h.feed != nil {
			h.feed.Broadcast("order_shipped", map[string]string{
				"order_number":    orderNumber,
				"tracking_number": event.Data.Shipment.TrackingNumber,
			}, "webhooks")
		}

		h.logger.WithFields(logrus.Fields{
			"order_number":      orderNumber,
			"tracking_number":   event.Data.Shipment.TrackingNumber,
			"notification_sent": sent,
		}).Info("Order marked shipped")

	case "order_failed":
		h.logger.WithField("event", event.Data).Error("Supplier reported order failure")
	case "order_canceled":
		h.logger.WithField("event", event.Data).Info("Supplier reported order cancellation")
	default:
		h.logger.WithField("event_type", event.Type).Info("Ignoring unhandled supplier event type")
	}

	h.respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// dedupKey prefers the processor's event id; synthesizes one from the
// event type and order number when absent.
func dedupKey(event *stripeEvent, orderNumber string) string {
	if event.ID != "" {
		return event.ID
	}
	return fmt.Sprintf("%s:%s", event.Type, orderNumber)
}

func (h *Handler) internalError(w http.ResponseWriter, err error, msg string) {
	h.logger.WithError(err).Error(msg)
	h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
