package orders

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/payments"
	"github.com/tuathcoir/storefront/internal/store"
	"github.com/tuathcoir/storefront/pkg/models"
)

// LiveFeed pushes order lifecycle events to connected owner dashboards.
type LiveFeed interface {
	Broadcast(messageType string, data interface{}, source string)
}

type Handler struct {
	service *Service
	gateway *payments.StripeClient
	logger  *logrus.Logger
	feed    LiveFeed
}

func NewHandler(service *Service, gateway *payments.StripeClient, logger *logrus.Logger) *Handler {
	return &Handler{
		service: service,
		gateway: gateway,
		logger:  logger,
	}
}

func (h *Handler) SetLiveFeed(feed LiveFeed) {
	h.feed = feed
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode order request")
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), &req)
	if err != nil {
		var verr *ValidationError
		var perr *ProductNotFoundError
		switch {
		case errors.As(err, &verr):
			h.respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false,
				"error":   "Validation failed",
				"details": verr.Details,
			})
		case errors.As(err, &perr):
			h.respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false,
				"error":   perr.Error(),
			})
		default:
			h.internalError(w, err, "Failed to create order")
		}
		return
	}

	if h.feed != nil {
		h.feed.Broadcast("order_created", map[string]interface{}{
			"order_number": order.OrderNumber,
			"total":        order.Total.StringFixed(2),
			"items_count":  len(order.Items),
		}, "storefront")
	}

	h.respondWithJSON(w, http.StatusCreated, models.CreateOrderResponse{
		Success:     true,
		OrderNumber: order.OrderNumber,
		Total:       order.Total.StringFixed(2),
		Profit:      order.Profit.StringFixed(2),
	})
}

// TrackOrder returns the customer-facing order projection. Supplier
// dispatch failures are deliberately absent here; those are operator-facing.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := mux.Vars(r)["order_number"]

	order, err := h.service.GetOrder(r.Context(), orderNumber)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.internalError(w, err, "Failed to load order")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"order": map[string]interface{}{
			"order_number":       order.OrderNumber,
			"customer_email":     order.CustomerEmail,
			"status":             order.Status,
			"payment_status":     order.PaymentStatus,
			"fulfillment_status": order.FulfillStatus,
			"total":              order.Total.StringFixed(2),
			"items":              order.Items,
			"tracking_number":    order.TrackingNumber,
			"tracking_url":       order.TrackingURL,
			"created_at":         order.CreatedAt,
		},
	})
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode payment intent request")
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OrderNumber == "" || req.Amount == "" {
		h.respondWithError(w, http.StatusBadRequest, "order_number and amount are required")
		return
	}

	intent, err := h.gateway.CreateIntent(r.Context(), req.OrderNumber, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrNotConfigured):
			h.respondWithError(w, http.StatusServiceUnavailable, "Payment not configured")
		case errors.Is(err, store.ErrOrderNotFound):
			h.respondWithError(w, http.StatusNotFound, "Order not found")
		default:
			var gerr *payments.GatewayError
			if errors.As(err, &gerr) {
				// The processor's message is safe to show; the user needs
				// it to retry checkout.
				h.respondWithError(w, http.StatusBadGateway, gerr.Message)
				return
			}
			h.internalError(w, err, "Failed to create payment intent")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, models.CreateIntentResponse{
		Success:         true,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.IntentID,
	})
}

func (h *Handler) internalError(w http.ResponseWriter, err error, msg string) {
	correlationID := uuid.New().String()
	h.logger.WithError(err).WithField("correlation_id", correlationID).Error(msg)
	h.respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"success":        false,
		"error":          "Internal server error",
		"correlation_id": correlationID,
	})
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
