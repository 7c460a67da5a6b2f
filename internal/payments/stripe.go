package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/circuitbreaker"
	"github.com/tuathcoir/storefront/pkg/models"
)

var ErrNotConfigured = errors.New("payment gateway not configured")

// GatewayError carries the processor's rejection message. It is surfaced
// to the client so the user can retry checkout; it is never swallowed.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway error: %s", e.Message)
}

type Intent struct {
	IntentID     string
	ClientSecret string
}

type OrderStore interface {
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	SetPaymentIntent(ctx context.Context, orderNumber, intentID string) error
}

// StripeClient creates payment intents against the Stripe REST API. The
// intent is tagged with the order number and customer email so the webhook
// can correlate the event back to the order.
type StripeClient struct {
	secretKey  string
	baseURL    string
	orders     OrderStore
	breaker    *circuitbreaker.Breaker
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewStripeClient(secretKey, baseURL string, orders OrderStore, breaker *circuitbreaker.Breaker, timeout time.Duration, logger *logrus.Logger) *StripeClient {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeClient{
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		orders:    orders,
		breaker:   breaker,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type stripeIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent creates a processor-side intent for the given amount and
// persists its id on the order.
func (c *StripeClient) CreateIntent(ctx context.Context, orderNumber, amount string) (*Intent, error) {
	if c.secretKey == "" {
		return nil, ErrNotConfigured
	}

	order, err := c.orders.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	amountDec, err := decimal.NewFromString(amount)
	if err != nil || amountDec.IsNegative() || amountDec.IsZero() {
		return nil, &GatewayError{Message: "invalid amount"}
	}
	cents := amountDec.Shift(2).Round(0).IntPart()

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(cents, 10))
	form.Set("currency", "usd")
	form.Set("metadata[order_number]", order.OrderNumber)
	form.Set("metadata[customer_email]", order.CustomerEmail)
	form.Set("automatic_payment_methods[enabled]", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp *http.Response
	call := func() error {
		var doErr error
		resp, doErr = c.httpClient.Do(req)
		return doErr
	}
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, &GatewayError{Message: "payment processor temporarily unavailable"}
		}
		return nil, fmt.Errorf("failed to reach payment processor: %w", err)
	}
	defer resp.Body.Close()

	var intentResp stripeIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&intentResp); err != nil {
		return nil, fmt.Errorf("failed to decode processor response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := "payment processor rejected the request"
		if intentResp.Error != nil && intentResp.Error.Message != "" {
			message = intentResp.Error.Message
		}
		c.logger.WithFields(logrus.Fields{
			"order_number": orderNumber,
			"status":       resp.StatusCode,
			"message":      message,
		}).Error("Payment intent creation failed")
		return nil, &GatewayError{Message: message}
	}

	if err := c.orders.SetPaymentIntent(ctx, orderNumber, intentResp.ID); err != nil {
		return nil, fmt.Errorf("failed to record payment intent: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"order_number":      orderNumber,
		"payment_intent_id": intentResp.ID,
		"amount_cents":      cents,
	}).Info("Payment intent created")

	return &Intent{
		IntentID:     intentResp.ID,
		ClientSecret: intentResp.ClientSecret,
	}, nil
}
