package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/pkg/models"
)

// EproloClient submits dropship orders to EPROLO.
type EproloClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewEproloClient(apiKey, baseURL string, timeout time.Duration, logger *logrus.Logger) *EproloClient {
	return &EproloClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *EproloClient) Name() string { return models.SupplierEprolo }

func (c *EproloClient) Configured() bool { return c.apiKey != "" }

type eproloOrder struct {
	OrderNum  string          `json:"orderNum"`
	Consignee string          `json:"consignee"`
	Address   string          `json:"address"`
	City      string          `json:"city"`
	Province  string          `json:"province"`
	Country   string          `json:"country"`
	ZipCode   string          `json:"zipCode"`
	Phone     string          `json:"phone"`
	Email     string          `json:"email"`
	Products  []eproloProduct `json:"products"`
}

type eproloProduct struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type eproloResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		OrderID json.Number `json:"orderId"`
	} `json:"data"`
}

func (c *EproloClient) Submit(ctx context.Context, order *models.Order, items []models.OrderItem) (string, error) {
	consignee := order.CustomerName
	if consignee == "" {
		consignee = order.CustomerEmail
	}

	payload := eproloOrder{
		OrderNum:  order.OrderNumber,
		Consignee: consignee,
		Address:   order.ShippingAddress.Line1,
		City:      order.ShippingAddress.City,
		Province:  order.ShippingAddress.State,
		Country:   order.ShippingAddress.Country,
		ZipCode:   order.ShippingAddress.PostalCode,
		Phone:     order.CustomerPhone,
		Email:     order.CustomerEmail,
	}
	for _, item := range items {
		payload.Products = append(payload.Products, eproloProduct{
			ProductID: item.SupplierProductID,
			Quantity:  item.Quantity,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal eprolo order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/order/create", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach eprolo: %w", err)
	}
	defer resp.Body.Close()

	var result eproloResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode eprolo response: %w", err)
	}

	// EPROLO signals success in the body code, not the HTTP status.
	if result.Code != 200 && result.Code != 0 {
		message := result.Message
		if message == "" {
			message = "unknown error"
		}
		return "", fmt.Errorf("eprolo rejected order: %s (code %d)", message, result.Code)
	}

	externalID := result.Data.OrderID.String()
	c.logger.WithFields(logrus.Fields{
		"order_number":    order.OrderNumber,
		"eprolo_order_id": externalID,
		"items":           len(items),
	}).Info("EPROLO order created")

	return externalID, nil
}
