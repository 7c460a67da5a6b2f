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

// ZendropClient submits grooming-product orders to Zendrop.
type ZendropClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewZendropClient(apiKey, baseURL string, timeout time.Duration, logger *logrus.Logger) *ZendropClient {
	return &ZendropClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *ZendropClient) Name() string { return models.SupplierZendrop }

func (c *ZendropClient) Configured() bool { return c.apiKey != "" }

type zendropOrder struct {
	OrderNumber     string `json:"order_number"`
	ShippingAddress struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Address1  string `json:"address1"`
		Address2  string `json:"address2"`
		City      string `json:"city"`
		Province  string `json:"province"`
		Country   string `json:"country"`
		Zip       string `json:"zip"`
		Phone     string `json:"phone"`
		Email     string `json:"email"`
	} `json:"shipping_address"`
	LineItems []zendropLineItem `json:"line_items"`
}

type zendropLineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type zendropResponse struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

func (c *ZendropClient) Submit(ctx context.Context, order *models.Order, items []models.OrderItem) (string, error) {
	payload := zendropOrder{OrderNumber: order.OrderNumber}

	first, last := splitName(order.CustomerName)
	payload.ShippingAddress.FirstName = first
	payload.ShippingAddress.LastName = last
	payload.ShippingAddress.Address1 = order.ShippingAddress.Line1
	payload.ShippingAddress.Address2 = order.ShippingAddress.Line2
	payload.ShippingAddress.City = order.ShippingAddress.City
	payload.ShippingAddress.Province = order.ShippingAddress.State
	payload.ShippingAddress.Country = order.ShippingAddress.Country
	payload.ShippingAddress.Zip = order.ShippingAddress.PostalCode
	payload.ShippingAddress.Phone = order.CustomerPhone
	payload.ShippingAddress.Email = order.CustomerEmail

	for _, item := range items {
		payload.LineItems = append(payload.LineItems, zendropLineItem{
			ProductID: item.SupplierProductID,
			Quantity:  item.Quantity,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal zendrop order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach zendrop: %w", err)
	}
	defer resp.Body.Close()

	var result zendropResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode zendrop response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := result.Error
		if message == "" {
			message = "unknown error"
		}
		return "", fmt.Errorf("zendrop rejected order: %s (status %d)", message, resp.StatusCode)
	}

	externalID := result.OrderID
	if externalID == "" {
		externalID = "unknown"
	}

	c.logger.WithFields(logrus.Fields{
		"order_number":     order.OrderNumber,
		"zendrop_order_id": externalID,
		"items":            len(items),
	}).Info("Zendrop order created")

	return externalID, nil
}
