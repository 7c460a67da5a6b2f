package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/pkg/models"
)

// PrintfulClient submits apparel orders to Printful's print-on-demand API.
type PrintfulClient struct {
	apiKey       string
	baseURL      string
	supportEmail string
	httpClient   *http.Client
	logger       *logrus.Logger
}

func NewPrintfulClient(apiKey, baseURL, supportEmail string, timeout time.Duration, logger *logrus.Logger) *PrintfulClient {
	return &PrintfulClient{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		supportEmail: supportEmail,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *PrintfulClient) Name() string { return models.SupplierPrintful }

func (c *PrintfulClient) Configured() bool { return c.apiKey != "" }

type printfulRecipient struct {
	Name        string `json:"name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	StateCode   string `json:"state_code"`
	CountryCode string `json:"country_code"`
	Zip         string `json:"zip"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

type printfulItem struct {
	SyncVariantID int64  `json:"sync_variant_id"`
	Quantity      int    `json:"quantity"`
	RetailPrice   string `json:"retail_price"`
	Name          string `json:"name"`
}

type printfulOrder struct {
	ExternalID  string            `json:"external_id"`
	Shipping    string            `json:"shipping"`
	Recipient   printfulRecipient `json:"recipient"`
	Items       []printfulItem    `json:"items"`
	RetailCosts struct {
		Currency string `json:"currency"`
		Subtotal string `json:"subtotal"`
		Discount string `json:"discount"`
		Shipping string `json:"shipping"`
		Tax      string `json:"tax"`
		Total    string `json:"total"`
	} `json:"retail_costs"`
	PackingSlip struct {
		Email   string `json:"email"`
		Message string `json:"message"`
	} `json:"packing_slip"`
}

type printfulResponse struct {
	Result struct {
		ID int64 `json:"id"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Submit maps the order's Printful group into a Printful order. The order
// number rides along as external_id so shipment webhooks can be correlated
// back.
func (c *PrintfulClient) Submit(ctx context.Context, order *models.Order, items []models.OrderItem) (string, error) {
	recipientName := order.CustomerName
	if recipientName == "" {
		recipientName = order.CustomerEmail
	}

	payload := printfulOrder{
		ExternalID: order.OrderNumber,
		Shipping:   "STANDARD",
		Recipient: printfulRecipient{
			Name:        recipientName,
			Address1:    order.ShippingAddress.Line1,
			Address2:    order.ShippingAddress.Line2,
			City:        order.ShippingAddress.City,
			StateCode:   order.ShippingAddress.State,
			CountryCode: order.ShippingAddress.Country,
			Zip:         order.ShippingAddress.PostalCode,
			Phone:       order.CustomerPhone,
			Email:       order.CustomerEmail,
		},
	}

	for _, item := range items {
		payload.Items = append(payload.Items, printfulItem{
			SyncVariantID: variantID(item.SupplierProductID),
			Quantity:      item.Quantity,
			RetailPrice:   item.Price.StringFixed(2),
			Name:          item.Name,
		})
	}

	payload.RetailCosts.Currency = "USD"
	payload.RetailCosts.Subtotal = order.Subtotal.StringFixed(2)
	payload.RetailCosts.Discount = "0.00"
	payload.RetailCosts.Shipping = order.Shipping.StringFixed(2)
	payload.RetailCosts.Tax = order.Tax.StringFixed(2)
	payload.RetailCosts.Total = order.Total.StringFixed(2)
	payload.PackingSlip.Email = c.supportEmail
	payload.PackingSlip.Message = "Thank you for supporting Tuath Coir!"

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal printful order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach printful: %w", err)
	}
	defer resp.Body.Close()

	var result printfulResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode printful response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := "unknown error"
		if result.Error != nil && result.Error.Message != "" {
			message = result.Error.Message
		}
		return "", fmt.Errorf("printful rejected order: %s (status %d)", message, resp.StatusCode)
	}

	externalID := strconv.FormatInt(result.Result.ID, 10)
	c.logger.WithFields(logrus.Fields{
		"order_number":      order.OrderNumber,
		"printful_order_id": externalID,
		"items":             len(items),
	}).Info("Printful order created")

	return externalID, nil
}

// variantID extracts the numeric sync variant from the catalog's
// supplier_product_id, which may carry a non-numeric prefix.
func variantID(supplierProductID string) int64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, supplierProductID)
	id, _ := strconv.ParseInt(digits, 10, 64)
	return id
}
