// Package notify sends transactional customer email through Resend.
// Every send is best-effort: a mail outage must never fail an order or a
// webhook, so senders report a bool instead of an error.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/pkg/models"
)

const defaultBaseURL = "https://api.resend.com"

type ResendClient struct {
	apiKey     string
	baseURL    string
	fromAddr   string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewResendClient(apiKey, baseURL, fromAddr string, timeout time.Duration, logger *logrus.Logger) *ResendClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &ResendClient{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		fromAddr: fromAddr,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *ResendClient) Configured() bool { return c.apiKey != "" }

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// SendOrderConfirmation emails the line-item receipt after checkout.
func (c *ResendClient) SendOrderConfirmation(ctx context.Context, order *models.Order) bool {
	var rows strings.Builder
	for _, item := range order.Items {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%d</td><td>$%s</td></tr>",
			html.EscapeString(item.Name), item.Quantity, item.Price.StringFixed(2))
	}

	body := fmt.Sprintf(`
		<h2>Thanks for your order!</h2>
		<p>Order <strong>%s</strong> is confirmed.</p>
		<table>
			<tr><th>Item</th><th>Qty</th><th>Price</th></tr>
			%s
		</table>
		<p>Subtotal: $%s<br>Tax: $%s<br>Shipping: $%s<br><strong>Total: $%s</strong></p>
		<p>We'll email you again when your order ships.</p>`,
		html.EscapeString(order.OrderNumber), rows.String(),
		order.Subtotal.StringFixed(2), order.Tax.StringFixed(2),
		order.Shipping.StringFixed(2), order.Total.StringFixed(2))

	subject := fmt.Sprintf("Order %s confirmed", order.OrderNumber)
	return c.send(ctx, order.CustomerEmail, subject, body, "order_confirmation", order.OrderNumber)
}

// SendTrackingUpdate emails shipment tracking once a supplier ships.
func (c *ResendClient) SendTrackingUpdate(ctx context.Context, order *models.Order, trackingNumber, trackingURL, carrier string) bool {
	link := html.EscapeString(trackingURL)
	body := fmt.Sprintf(`
		<h2>Your order is on its way!</h2>
		<p>Order <strong>%s</strong> has shipped via %s.</p>
		<p>Tracking number: <strong>%s</strong></p>
		<p><a href="%s">Track your package</a></p>`,
		html.EscapeString(order.OrderNumber), html.EscapeString(carrier),
		html.EscapeString(trackingNumber), link)

	subject := fmt.Sprintf("Order %s has shipped", order.OrderNumber)
	return c.send(ctx, order.CustomerEmail, subject, body, "tracking_update", order.OrderNumber)
}

func (c *ResendClient) send(ctx context.Context, to, subject, htmlBody, kind, orderNumber string) bool {
	if !c.Configured() {
		c.logger.WithFields(logrus.Fields{
			"email_type":   kind,
			"order_number": orderNumber,
		}).Warn("Email not sent: RESEND_API_KEY not configured")
		return false
	}

	payload := resendEmail{
		From:    c.fromAddr,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal email payload")
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewBuffer(data))
	if err != nil {
		c.logger.WithError(err).Error("Failed to create email request")
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("order_number", orderNumber).Error("Failed to reach email provider")
		return false
	}
	defer resp.Body.Close()

	var result resendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.WithError(err).Error("Failed to decode email provider response")
		return false
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithFields(logrus.Fields{
			"email_type":   kind,
			"order_number": orderNumber,
			"status":       resp.StatusCode,
			"message":      result.Message,
		}).Error("Email provider rejected send")
		return false
	}

	c.logger.WithFields(logrus.Fields{
		"email_type":   kind,
		"order_number": orderNumber,
		"email_id":     result.ID,
	}).Info("Email sent")
	return true
}
