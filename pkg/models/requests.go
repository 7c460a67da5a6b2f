package models

// CreateOrderRequest is the typed wire payload for POST /api/orders. All
// fields are validated at the boundary; violations come back as a detail
// list so the client can fix everything in one round trip.
type CreateOrderRequest struct {
	CustomerName    string             `json:"customer_name"`
	CustomerEmail   string             `json:"customer_email"`
	CustomerPhone   string             `json:"customer_phone"`
	ShippingAddress Address            `json:"shipping_address"`
	Items           []OrderItemRequest `json:"items"`
}

type OrderItemRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

type CreateOrderResponse struct {
	Success     bool   `json:"success"`
	OrderNumber string `json:"order_number"`
	Total       string `json:"total"`
	Profit      string `json:"profit"`
}

type CreateIntentRequest struct {
	OrderNumber string `json:"order_number"`
	Amount      string `json:"amount"`
}

type CreateIntentResponse struct {
	Success         bool   `json:"success"`
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// ShipmentWebhook is the supplier "package shipped" event. The supplier
// echoes our order number back as the external order id.
type ShipmentWebhook struct {
	Type string `json:"type"`
	Data struct {
		Order struct {
			ExternalID string `json:"external_id"`
		} `json:"order"`
		Shipment struct {
			TrackingNumber string `json:"tracking_number"`
			TrackingURL    string `json:"tracking_url"`
			Carrier        string `json:"carrier"`
		} `json:"shipment"`
	} `json:"data"`
}
