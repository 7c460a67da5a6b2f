package orders

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tuathcoir/storefront/pkg/models"
)

const (
	maxQuantity = 999
	maxNameLen  = 255
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidationError carries every violation found in a request, not just the
// first, so the client can fix the whole payload in one round trip.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Details, "; "))
}

// validateRequest checks shape only; catalog resolution happens afterwards
// so a bad payload never costs a database round trip per item.
func validateRequest(req *models.CreateOrderRequest) *ValidationError {
	var details []string

	if req.CustomerEmail == "" {
		details = append(details, "customer_email is required")
	} else if !emailPattern.MatchString(req.CustomerEmail) {
		details = append(details, "customer_email is not a valid email address")
	}

	if req.ShippingAddress.Line1 == "" {
		details = append(details, "shipping_address.line1 is required")
	}
	if req.ShippingAddress.City == "" {
		details = append(details, "shipping_address.city is required")
	}
	if req.ShippingAddress.PostalCode == "" {
		details = append(details, "shipping_address.postal_code is required")
	}

	if len(req.Items) == 0 {
		details = append(details, "items must be a non-empty list")
	}
	for i, item := range req.Items {
		if item.ProductID <= 0 {
			details = append(details, fmt.Sprintf("items[%d].product_id is required", i))
		}
		if item.Quantity < 1 || item.Quantity > maxQuantity {
			details = append(details,
				fmt.Sprintf("items[%d].quantity must be between 1 and %d", i, maxQuantity))
		}
	}

	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

var unsafeNameChars = strings.NewReplacer(
	"<", "", ">", "", "\"", "", "'", "", "&", "", ";", "", "\\", "", "`", "",
)

// sanitizeName strips characters that could be replayed into downstream
// HTML or email rendering. Order confirmations embed the customer name
// verbatim.
func sanitizeName(name string) string {
	cleaned := unsafeNameChars.Replace(name)
	cleaned = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > maxNameLen {
		cleaned = cleaned[:maxNameLen]
	}
	return cleaned
}
