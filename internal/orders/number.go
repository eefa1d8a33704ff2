package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber builds the merchant-facing order number, e.g. SO20261016-1A2B3C4D.
// Uniqueness per tenant is enforced by idx_orders_tenant_order_no.
func NewOrderNumber(now time.Time, id uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return "SO" + now.UTC().Format("20060102") + "-" + suffix
}
