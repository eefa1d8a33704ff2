package orders

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// RestoreStock returns every item quantity of a cancelled order to its
// product. Callers pass a repository bound to the cancelling transaction.
func RestoreStock(ctx context.Context, stock products.Repository, order *models.Order) error {
	for _, item := range order.Items {
		if err := stock.RestoreStock(ctx, order.TenantID, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("restore stock for %s: %w", item.ProductID, err)
		}
	}
	return nil
}
