package merchants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository reads merchant configuration: delivery types, free shipping
// threshold, payment methods and platform callback settings.
type Repository interface {
	FindByID(ctx context.Context, tenantID, merchantID uuid.UUID) (*models.Merchant, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindByID returns nil, nil when the merchant does not exist in the tenant.
func (r *repository) FindByID(ctx context.Context, tenantID, merchantID uuid.UUID) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", merchantID, tenantID).
		First(&merchant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load merchant: %w", err)
	}
	return &merchant, nil
}
