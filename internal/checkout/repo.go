package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
)

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository builds a read-only product lookup for checkout.
func NewCatalogRepository(db *gorm.DB) ProductCatalog {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&products).Error
	return products, err
}

func (r *catalogRepository) FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.db.WithContext(ctx).Where("id = ?", vendorID).First(&vendor).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}
