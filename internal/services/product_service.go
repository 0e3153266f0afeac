// internal/services/product_service.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/models"
	"github.com/satmarket/satmarket-backend/internal/utils"
)

type ProductService struct {
	db *gorm.DB
}

type CreateProductRequest struct {
	Title       string         `json:"title" validate:"required,min=3,max=200"`
	Description string         `json:"description" validate:"max=10000"`
	PriceSats   models.Satoshi `json:"price_sats" validate:"required,min=1"`
	Tags        []string       `json:"tags" validate:"max=10,dive,max=50"`
}

func NewProductService(db *gorm.DB) *ProductService {
	return &ProductService{db: db}
}

func (s *ProductService) Create(vendorID uuid.UUID, req *CreateProductRequest) (*models.Product, error) {
	product := &models.Product{
		VendorID:    vendorID,
		Title:       req.Title,
		Description: req.Description,
		PriceSats:   req.PriceSats,
		Tags:        pq.StringArray(req.Tags),
		Status:      models.ProductStatusActive,
	}
	if err := s.db.Create(product).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

func (s *ProductService) Get(productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.Preload("Vendor").First(&product, "id = ?", productID).Error; err != nil {
		return nil, fmt.Errorf("product not found: %w", err)
	}
	return &product, nil
}

func (s *ProductService) List(params *utils.PaginationParams) ([]models.Product, int64, error) {
	query := s.db.Model(&models.Product{}).Where("status = ?", models.ProductStatusActive)
	if params.Category != "" {
		query = query.Where("? = ANY(tags)", params.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	var products []models.Product
	err := query.Order("created_at DESC").
		Offset(params.Offset()).Limit(params.Limit()).
		Find(&products).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// Deactivate delists a product. Only the owning vendor may do it.
func (s *ProductService) Deactivate(productID, vendorID uuid.UUID) error {
	var product models.Product
	if err := s.db.First(&product, "id = ?", productID).Error; err != nil {
		return fmt.Errorf("product not found: %w", err)
	}
	if product.VendorID != vendorID {
		return ErrNotAuthorized
	}
	return s.db.Model(&product).Update("status", models.ProductStatusSuspended).Error
}
