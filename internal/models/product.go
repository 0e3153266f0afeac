// internal/models/product.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product is the minimal catalog entry checkout needs to price an order.
// Catalog management itself lives outside this service.
type Product struct {
	BaseModel
	VendorID    uuid.UUID      `json:"vendor_id" gorm:"type:uuid;not null;index"`
	Title       string         `json:"title" gorm:"size:255;not null"`
	Description string         `json:"description" gorm:"type:text"`
	PriceSats   Satoshi        `json:"price_sats" gorm:"type:bigint;not null"`
	Status      ProductStatus  `json:"status" gorm:"type:varchar(20);default:'active';index"`
	Tags        pq.StringArray `json:"tags" gorm:"type:text[]"`

	// Relationships
	Vendor User `json:"vendor,omitempty" gorm:"foreignKey:VendorID"`
}
