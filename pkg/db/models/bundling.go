package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bundling is a composite rentable item: a fixed set of component products
// with per-set required quantities.
type Bundling struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SKU         string          `gorm:"column:sku;not null;uniqueIndex"`
	Name        string          `gorm:"column:name;not null"`
	Description *string         `gorm:"column:description"`
	DailyRate   decimal.Decimal `gorm:"column:daily_rate;type:numeric(12,2);not null"`
	IsActive    bool            `gorm:"column:is_active;not null;default:true"`
	Items       []BundlingItem  `gorm:"foreignKey:BundlingID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// BundlingItem binds one component product and its required quantity per set.
type BundlingItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	BundlingID  uuid.UUID `gorm:"column:bundling_id;type:uuid;not null;uniqueIndex:idx_bundling_product"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_bundling_product"`
	RequiredQty int       `gorm:"column:required_qty;not null;default:1"`
	Product     *Product  `gorm:"foreignKey:ProductID"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
