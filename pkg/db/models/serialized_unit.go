package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SerializedUnit is one physical, serial-numbered copy of a product.
// IsAvailable is the administrative flag (maintenance, damage); it is
// independent of date-based booking state. Units referenced by historical
// allocations are soft-deleted, never removed.
type SerializedUnit struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID      `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_units_product_serial"`
	Serial      string         `gorm:"column:serial;not null;uniqueIndex:idx_units_product_serial"`
	IsAvailable bool           `gorm:"column:is_available;not null;default:true"`
	Notes       *string        `gorm:"column:notes"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `gorm:"column:deleted_at;index"`
}
