package models

import (
	"time"

	"github.com/google/uuid"
)

// Allocation binds one serialized unit to a reservation line. ReservationID
// and ProductID are denormalized so overlap queries never join through lines.
// The (serialized_unit_id, reservation_id) unique index is the write-side
// backstop against double allocation inside a single reservation; cross
// reservation double-booking is prevented by the allocator's availability
// recheck under row locks.
type Allocation struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ReservationID     uuid.UUID       `gorm:"column:reservation_id;type:uuid;not null;index;uniqueIndex:idx_alloc_unit_reservation"`
	ReservationLineID uuid.UUID       `gorm:"column:reservation_line_id;type:uuid;not null;index"`
	ProductID         uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	SerializedUnitID  uuid.UUID       `gorm:"column:serialized_unit_id;type:uuid;not null;uniqueIndex:idx_alloc_unit_reservation"`
	Manual            bool            `gorm:"column:manual;not null;default:false"`
	Unit              *SerializedUnit `gorm:"foreignKey:SerializedUnitID"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}
