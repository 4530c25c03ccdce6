package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rioprayoga/lensrent-backend/pkg/enums"
)

// Reservation is a date-range hold on inventory tied to a customer booking.
// StartAt/EndAt are inclusive on both ends: a reservation ending exactly when
// another starts still conflicts (same-day handover policy).
type Reservation struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Code          string                  `gorm:"column:code;not null;uniqueIndex"`
	CustomerName  string                  `gorm:"column:customer_name;not null"`
	CustomerPhone *string                 `gorm:"column:customer_phone"`
	StartAt       time.Time               `gorm:"column:start_at;not null;index:idx_reservations_range"`
	EndAt         time.Time               `gorm:"column:end_at;not null;index:idx_reservations_range"`
	Status        enums.ReservationStatus `gorm:"column:status;not null;default:'pending';index:idx_reservations_range"`
	TotalAmount   decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Notes         *string                 `gorm:"column:notes"`
	Lines         []ReservationLine       `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE"`
	ConfirmedAt   *time.Time              `gorm:"column:confirmed_at"`
	PickedUpAt    *time.Time              `gorm:"column:picked_up_at"`
	ReturnedAt    *time.Time              `gorm:"column:returned_at"`
	CancelledAt   *time.Time              `gorm:"column:cancelled_at"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// ReservationLine is one booked item (product or bundling) with a price
// snapshot taken at booking time.
type ReservationLine struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ReservationID uuid.UUID       `gorm:"column:reservation_id;type:uuid;not null;index"`
	Kind          enums.ItemKind  `gorm:"column:kind;not null"`
	ProductID     *uuid.UUID      `gorm:"column:product_id;type:uuid"`
	BundlingID    *uuid.UUID      `gorm:"column:bundling_id;type:uuid"`
	Name          string          `gorm:"column:name;not null"`
	Qty           int             `gorm:"column:qty;not null"`
	DailyRate     decimal.Decimal `gorm:"column:daily_rate;type:numeric(12,2);not null"`
	LineTotal     decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	Allocations   []Allocation    `gorm:"foreignKey:ReservationLineID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
