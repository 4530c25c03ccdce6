package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
)

// Repository is the read layer over units, reservations, and allocations.
// It owns the overlap predicate and nothing else; availability policy lives
// in the calculator, mutation in the allocator.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// UnitsFor lists the administratively available units of a product, ordered
// by serial so selection stays deterministic.
func (r *Repository) UnitsFor(ctx context.Context, productID uuid.UUID) ([]models.SerializedUnit, error) {
	var units []models.SerializedUnit
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND is_available = ?", productID, true).
		Order("serial ASC").
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

// UnitsForUpdate is UnitsFor with row locks, for use inside the allocation
// transaction. SQLite (tests) serializes writers on its own, so the locking
// clause is applied on Postgres only.
func (r *Repository) UnitsForUpdate(ctx context.Context, productID uuid.UUID) ([]models.SerializedUnit, error) {
	q := r.db.WithContext(ctx).
		Where("product_id = ? AND is_available = ?", productID, true).
		Order("serial ASC")
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var units []models.SerializedUnit
	if err := q.Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

// ConflictingReservations returns the blocking reservations whose range
// overlaps [start, end] and that hold at least one allocation for the product.
// The overlap test is inclusive on both ends: a reservation ending exactly
// when the queried range starts still conflicts.
func (r *Repository) ConflictingReservations(ctx context.Context, productID uuid.UUID, start, end time.Time, excludeReservationID *uuid.UUID) ([]models.Reservation, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Distinct("reservations.*").
		Joins("JOIN allocations ON allocations.reservation_id = reservations.id").
		Where("allocations.product_id = ?", productID).
		Where("reservations.status IN ?", blockingStatuses()).
		Where("reservations.start_at <= ? AND reservations.end_at >= ?", end, start)
	if excludeReservationID != nil {
		q = q.Where("reservations.id <> ?", *excludeReservationID)
	}

	var reservations []models.Reservation
	if err := q.Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// BlockedUnitIDs returns the distinct units of a product held by blocking
// reservations overlapping [start, end].
func (r *Repository) BlockedUnitIDs(ctx context.Context, productID uuid.UUID, start, end time.Time, excludeReservationID *uuid.UUID) ([]uuid.UUID, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Allocation{}).
		Distinct("allocations.serialized_unit_id").
		Joins("JOIN reservations ON reservations.id = allocations.reservation_id").
		Where("allocations.product_id = ?", productID).
		Where("reservations.status IN ?", blockingStatuses()).
		Where("reservations.start_at <= ? AND reservations.end_at >= ?", end, start)
	if excludeReservationID != nil {
		q = q.Where("reservations.id <> ?", *excludeReservationID)
	}

	var ids []uuid.UUID
	if err := q.Pluck("allocations.serialized_unit_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func blockingStatuses() []enums.ReservationStatus {
	return enums.BlockingReservationStatuses
}
