package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/pagination"
)

// Repository persists reservations and their lines.
type Repository struct {
	db *gorm.DB
}

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

func (r *Repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Lines.Allocations").
		Preload("Lines.Allocations.Unit").
		First(&reservation, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Lines.Allocations").
		Preload("Lines.Allocations.Unit").
		First(&reservation, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *Repository) Save(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).
		Omit("Lines").
		Save(reservation).Error
}

// List pages reservations newest-first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, params pagination.Params, status *enums.ReservationStatus) ([]models.Reservation, error) {
	q := r.db.WithContext(ctx).
		Preload("Lines").
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	if status != nil {
		q = q.Where("status = ?", *status)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var reservations []models.Reservation
	if err := q.Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// FindStalePending returns pending reservations created before the cutoff.
// The expiry job cancels these to return their holds to the pool.
func (r *Repository) FindStalePending(ctx context.Context, cutoff time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.ReservationStatusPending, cutoff).
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// FindOverdueActive returns active reservations whose rental window ended
// before the cutoff but were never marked returned.
func (r *Repository) FindOverdueActive(ctx context.Context, cutoff time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_at < ?", enums.ReservationStatusActive, cutoff).
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// FindBlockingWithoutAllocations returns blocking reservations that hold no
// allocation rows. These should not exist; the audit job reports them.
func (r *Repository) FindBlockingWithoutAllocations(ctx context.Context) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := r.db.WithContext(ctx).
		Where("status IN ?", enums.BlockingReservationStatuses).
		Where("NOT EXISTS (SELECT 1 FROM allocations WHERE allocations.reservation_id = reservations.id)").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}
