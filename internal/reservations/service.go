package reservations

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rioprayoga/lensrent-backend/internal/allocation"
	"github.com/rioprayoga/lensrent-backend/internal/availability"
	"github.com/rioprayoga/lensrent-backend/internal/catalog"
	"github.com/rioprayoga/lensrent-backend/pkg/db"
	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	"github.com/rioprayoga/lensrent-backend/pkg/pagination"
)

// Service owns the reservation lifecycle. Booking is synchronous: the
// reservation, its lines, and its unit allocations commit in one transaction
// or not at all. There is no holds queue and no deferred assignment.
type Service struct {
	client    *db.Client
	repo      *Repository
	catalog   *catalog.Repository
	allocator *allocation.Service
	policy    db.RetryPolicy
	logg      *logger.Logger
}

func NewService(
	client *db.Client,
	repo *Repository,
	cat *catalog.Repository,
	allocator *allocation.Service,
	policy db.RetryPolicy,
	logg *logger.Logger,
) *Service {
	return &Service{
		client:    client,
		repo:      repo,
		catalog:   cat,
		allocator: allocator,
		policy:    policy,
		logg:      logg,
	}
}

// LineInput is one requested item on a booking.
type LineInput struct {
	Kind   string    `json:"kind" validate:"required,oneof=product bundling"`
	ItemID uuid.UUID `json:"item_id" validate:"required"`
	Qty    int       `json:"qty" validate:"required,gt=0"`
}

// CreateInput carries a new booking request.
type CreateInput struct {
	CustomerName  string      `json:"customer_name" validate:"required"`
	CustomerPhone *string     `json:"customer_phone"`
	StartAt       time.Time   `json:"start_at" validate:"required"`
	EndAt         time.Time   `json:"end_at" validate:"required"`
	Notes         *string     `json:"notes"`
	Lines         []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// Create books a reservation. Price snapshots are taken from the catalog at
// booking time; totals are days * rate * qty per line. Allocation failures
// (shortage or exhausted lock retries) roll back the whole booking.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Reservation, error) {
	if err := availability.ValidateRange(input.StartAt, input.EndAt); err != nil {
		return nil, err
	}

	days := rentalDays(input.StartAt, input.EndAt)
	reservation := &models.Reservation{
		Code:          generateCode(),
		CustomerName:  input.CustomerName,
		CustomerPhone: input.CustomerPhone,
		StartAt:       input.StartAt,
		EndAt:         input.EndAt,
		Status:        enums.ReservationStatusPending,
		Notes:         input.Notes,
	}

	err := s.client.WithTxRetry(ctx, s.policy, func(tx *gorm.DB) error {
		cat := s.catalog.WithTx(tx)

		reservation.Lines = reservation.Lines[:0]
		total := decimal.Zero
		for _, lineInput := range input.Lines {
			kind, err := enums.ParseItemKind(lineInput.Kind)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line kind")
			}

			line := models.ReservationLine{
				Kind: kind,
				Qty:  lineInput.Qty,
			}
			switch kind {
			case enums.ItemKindProduct:
				product, err := cat.GetProduct(ctx, lineInput.ItemID)
				if err != nil {
					return err
				}
				productID := product.ID
				line.ProductID = &productID
				line.Name = product.Name
				line.DailyRate = product.DailyRate
			case enums.ItemKindBundling:
				bundling, err := cat.GetBundling(ctx, lineInput.ItemID)
				if err != nil {
					return err
				}
				bundlingID := bundling.ID
				line.BundlingID = &bundlingID
				line.Name = bundling.Name
				line.DailyRate = bundling.DailyRate
			}

			line.LineTotal = line.DailyRate.
				Mul(decimal.NewFromInt(int64(days))).
				Mul(decimal.NewFromInt(int64(lineInput.Qty)))
			total = total.Add(line.LineTotal)
			reservation.Lines = append(reservation.Lines, line)
		}
		reservation.TotalAmount = total

		if err := s.repo.WithTx(tx).Create(ctx, reservation); err != nil {
			return err
		}
		return s.allocator.AllocateReservationTx(ctx, tx, reservation)
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithReservationID(ctx, reservation.ID.String())
	s.logg.Info(ctx, "reservation created")
	return s.repo.FindByID(ctx, reservation.ID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*models.Reservation, error) {
	return s.repo.FindByCode(ctx, code)
}

// List pages reservations, optionally filtered by status.
func (s *Service) List(ctx context.Context, params pagination.Params, statusRaw string) ([]models.Reservation, string, error) {
	var status *enums.ReservationStatus
	if strings.TrimSpace(statusRaw) != "" {
		parsed, err := enums.ParseReservationStatus(statusRaw)
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		status = &parsed
	}

	reservations, err := s.repo.List(ctx, params, status)
	if err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(reservations) > limit {
		reservations = reservations[:limit]
		last := reservations[len(reservations)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return reservations, next, nil
}

// Transition moves a reservation to the next lifecycle status. Disallowed
// transitions fail with STATE_CONFLICT. Cancelling releases the reservation's
// allocations in the same transaction; completing keeps them as history since
// a completed reservation no longer blocks availability.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, next enums.ReservationStatus) (*models.Reservation, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown reservation status")
	}

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		reservation, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !reservation.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move reservation from %s to %s", reservation.Status, next))
		}

		now := time.Now().UTC()
		reservation.Status = next
		switch next {
		case enums.ReservationStatusConfirmed:
			reservation.ConfirmedAt = &now
		case enums.ReservationStatusActive:
			reservation.PickedUpAt = &now
		case enums.ReservationStatusCompleted:
			reservation.ReturnedAt = &now
		case enums.ReservationStatusCancelled:
			reservation.CancelledAt = &now
		}

		if err := repo.Save(ctx, reservation); err != nil {
			return err
		}
		if next == enums.ReservationStatusCancelled {
			return s.allocator.ReleaseTx(ctx, tx, reservation.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithReservationID(ctx, id.String())
	s.logg.Info(ctx, fmt.Sprintf("reservation moved to %s", next))
	return s.repo.FindByID(ctx, id)
}

// rentalDays converts a rental window into charged days, rounding partial
// days up. A window shorter than a day still charges one day.
func rentalDays(start, end time.Time) int {
	hours := end.Sub(start).Hours()
	days := int(math.Ceil(hours / 24))
	if days < 1 {
		days = 1
	}
	return days
}

// generateCode builds a human-readable booking code. Uniqueness is enforced
// by the reservations.code index; collisions on the random suffix would
// surface as a unique violation and fail the booking.
func generateCode() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("RSV-%s-%s", time.Now().UTC().Format("20060102"), suffix)
}
