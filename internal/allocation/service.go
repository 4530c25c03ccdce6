package allocation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rioprayoga/lensrent-backend/internal/availability"
	"github.com/rioprayoga/lensrent-backend/internal/catalog"
	"github.com/rioprayoga/lensrent-backend/pkg/db"
	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	"github.com/rioprayoga/lensrent-backend/pkg/metrics"
)

const (
	outcomeAllocated    = "allocated"
	outcomeInsufficient = "insufficient"
	outcomeConflict     = "conflict"
	outcomeError        = "error"
)

// ShortageDetail is attached to INSUFFICIENT_INVENTORY errors so callers can
// tell which product ran out and by how much.
type ShortageDetail struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Service binds serialized units to reservation lines. Every write path
// recomputes availability under row locks inside its transaction, so a
// committed allocation is backed by units that were genuinely free at commit
// time. All-or-nothing: a shortage on any line rolls back the whole batch.
type Service struct {
	client  *db.Client
	calc    *availability.Calculator
	catalog *catalog.Repository
	policy  db.RetryPolicy
	metrics *metrics.AllocationMetrics
	logg    *logger.Logger
}

func NewService(
	client *db.Client,
	calc *availability.Calculator,
	cat *catalog.Repository,
	policy db.RetryPolicy,
	m *metrics.AllocationMetrics,
	logg *logger.Logger,
) *Service {
	return &Service{
		client:  client,
		calc:    calc,
		catalog: cat,
		policy:  policy,
		metrics: m,
		logg:    logg,
	}
}

// AllocateReservation assigns units to every line of the reservation in one
// retried transaction.
func (s *Service) AllocateReservation(ctx context.Context, reservationID uuid.UUID) error {
	ctx = s.logg.WithReservationID(ctx, reservationID.String())

	err := s.client.WithTxRetry(ctx, s.policy, func(tx *gorm.DB) error {
		var reservation models.Reservation
		if err := tx.WithContext(ctx).Preload("Lines").First(&reservation, "id = ?", reservationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
			}
			return err
		}
		return s.AllocateReservationTx(ctx, tx, &reservation)
	})

	s.recordOutcome(err)
	if err != nil {
		return err
	}

	s.logg.Info(ctx, "reservation allocated")
	return nil
}

// AllocateReservationTx runs the allocation inside an existing transaction.
// The reservation creation flow uses this so booking and allocation commit or
// roll back together.
func (s *Service) AllocateReservationTx(ctx context.Context, tx *gorm.DB, reservation *models.Reservation) error {
	if !reservation.Status.IsBlocking() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not in an allocatable status")
	}

	calc := s.calc.WithTx(tx)

	// Units assigned earlier in this same transaction. FreeUnitsLocked
	// excludes the reservation's own holds, so without this a product shared
	// by two lines could hand out the same serial twice.
	assigned := map[uuid.UUID]struct{}{}

	for i := range reservation.Lines {
		line := &reservation.Lines[i]
		demand, err := s.demandFor(ctx, tx, line)
		if err != nil {
			return err
		}

		productIDs := make([]uuid.UUID, 0, len(demand))
		for id := range demand {
			productIDs = append(productIDs, id)
		}
		sort.Slice(productIDs, func(a, b int) bool {
			return productIDs[a].String() < productIDs[b].String()
		})

		for _, productID := range productIDs {
			needed := demand[productID]
			free, err := calc.FreeUnitsLocked(ctx, productID, reservation.StartAt, reservation.EndAt, &reservation.ID)
			if err != nil {
				return err
			}

			picked := make([]models.SerializedUnit, 0, needed)
			for _, unit := range free {
				if _, taken := assigned[unit.ID]; taken {
					continue
				}
				picked = append(picked, unit)
				if len(picked) == needed {
					break
				}
			}

			if len(picked) < needed {
				available := 0
				for _, unit := range free {
					if _, taken := assigned[unit.ID]; !taken {
						available++
					}
				}
				return pkgerrors.New(pkgerrors.CodeInsufficientInventory,
					fmt.Sprintf("product %s has %d free units, %d requested", productID, available, needed)).
					WithDetails(ShortageDetail{
						ProductID: productID,
						Requested: needed,
						Available: available,
					})
			}

			for _, unit := range picked {
				allocation := models.Allocation{
					ReservationID:     reservation.ID,
					ReservationLineID: line.ID,
					ProductID:         productID,
					SerializedUnitID:  unit.ID,
				}
				if err := tx.WithContext(ctx).Create(&allocation).Error; err != nil {
					return err
				}
				assigned[unit.ID] = struct{}{}
			}
		}
	}
	return nil
}

// demandFor expands one line into per-product unit counts. A product line
// needs qty units of its product; a bundling line needs qty * required_qty of
// every component.
func (s *Service) demandFor(ctx context.Context, tx *gorm.DB, line *models.ReservationLine) (map[uuid.UUID]int, error) {
	demand := map[uuid.UUID]int{}

	switch line.Kind {
	case enums.ItemKindProduct:
		if line.ProductID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product line is missing its product id")
		}
		demand[*line.ProductID] = line.Qty
	case enums.ItemKindBundling:
		if line.BundlingID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "bundling line is missing its bundling id")
		}
		bundling, err := s.catalog.WithTx(tx).GetBundling(ctx, *line.BundlingID)
		if err != nil {
			return nil, err
		}
		if len(bundling.Items) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientInventory, "bundling has no components").
				WithDetails(ShortageDetail{Requested: line.Qty, Available: 0})
		}
		for _, item := range bundling.Items {
			demand[item.ProductID] += line.Qty * item.RequiredQty
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown line kind")
	}
	return demand, nil
}

// Release drops every allocation held by the reservation. Releasing a
// reservation that holds nothing is a no-op, so retries are safe.
func (s *Service) Release(ctx context.Context, reservationID uuid.UUID) error {
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ReleaseTx(ctx, tx, reservationID)
	})
}

// ReleaseTx is Release inside an existing transaction.
func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error {
	return tx.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Delete(&models.Allocation{}).Error
}

// AssignManual replaces a product line's automatic picks with operator-chosen
// serials. The replacement passes the same availability check as automatic
// allocation; a serial held by another overlapping reservation is rejected.
func (s *Service) AssignManual(ctx context.Context, lineID uuid.UUID, serials []string) error {
	if len(serials) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one serial is required")
	}

	err := s.client.WithTxRetry(ctx, s.policy, func(tx *gorm.DB) error {
		var line models.ReservationLine
		if err := tx.WithContext(ctx).First(&line, "id = ?", lineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "reservation line not found")
			}
			return err
		}
		if line.Kind != enums.ItemKindProduct || line.ProductID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "manual serial assignment applies to product lines only")
		}
		if len(serials) != line.Qty {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("line needs exactly %d serials, got %d", line.Qty, len(serials)))
		}

		var reservation models.Reservation
		if err := tx.WithContext(ctx).First(&reservation, "id = ?", line.ReservationID).Error; err != nil {
			return err
		}
		if !reservation.Status.IsBlocking() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not in an allocatable status")
		}

		free, err := s.calc.WithTx(tx).FreeUnitsLocked(ctx, *line.ProductID, reservation.StartAt, reservation.EndAt, &reservation.ID)
		if err != nil {
			return err
		}

		// The availability recheck excludes this reservation's own holds, so
		// units held by sibling lines look free. They are not assignable here.
		var siblingUnitIDs []uuid.UUID
		if err := tx.WithContext(ctx).
			Model(&models.Allocation{}).
			Where("reservation_id = ? AND reservation_line_id <> ?", reservation.ID, line.ID).
			Pluck("serialized_unit_id", &siblingUnitIDs).Error; err != nil {
			return err
		}
		heldBySibling := make(map[uuid.UUID]struct{}, len(siblingUnitIDs))
		for _, unitID := range siblingUnitIDs {
			heldBySibling[unitID] = struct{}{}
		}

		freeBySerial := make(map[string]models.SerializedUnit, len(free))
		for _, unit := range free {
			if _, held := heldBySibling[unit.ID]; held {
				continue
			}
			freeBySerial[unit.Serial] = unit
		}

		picked := make([]models.SerializedUnit, 0, len(serials))
		seen := make(map[string]struct{}, len(serials))
		for _, serial := range serials {
			if _, dup := seen[serial]; dup {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("serial %s listed more than once", serial))
			}
			seen[serial] = struct{}{}
			unit, ok := freeBySerial[serial]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeInsufficientInventory,
					fmt.Sprintf("serial %s is not free for the requested range", serial)).
					WithDetails(ShortageDetail{
						ProductID: *line.ProductID,
						Requested: len(serials),
						Available: len(freeBySerial),
					})
			}
			picked = append(picked, unit)
		}

		if err := tx.WithContext(ctx).
			Where("reservation_line_id = ?", line.ID).
			Delete(&models.Allocation{}).Error; err != nil {
			return err
		}
		for _, unit := range picked {
			allocation := models.Allocation{
				ReservationID:     reservation.ID,
				ReservationLineID: line.ID,
				ProductID:         *line.ProductID,
				SerializedUnitID:  unit.ID,
				Manual:            true,
			}
			if err := tx.WithContext(ctx).Create(&allocation).Error; err != nil {
				return err
			}
		}
		return nil
	})

	s.recordOutcome(err)
	return err
}

func (s *Service) recordOutcome(err error) {
	switch {
	case err == nil:
		s.metrics.IncOutcome(outcomeAllocated)
	case pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeInsufficientInventory:
		s.metrics.IncOutcome(outcomeInsufficient)
	case pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeConcurrencyConflict:
		s.metrics.IncOutcome(outcomeConflict)
		s.metrics.IncLockConflict()
	default:
		s.metrics.IncOutcome(outcomeError)
	}
}
