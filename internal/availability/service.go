package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rioprayoga/lensrent-backend/internal/catalog"
	"github.com/rioprayoga/lensrent-backend/internal/inventory"
	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
)

// ItemRef points at one rentable item, product or bundling.
type ItemRef struct {
	Kind enums.ItemKind
	ID   uuid.UUID
}

// ComponentAvailability reports a bundling component's contribution: how many
// complete sets its free units can form.
type ComponentAvailability struct {
	ProductID   uuid.UUID `json:"product_id"`
	RequiredQty int       `json:"required_qty"`
	FreeCount   int       `json:"free_count"`
	Sets        int       `json:"sets"`
}

// Result is a point-in-time availability answer for one item over one range.
// FreeSerials is populated for products only; Components for bundlings only.
type Result struct {
	Kind        enums.ItemKind          `json:"kind"`
	ItemID      uuid.UUID               `json:"item_id"`
	StartAt     time.Time               `json:"start_at"`
	EndAt       time.Time               `json:"end_at"`
	FreeCount   int                     `json:"free_count"`
	FreeSerials []string                `json:"free_serials,omitempty"`
	Components  []ComponentAvailability `json:"components,omitempty"`
	ComputedAt  time.Time               `json:"computed_at"`
}

// Calculator answers availability questions against live rows. It never
// mutates anything; the allocator reruns it inside its own transaction to
// revalidate before committing.
type Calculator struct {
	inventory *inventory.Repository
	catalog   *catalog.Repository
}

func NewCalculator(inv *inventory.Repository, cat *catalog.Repository) *Calculator {
	return &Calculator{inventory: inv, catalog: cat}
}

// WithTx returns a calculator whose queries run inside tx.
func (c *Calculator) WithTx(tx *gorm.DB) *Calculator {
	if tx == nil {
		return c
	}
	return &Calculator{
		inventory: c.inventory.WithTx(tx),
		catalog:   c.catalog.WithTx(tx),
	}
}

// ValidateRange enforces the shared range precondition: both bounds set,
// start strictly before end.
func ValidateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if !start.Before(end) {
		return pkgerrors.New(pkgerrors.CodeValidation, "start must be before end")
	}
	return nil
}

// Compute resolves free inventory for the item over [start, end], counting
// pending, confirmed, and active reservations as blocking. Pass
// excludeReservationID when editing an existing reservation so its own
// allocations do not count against it.
func (c *Calculator) Compute(ctx context.Context, ref ItemRef, start, end time.Time, excludeReservationID *uuid.UUID) (*Result, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}
	if !ref.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown item kind")
	}

	switch ref.Kind {
	case enums.ItemKindProduct:
		return c.computeProduct(ctx, ref.ID, start, end, excludeReservationID)
	default:
		return c.computeBundling(ctx, ref.ID, start, end, excludeReservationID)
	}
}

func (c *Calculator) computeProduct(ctx context.Context, productID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Result, error) {
	product, err := c.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	free, err := c.FreeUnits(ctx, product.ID, start, end, exclude)
	if err != nil {
		return nil, err
	}

	serials := make([]string, 0, len(free))
	for _, unit := range free {
		serials = append(serials, unit.Serial)
	}

	return &Result{
		Kind:        enums.ItemKindProduct,
		ItemID:      product.ID,
		StartAt:     start,
		EndAt:       end,
		FreeCount:   len(free),
		FreeSerials: serials,
		ComputedAt:  time.Now().UTC(),
	}, nil
}

// computeBundling takes the minimum over components of
// floor(componentFree / requiredQty). A bundling with no components has zero
// availability, always.
func (c *Calculator) computeBundling(ctx context.Context, bundlingID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Result, error) {
	bundling, err := c.catalog.GetBundling(ctx, bundlingID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Kind:       enums.ItemKindBundling,
		ItemID:     bundling.ID,
		StartAt:    start,
		EndAt:      end,
		ComputedAt: time.Now().UTC(),
	}

	if len(bundling.Items) == 0 {
		return result, nil
	}

	sets := -1
	for _, item := range bundling.Items {
		free, err := c.FreeUnits(ctx, item.ProductID, start, end, exclude)
		if err != nil {
			return nil, err
		}
		componentSets := len(free) / item.RequiredQty
		result.Components = append(result.Components, ComponentAvailability{
			ProductID:   item.ProductID,
			RequiredQty: item.RequiredQty,
			FreeCount:   len(free),
			Sets:        componentSets,
		})
		if sets < 0 || componentSets < sets {
			sets = componentSets
		}
	}

	result.FreeCount = sets
	return result, nil
}

// FreeUnits lists a product's units that are administratively available and
// not held by any blocking reservation over [start, end], ordered by serial.
func (c *Calculator) FreeUnits(ctx context.Context, productID uuid.UUID, start, end time.Time, exclude *uuid.UUID) ([]models.SerializedUnit, error) {
	units, err := c.inventory.UnitsFor(ctx, productID)
	if err != nil {
		return nil, err
	}
	return c.subtractBlocked(ctx, productID, units, start, end, exclude)
}

// FreeUnitsLocked is FreeUnits with the unit rows locked for update. The
// allocator uses it so concurrent transactions on the same product serialize
// and recheck against committed state.
func (c *Calculator) FreeUnitsLocked(ctx context.Context, productID uuid.UUID, start, end time.Time, exclude *uuid.UUID) ([]models.SerializedUnit, error) {
	units, err := c.inventory.UnitsForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}
	return c.subtractBlocked(ctx, productID, units, start, end, exclude)
}

func (c *Calculator) subtractBlocked(ctx context.Context, productID uuid.UUID, units []models.SerializedUnit, start, end time.Time, exclude *uuid.UUID) ([]models.SerializedUnit, error) {
	if len(units) == 0 {
		return nil, nil
	}

	blockedIDs, err := c.inventory.BlockedUnitIDs(ctx, productID, start, end, exclude)
	if err != nil {
		return nil, err
	}

	blocked := make(map[uuid.UUID]struct{}, len(blockedIDs))
	for _, id := range blockedIDs {
		blocked[id] = struct{}{}
	}

	free := make([]models.SerializedUnit, 0, len(units))
	for _, unit := range units {
		if _, held := blocked[unit.ID]; held {
			continue
		}
		free = append(free, unit)
	}
	return free, nil
}
