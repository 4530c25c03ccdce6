package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rioprayoga/lensrent-backend/internal/availability"
	"github.com/rioprayoga/lensrent-backend/internal/catalog"
	"github.com/rioprayoga/lensrent-backend/internal/inventory"
	"github.com/rioprayoga/lensrent-backend/pkg/db"
	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
)

type testEnv struct {
	db        *gorm.DB
	client    *db.Client
	allocator *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:allocation_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.SerializedUnit{},
		&models.Bundling{},
		&models.BundlingItem{},
		&models.Reservation{},
		&models.ReservationLine{},
		&models.Allocation{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client, err := db.NewWithConn(conn)
	if err != nil {
		t.Fatalf("wrap client: %v", err)
	}

	inventoryRepo := inventory.NewRepository(conn)
	catalogRepo := catalog.NewRepository(conn)
	calc := availability.NewCalculator(inventoryRepo, catalogRepo)
	logg := logger.New(logger.Options{ServiceName: "test"})

	return &testEnv{
		db:        conn,
		client:    client,
		allocator: NewService(client, calc, catalogRepo, db.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}, nil, logg),
	}
}

func (e *testEnv) seedProduct(t *testing.T, serials ...string) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:       "SKU-" + uuid.NewString()[:8],
		Name:      "Fuji X-T5",
		DailyRate: decimal.NewFromInt(300000),
		IsActive:  true,
	}
	if err := e.db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	for _, serial := range serials {
		if err := e.db.Create(&models.SerializedUnit{ProductID: product.ID, Serial: serial, IsAvailable: true}).Error; err != nil {
			t.Fatalf("seed unit: %v", err)
		}
	}
	return product
}

type lineSpec struct {
	productID  *uuid.UUID
	bundlingID *uuid.UUID
	qty        int
}

func (e *testEnv) seedReservation(t *testing.T, start, end time.Time, lines ...lineSpec) *models.Reservation {
	t.Helper()
	reservation := &models.Reservation{
		Code:         "RSV-" + uuid.NewString()[:8],
		CustomerName: "Dewi",
		StartAt:      start,
		EndAt:        end,
		Status:       enums.ReservationStatusPending,
		TotalAmount:  decimal.Zero,
	}
	for _, spec := range lines {
		kind := enums.ItemKindProduct
		if spec.bundlingID != nil {
			kind = enums.ItemKindBundling
		}
		reservation.Lines = append(reservation.Lines, models.ReservationLine{
			Kind:       kind,
			ProductID:  spec.productID,
			BundlingID: spec.bundlingID,
			Name:       "line",
			Qty:        spec.qty,
			DailyRate:  decimal.Zero,
			LineTotal:  decimal.Zero,
		})
	}
	if err := e.db.Create(reservation).Error; err != nil {
		t.Fatalf("seed reservation: %v", err)
	}
	return reservation
}

func (e *testEnv) allocatedSerials(t *testing.T, reservationID uuid.UUID) []string {
	t.Helper()
	var serials []string
	err := e.db.Model(&models.Allocation{}).
		Joins("JOIN serialized_units ON serialized_units.id = allocations.serialized_unit_id").
		Where("allocations.reservation_id = ?", reservationID).
		Order("serialized_units.serial ASC").
		Pluck("serialized_units.serial", &serials).Error
	if err != nil {
		t.Fatalf("load allocated serials: %v", err)
	}
	return serials
}

func day(d int) time.Time {
	return time.Date(2026, time.November, d, 0, 0, 0, 0, time.UTC)
}

func TestAllocatePicksLowestSerialsFirst(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "SN-003", "SN-001", "SN-002")
	productID := product.ID
	reservation := env.seedReservation(t, day(1), day(3), lineSpec{productID: &productID, qty: 2})

	if err := env.allocator.AllocateReservation(ctx, reservation.ID); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	serials := env.allocatedSerials(t, reservation.ID)
	if len(serials) != 2 || serials[0] != "SN-001" || serials[1] != "SN-002" {
		t.Fatalf("expected lowest serials first, got %v", serials)
	}
}

func TestAllocateInsufficientInventoryRollsBack(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "SN-001", "SN-002")
	productID := product.ID
	reservation := env.seedReservation(t, day(1), day(3), lineSpec{productID: &productID, qty: 3})

	err := env.allocator.AllocateReservation(ctx, reservation.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientInventory {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}
	detail, ok := typed.Details().(ShortageDetail)
	if !ok {
		t.Fatalf("expected shortage detail, got %#v", typed.Details())
	}
	if detail.Requested != 3 || detail.Available != 2 {
		t.Fatalf("unexpected shortage detail: %+v", detail)
	}

	if serials := env.allocatedSerials(t, reservation.ID); len(serials) != 0 {
		t.Fatalf("failed allocation must leave no rows, got %v", serials)
	}
}

func TestAllocateAllOrNothingAcrossLines(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	plenty := env.seedProduct(t, "A-001", "A-002", "A-003")
	scarce := env.seedProduct(t, "B-001")
	plentyID, scarceID := plenty.ID, scarce.ID
	reservation := env.seedReservation(t, day(1), day(3),
		lineSpec{productID: &plentyID, qty: 2},
		lineSpec{productID: &scarceID, qty: 2},
	)

	err := env.allocator.AllocateReservation(ctx, reservation.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientInventory {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}

	if serials := env.allocatedSerials(t, reservation.ID); len(serials) != 0 {
		t.Fatalf("shortage on one line must roll back all lines, got %v", serials)
	}
}

func TestAllocateBundlingExpandsComponents(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	camera := env.seedProduct(t, "CAM-1", "CAM-2")
	tripod := env.seedProduct(t, "TRI-1", "TRI-2", "TRI-3", "TRI-4")

	bundling := &models.Bundling{
		SKU:       "BND-" + uuid.NewString()[:8],
		Name:      "Vlog Kit",
		DailyRate: decimal.NewFromInt(500000),
		IsActive:  true,
		Items: []models.BundlingItem{
			{ProductID: camera.ID, RequiredQty: 1},
			{ProductID: tripod.ID, RequiredQty: 2},
		},
	}
	if err := env.db.Create(bundling).Error; err != nil {
		t.Fatalf("seed bundling: %v", err)
	}

	bundlingID := bundling.ID
	reservation := env.seedReservation(t, day(1), day(3), lineSpec{bundlingID: &bundlingID, qty: 2})

	if err := env.allocator.AllocateReservation(ctx, reservation.ID); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	var cameraCount, tripodCount int64
	env.db.Model(&models.Allocation{}).Where("reservation_id = ? AND product_id = ?", reservation.ID, camera.ID).Count(&cameraCount)
	env.db.Model(&models.Allocation{}).Where("reservation_id = ? AND product_id = ?", reservation.ID, tripod.ID).Count(&tripodCount)
	if cameraCount != 2 || tripodCount != 4 {
		t.Fatalf("expected 2 cameras and 4 tripods, got %d and %d", cameraCount, tripodCount)
	}
}

func TestAllocateSharedProductAcrossLines(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "SN-001", "SN-002")
	productID := product.ID
	reservation := env.seedReservation(t, day(1), day(3),
		lineSpec{productID: &productID, qty: 1},
		lineSpec{productID: &productID, qty: 1},
	)

	if err := env.allocator.AllocateReservation(ctx, reservation.ID); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	serials := env.allocatedSerials(t, reservation.ID)
	if len(serials) != 2 || serials[0] == serials[1] {
		t.Fatalf("lines sharing a product must get distinct units, got %v", serials)
	}
}

func TestAllocateSkipsUnitsHeldByOthers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "SN-001", "SN-002")
	productID := product.ID

	first := env.seedReservation(t, day(1), day(3), lineSpec{productID: &productID, qty: 1})
	if err := env.allocator.AllocateReservation(ctx, first.ID); err != nil {
		t.Fatalf("allocate first: %v", err)
	}

	second := env.seedReservation(t, day(2), day(4), lineSpec{productID: &productID, qty: 1})
	if err := env.allocator.AllocateReservation(ctx, second.ID); err != nil {
		t.Fatalf("allocate second: %v", err)
	}

	firstSerials := env.allocatedSerials(t, first.ID)
	secondSerials := env.allocatedSerials(t, second.ID)
	if firstSerials[0] == secondSerials[0] {
		t.Fatalf("overlapping reservations share a unit: %v vs %v", firstSerials, secondSerials)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "SN-001")
	productID := product.ID
	reservation := env.seedReservation(t, day(1), day(3), lineSpec{productID: &productID, qty: 1})

	if err := env.allocator.AllocateReservation(ctx, reservation.ID); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := env.allocator.Release(ctx, reservation.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if serials := env.allocatedSerials(t, reservation.ID); len(serials) != 0 {
		t.Fatalf("release left rows: %v", serials)
	}
	if err := env.allocator.Release(ctx, reservation.ID); err != nil {
		t.Fatalf("second release must be a no-op, got %v", err)
	}
}

func TestAssignManualReplacesAutomaticPicks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "SN-001", "SN-002", "SN-003")
	productID := product.ID
	reservation := env.seedReservation(t, day(1), day(3), lineSpec{productID: &productID, qty: 1})

	if err := env.allocator.AllocateReservation(ctx, reservation.ID); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if err := env.allocator.AssignManual(ctx, reservation.Lines[0].ID, []string{"SN-003"}); err != nil {
		t.Fatalf("assign manual: %v", err)
	}

	serials := env.allocatedSerials(t, reservation.ID)
	if len(serials) != 1 || serials[0] != "SN-003" {
		t.Fatalf("expected manual pick SN-003, got %v", serials)
	}

	var alloc models.Allocation
	if err := env.db.First(&alloc, "reservation_id = ?", reservation.ID).Error; err != nil {
		t.Fatalf("load allocation: %v", err)
	}
	if !alloc.Manual {
		t.Fatal("manual flag not set")
	}
}

func TestAssignManualRejectsHeldSerial(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "SN-001", "SN-002")
	productID := product.ID

	other := env.seedReservation(t, day(1), day(3), lineSpec{productID: &productID, qty: 1})
	if err := env.allocator.AllocateReservation(ctx, other.ID); err != nil {
		t.Fatalf("allocate other: %v", err)
	}
	otherSerial := env.allocatedSerials(t, other.ID)[0]

	mine := env.seedReservation(t, day(2), day(4), lineSpec{productID: &productID, qty: 1})
	if err := env.allocator.AllocateReservation(ctx, mine.ID); err != nil {
		t.Fatalf("allocate mine: %v", err)
	}

	err := env.allocator.AssignManual(ctx, mine.Lines[0].ID, []string{otherSerial})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientInventory {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}
}

func TestAssignManualRejectsSiblingLineSerial(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "SN-001", "SN-002", "SN-003")
	productID := product.ID
	reservation := env.seedReservation(t, day(1), day(3),
		lineSpec{productID: &productID, qty: 1},
		lineSpec{productID: &productID, qty: 1},
	)

	if err := env.allocator.AllocateReservation(ctx, reservation.ID); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	// Lowest-serial order puts SN-001 on the first line and SN-002 on the
	// second. Reassigning the second line to SN-001 must fail as a typed
	// shortage, not bubble up a unique-constraint violation.
	err := env.allocator.AssignManual(ctx, reservation.Lines[1].ID, []string{"SN-001"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientInventory {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}

	serials := env.allocatedSerials(t, reservation.ID)
	if len(serials) != 2 || serials[0] != "SN-001" || serials[1] != "SN-002" {
		t.Fatalf("failed reassignment must keep prior picks, got %v", serials)
	}
}

func TestAssignManualQtyMismatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "SN-001", "SN-002")
	productID := product.ID
	reservation := env.seedReservation(t, day(1), day(3), lineSpec{productID: &productID, qty: 1})

	err := env.allocator.AssignManual(ctx, reservation.Lines[0].ID, []string{"SN-001", "SN-002"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
