package reservations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rioprayoga/lensrent-backend/internal/allocation"
	"github.com/rioprayoga/lensrent-backend/internal/availability"
	"github.com/rioprayoga/lensrent-backend/internal/catalog"
	"github.com/rioprayoga/lensrent-backend/internal/inventory"
	"github.com/rioprayoga/lensrent-backend/pkg/db"
	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	"github.com/rioprayoga/lensrent-backend/pkg/pagination"
)

type testEnv struct {
	db      *gorm.DB
	service *Service
	calc    *availability.Calculator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:reservations_" + uuid.NewString() + "?mode=memory&cache=shared"
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
	reservationRepo := NewRepository(conn)
	calc := availability.NewCalculator(inventoryRepo, catalogRepo)
	logg := logger.New(logger.Options{ServiceName: "test"})
	policy := db.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}
	allocator := allocation.NewService(client, calc, catalogRepo, policy, nil, logg)

	return &testEnv{
		db:      conn,
		service: NewService(client, reservationRepo, catalogRepo, allocator, policy, logg),
		calc:    calc,
	}
}

func (e *testEnv) seedProduct(t *testing.T, rate int64, serials ...string) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:       "SKU-" + uuid.NewString()[:8],
		Name:      "Nikon Z6",
		DailyRate: decimal.NewFromInt(rate),
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

func day(d int) time.Time {
	return time.Date(2026, time.December, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateBooksAndAllocates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, 200000, "SN-001", "SN-002")

	reservation, err := env.service.Create(ctx, CreateInput{
		CustomerName: "Budi",
		StartAt:      day(1),
		EndAt:        day(4),
		Lines: []LineInput{
			{Kind: "product", ItemID: product.ID, Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if reservation.Status != enums.ReservationStatusPending {
		t.Fatalf("expected pending, got %s", reservation.Status)
	}
	if reservation.Code == "" {
		t.Fatal("missing booking code")
	}
	// 3 days * 200000 * 2 units
	want := decimal.NewFromInt(1200000)
	if !reservation.TotalAmount.Equal(want) {
		t.Fatalf("expected total %s, got %s", want, reservation.TotalAmount)
	}
	if len(reservation.Lines) != 1 || len(reservation.Lines[0].Allocations) != 2 {
		t.Fatalf("expected 2 allocations on the line, got %+v", reservation.Lines)
	}
}

func TestCreateChargesPartialDaysAsFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	product := env.seedProduct(t, 100000, "SN-001")

	start := day(1)
	end := day(1).Add(30 * time.Hour)
	reservation, err := env.service.Create(context.Background(), CreateInput{
		CustomerName: "Sari",
		StartAt:      start,
		EndAt:        end,
		Lines:        []LineInput{{Kind: "product", ItemID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := decimal.NewFromInt(200000)
	if !reservation.TotalAmount.Equal(want) {
		t.Fatalf("30h must charge 2 days: expected %s, got %s", want, reservation.TotalAmount)
	}
}

func TestCreateShortageFailsWholeBooking(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, 200000, "SN-001")

	_, err := env.service.Create(ctx, CreateInput{
		CustomerName: "Budi",
		StartAt:      day(1),
		EndAt:        day(3),
		Lines:        []LineInput{{Kind: "product", ItemID: product.ID, Qty: 2}},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientInventory {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}

	var count int64
	env.db.Model(&models.Reservation{}).Count(&count)
	if count != 0 {
		t.Fatalf("failed booking must not persist a reservation, found %d", count)
	}
}

func TestCreateRejectsInvalidRange(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	product := env.seedProduct(t, 200000, "SN-001")

	_, err := env.service.Create(context.Background(), CreateInput{
		CustomerName: "Budi",
		StartAt:      day(3),
		EndAt:        day(1),
		Lines:        []LineInput{{Kind: "product", ItemID: product.ID, Qty: 1}},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateUnknownItem(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedProduct(t, 200000, "SN-001")

	_, err := env.service.Create(context.Background(), CreateInput{
		CustomerName: "Budi",
		StartAt:      day(1),
		EndAt:        day(3),
		Lines:        []LineInput{{Kind: "product", ItemID: uuid.New(), Qty: 1}},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransitionLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, 200000, "SN-001")

	reservation, err := env.service.Create(ctx, CreateInput{
		CustomerName: "Budi",
		StartAt:      day(1),
		EndAt:        day(3),
		Lines:        []LineInput{{Kind: "product", ItemID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, next := range []enums.ReservationStatus{
		enums.ReservationStatusConfirmed,
		enums.ReservationStatusActive,
		enums.ReservationStatusCompleted,
	} {
		reservation, err = env.service.Transition(ctx, reservation.ID, next)
		if err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
		if reservation.Status != next {
			t.Fatalf("expected %s, got %s", next, reservation.Status)
		}
	}
	if reservation.ConfirmedAt == nil || reservation.PickedUpAt == nil || reservation.ReturnedAt == nil {
		t.Fatalf("lifecycle timestamps missing: %+v", reservation)
	}
}

func TestTransitionDisallowed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, 200000, "SN-001")

	reservation, err := env.service.Create(ctx, CreateInput{
		CustomerName: "Budi",
		StartAt:      day(1),
		EndAt:        day(3),
		Lines:        []LineInput{{Kind: "product", ItemID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.service.Transition(ctx, reservation.ID, enums.ReservationStatusCompleted)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("pending cannot complete directly, got %v", err)
	}
}

func TestCancelReleasesUnits(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, 200000, "SN-001")

	reservation, err := env.service.Create(ctx, CreateInput{
		CustomerName: "Budi",
		StartAt:      day(1),
		EndAt:        day(3),
		Lines:        []LineInput{{Kind: "product", ItemID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ref := availability.ItemRef{Kind: enums.ItemKindProduct, ID: product.ID}
	before, err := env.calc.Compute(ctx, ref, day(1), day(3), nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if before.FreeCount != 0 {
		t.Fatalf("expected 0 free while booked, got %d", before.FreeCount)
	}

	if _, err := env.service.Transition(ctx, reservation.ID, enums.ReservationStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	after, err := env.calc.Compute(ctx, ref, day(1), day(3), nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if after.FreeCount != 1 {
		t.Fatalf("cancel must return units to the pool, got %d free", after.FreeCount)
	}

	var count int64
	env.db.Model(&models.Allocation{}).Where("reservation_id = ?", reservation.ID).Count(&count)
	if count != 0 {
		t.Fatalf("cancel must delete allocations, found %d", count)
	}
}

func TestCompleteKeepsAllocationHistory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, 200000, "SN-001")

	reservation, err := env.service.Create(ctx, CreateInput{
		CustomerName: "Budi",
		StartAt:      day(1),
		EndAt:        day(3),
		Lines:        []LineInput{{Kind: "product", ItemID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, next := range []enums.ReservationStatus{
		enums.ReservationStatusConfirmed,
		enums.ReservationStatusActive,
		enums.ReservationStatusCompleted,
	} {
		if _, err := env.service.Transition(ctx, reservation.ID, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}

	// Rows stay for history, but a completed reservation no longer blocks.
	var count int64
	env.db.Model(&models.Allocation{}).Where("reservation_id = ?", reservation.ID).Count(&count)
	if count != 1 {
		t.Fatalf("completed reservation must keep allocation history, found %d", count)
	}

	result, err := env.calc.Compute(ctx, availability.ItemRef{Kind: enums.ItemKindProduct, ID: product.ID}, day(1), day(3), nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.FreeCount != 1 {
		t.Fatalf("completed reservation must not block, got %d free", result.FreeCount)
	}
}

func TestListFiltersByStatusAndPaginates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, 200000, "SN-001", "SN-002", "SN-003")

	var created []*models.Reservation
	for i := 0; i < 3; i++ {
		reservation, err := env.service.Create(ctx, CreateInput{
			CustomerName: "Budi",
			StartAt:      day(1 + 4*i),
			EndAt:        day(3 + 4*i),
			Lines:        []LineInput{{Kind: "product", ItemID: product.ID, Qty: 1}},
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		created = append(created, reservation)
	}
	if _, err := env.service.Transition(ctx, created[0].ID, enums.ReservationStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	pending, _, err := env.service.List(ctx, pagination.Params{Limit: 10}, "pending")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	firstPage, next, err := env.service.List(ctx, pagination.Params{Limit: 2}, "")
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(firstPage) != 2 || next == "" {
		t.Fatalf("expected a full first page with cursor, got %d rows", len(firstPage))
	}

	secondPage, _, err := env.service.List(ctx, pagination.Params{Limit: 2, Cursor: next}, "")
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(secondPage) != 1 {
		t.Fatalf("expected 1 row on second page, got %d", len(secondPage))
	}

	_, _, err = env.service.List(ctx, pagination.Params{Limit: 10}, "bogus")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for bogus status, got %v", err)
	}
}
