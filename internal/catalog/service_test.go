package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rioprayoga/lensrent-backend/pkg/db"
	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	"github.com/rioprayoga/lensrent-backend/pkg/pagination"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := "file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.SerializedUnit{},
		&models.Bundling{},
		&models.BundlingItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	client, err := db.NewWithConn(conn)
	if err != nil {
		t.Fatalf("wrap client: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test"})
	return NewService(client, NewRepository(conn), logg), conn
}

func TestCreateProductWithInitialUnits(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, CreateProductInput{
		SKU:       "CAM-A7IV",
		Name:      "Sony A7 IV",
		DailyRate: decimal.NewFromInt(350000),
		Serials:   []string{"SN-001", "SN-002"},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.ID == uuid.Nil {
		t.Fatal("missing product id")
	}

	var count int64
	conn.Model(&models.SerializedUnit{}).Where("product_id = ?", product.ID).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 units, got %d", count)
	}
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	input := CreateProductInput{SKU: "CAM-X", Name: "Camera", DailyRate: decimal.NewFromInt(100)}
	if _, err := svc.CreateProduct(ctx, input); err != nil {
		t.Fatalf("create product: %v", err)
	}
	_, err := svc.CreateProduct(ctx, input)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateProductDuplicateSerialRollsBack(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, CreateProductInput{
		SKU:       "CAM-Y",
		Name:      "Camera",
		DailyRate: decimal.NewFromInt(100),
		Serials:   []string{"SN-001", "SN-001"},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	var count int64
	conn.Model(&models.Product{}).Count(&count)
	if count != 0 {
		t.Fatalf("failed create must roll back the product, found %d", count)
	}
}

func TestRegisterUnitForUnknownProduct(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.RegisterUnit(context.Background(), RegisterUnitInput{ProductID: uuid.New(), Serial: "SN-001"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetUnitAvailability(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, CreateProductInput{
		SKU:       "CAM-Z",
		Name:      "Camera",
		DailyRate: decimal.NewFromInt(100),
		Serials:   []string{"SN-001"},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	unit, err := svc.repo.FindUnitBySerial(ctx, product.ID, "SN-001")
	if err != nil {
		t.Fatalf("find unit: %v", err)
	}

	updated, err := svc.SetUnitAvailability(ctx, unit.ID, false)
	if err != nil {
		t.Fatalf("set availability: %v", err)
	}
	if updated.IsAvailable {
		t.Fatal("unit must be flagged unavailable")
	}
}

func TestRetireUnitSoftDeletes(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, CreateProductInput{
		SKU:       "CAM-R",
		Name:      "Camera",
		DailyRate: decimal.NewFromInt(100),
		Serials:   []string{"SN-001"},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	unit, err := svc.repo.FindUnitBySerial(ctx, product.ID, "SN-001")
	if err != nil {
		t.Fatalf("find unit: %v", err)
	}

	if err := svc.RetireUnit(ctx, unit.ID); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if err := svc.RetireUnit(ctx, unit.ID); err == nil {
		t.Fatal("retiring twice must report not found")
	}

	var count int64
	conn.Unscoped().Model(&models.SerializedUnit{}).Where("id = ?", unit.ID).Count(&count)
	if count != 1 {
		t.Fatal("retired unit row must survive for history")
	}
}

func TestCreateBundlingValidatesComponents(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateBundling(ctx, CreateBundlingInput{
		SKU:       "BND-1",
		Name:      "Kit",
		DailyRate: decimal.NewFromInt(100),
		Items:     []BundlingItemInput{{ProductID: uuid.New(), RequiredQty: 1}},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for missing component, got %v", err)
	}
}

func TestCreateBundlingAndGet(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, CreateProductInput{
		SKU:       "CAM-B",
		Name:      "Camera",
		DailyRate: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	bundling, err := svc.CreateBundling(ctx, CreateBundlingInput{
		SKU:       "BND-2",
		Name:      "Kit",
		DailyRate: decimal.NewFromInt(150),
		Items:     []BundlingItemInput{{ProductID: product.ID, RequiredQty: 2}},
	})
	if err != nil {
		t.Fatalf("create bundling: %v", err)
	}

	loaded, err := svc.GetBundling(ctx, bundling.ID)
	if err != nil {
		t.Fatalf("get bundling: %v", err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].RequiredQty != 2 {
		t.Fatalf("unexpected items: %+v", loaded.Items)
	}
}

func TestListProductsPaginates(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateProduct(ctx, CreateProductInput{
			SKU:       "CAM-" + uuid.NewString()[:8],
			Name:      "Camera",
			DailyRate: decimal.NewFromInt(100),
		})
		if err != nil {
			t.Fatalf("create product %d: %v", i, err)
		}
	}

	page, next, err := svc.ListProducts(ctx, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || next == "" {
		t.Fatalf("expected full first page with cursor, got %d rows", len(page))
	}

	rest, _, err := svc.ListProducts(ctx, pagination.Params{Limit: 2, Cursor: next})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected 1 row on second page, got %d", len(rest))
	}
}
