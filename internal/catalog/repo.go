package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/pagination"
)

// Repository persists products, serialized units, and bundlings.
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

func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, err
	}
	return &product, nil
}

// ListProducts pages active products by (created_at, id).
func (r *Repository) ListProducts(ctx context.Context, params pagination.Params) ([]models.Product, error) {
	q := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var products []models.Product
	if err := q.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *Repository) CreateUnit(ctx context.Context, unit *models.SerializedUnit) error {
	return r.db.WithContext(ctx).Create(unit).Error
}

func (r *Repository) GetUnit(ctx context.Context, id uuid.UUID) (*models.SerializedUnit, error) {
	var unit models.SerializedUnit
	err := r.db.WithContext(ctx).First(&unit, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "serialized unit not found")
		}
		return nil, err
	}
	return &unit, nil
}

func (r *Repository) FindUnitBySerial(ctx context.Context, productID uuid.UUID, serial string) (*models.SerializedUnit, error) {
	var unit models.SerializedUnit
	err := r.db.WithContext(ctx).
		First(&unit, "product_id = ? AND serial = ?", productID, serial).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "serialized unit not found")
		}
		return nil, err
	}
	return &unit, nil
}

func (r *Repository) UpdateUnit(ctx context.Context, unit *models.SerializedUnit) error {
	return r.db.WithContext(ctx).Save(unit).Error
}

// RetireUnit soft-deletes a unit. Historical allocations keep pointing at it.
func (r *Repository) RetireUnit(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.SerializedUnit{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "serialized unit not found")
	}
	return nil
}

func (r *Repository) CreateBundling(ctx context.Context, bundling *models.Bundling) error {
	return r.db.WithContext(ctx).Create(bundling).Error
}

// GetBundling loads a bundling with its component items and their products.
func (r *Repository) GetBundling(ctx context.Context, id uuid.UUID) (*models.Bundling, error) {
	var bundling models.Bundling
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Product").
		First(&bundling, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bundling not found")
		}
		return nil, err
	}
	return &bundling, nil
}

func (r *Repository) ListBundlings(ctx context.Context, params pagination.Params) ([]models.Bundling, error) {
	q := r.db.WithContext(ctx).
		Preload("Items").
		Where("is_active = ?", true).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var bundlings []models.Bundling
	if err := q.Find(&bundlings).Error; err != nil {
		return nil, err
	}
	return bundlings, nil
}
