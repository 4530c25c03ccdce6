package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rioprayoga/lensrent-backend/pkg/db"
	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	"github.com/rioprayoga/lensrent-backend/pkg/pagination"
)

// Service owns catalog writes: products, their serialized units, and
// bundlings. Availability and allocation never mutate the catalog.
type Service struct {
	client *db.Client
	repo   *Repository
	logg   *logger.Logger
}

func NewService(client *db.Client, repo *Repository, logg *logger.Logger) *Service {
	return &Service{client: client, repo: repo, logg: logg}
}

// CreateProductInput carries a new catalog entry.
type CreateProductInput struct {
	SKU         string          `json:"sku" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Description *string         `json:"description"`
	DailyRate   decimal.Decimal `json:"daily_rate" validate:"required"`
	Serials     []string        `json:"serials" validate:"omitempty,dive,required"`
}

// CreateProduct registers a product and optionally its initial units in one
// transaction.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	if input.DailyRate.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "daily rate cannot be negative")
	}

	product := &models.Product{
		SKU:         input.SKU,
		Name:        input.Name,
		Description: input.Description,
		DailyRate:   input.DailyRate,
		IsActive:    true,
	}

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateProduct(ctx, product); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sku already registered")
			}
			return err
		}
		for _, serial := range input.Serials {
			unit := &models.SerializedUnit{
				ProductID:   product.ID,
				Serial:      serial,
				IsAvailable: true,
			}
			if err := repo.CreateUnit(ctx, unit); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "duplicate serial for product")
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithProductID(ctx, product.ID.String()), "product created")
	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, params pagination.Params) ([]models.Product, string, error) {
	products, err := s.repo.ListProducts(ctx, params)
	if err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(products) > limit {
		products = products[:limit]
		last := products[len(products)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return products, next, nil
}

// RegisterUnitInput adds one physical unit to a product.
type RegisterUnitInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Serial    string    `json:"serial" validate:"required"`
	Notes     *string   `json:"notes"`
}

func (s *Service) RegisterUnit(ctx context.Context, input RegisterUnitInput) (*models.SerializedUnit, error) {
	if _, err := s.repo.GetProduct(ctx, input.ProductID); err != nil {
		return nil, err
	}

	unit := &models.SerializedUnit{
		ProductID:   input.ProductID,
		Serial:      input.Serial,
		IsAvailable: true,
		Notes:       input.Notes,
	}
	if err := s.repo.CreateUnit(ctx, unit); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "duplicate serial for product")
		}
		return nil, err
	}
	return unit, nil
}

// SetUnitAvailability flips the administrative flag on a unit. It does not
// touch existing allocations; those are a scheduling concern.
func (s *Service) SetUnitAvailability(ctx context.Context, unitID uuid.UUID, available bool) (*models.SerializedUnit, error) {
	unit, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	unit.IsAvailable = available
	if err := s.repo.UpdateUnit(ctx, unit); err != nil {
		return nil, err
	}
	return unit, nil
}

// RetireUnit soft-deletes a unit so history stays intact.
func (s *Service) RetireUnit(ctx context.Context, unitID uuid.UUID) error {
	return s.repo.RetireUnit(ctx, unitID)
}

// BundlingItemInput is one component of a bundling.
type BundlingItemInput struct {
	ProductID   uuid.UUID `json:"product_id" validate:"required"`
	RequiredQty int       `json:"required_qty" validate:"required,gt=0"`
}

// CreateBundlingInput carries a new composite item.
type CreateBundlingInput struct {
	SKU         string              `json:"sku" validate:"required"`
	Name        string              `json:"name" validate:"required"`
	Description *string             `json:"description"`
	DailyRate   decimal.Decimal     `json:"daily_rate" validate:"required"`
	Items       []BundlingItemInput `json:"items" validate:"required,min=1,dive"`
}

// CreateBundling registers a bundling and its components in one transaction.
// Components must reference existing products.
func (s *Service) CreateBundling(ctx context.Context, input CreateBundlingInput) (*models.Bundling, error) {
	if input.DailyRate.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "daily rate cannot be negative")
	}

	bundling := &models.Bundling{
		SKU:         input.SKU,
		Name:        input.Name,
		Description: input.Description,
		DailyRate:   input.DailyRate,
		IsActive:    true,
	}
	for _, item := range input.Items {
		bundling.Items = append(bundling.Items, models.BundlingItem{
			ProductID:   item.ProductID,
			RequiredQty: item.RequiredQty,
		})
	}

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, item := range input.Items {
			if _, err := repo.GetProduct(ctx, item.ProductID); err != nil {
				return err
			}
		}
		if err := repo.CreateBundling(ctx, bundling); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sku already registered")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bundling, nil
}

func (s *Service) GetBundling(ctx context.Context, id uuid.UUID) (*models.Bundling, error) {
	return s.repo.GetBundling(ctx, id)
}

func (s *Service) ListBundlings(ctx context.Context, params pagination.Params) ([]models.Bundling, string, error) {
	bundlings, err := s.repo.ListBundlings(ctx, params)
	if err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(bundlings) > limit {
		bundlings = bundlings[:limit]
		last := bundlings[len(bundlings)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return bundlings, next, nil
}
