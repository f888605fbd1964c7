package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type productRepo interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error)
	Create(ctx context.Context, product *models.Product) error
	Deactivate(ctx context.Context, id string, reason models.DeactivationReason, note *string) error
}

// CreateProductRequest registers a new catalog product.
type CreateProductRequest struct {
	UdiDi     string `json:"udi_di" validate:"required,max=120"`
	ModelName string `json:"model_name" validate:"required,max=200"`
}

// DeactivateProductRequest pulls a product from the catalog.
type DeactivateProductRequest struct {
	Reason models.DeactivationReason `json:"reason" validate:"required,oneof=DISCONTINUED SAFETY_ISSUE QUALITY_ISSUE OTHER"`
	Note   string                    `json:"note"`
}

// ProductService manages the product catalog. Deactivation blocks new lot
// registration only; codes already in circulation stay traceable.
type ProductService struct {
	products  productRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProductService constructs ProductService.
func NewProductService(products productRepo, validate *validator.Validate, logger *zap.Logger) *ProductService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{products: products, validator: validate, logger: logger}
}

// Create registers a product under the calling manufacturer.
func (s *ProductService) Create(ctx context.Context, manufacturerOrgID string, req CreateProductRequest) (*models.Product, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}

	product := &models.Product{
		ManufacturerOrgID: manufacturerOrgID,
		UdiDi:             strings.TrimSpace(req.UdiDi),
		ModelName:         strings.TrimSpace(req.ModelName),
		IsActive:          true,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create product")
	}

	s.logger.Sugar().Infow("product created", "product_id", product.ID, "manufacturer", manufacturerOrgID, "udi_di", product.UdiDi)
	return product, nil
}

// Get returns one product.
func (s *ProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "product not found", "failed to load product")
	}
	return product, nil
}

// List returns products matching the filter.
func (s *ProductService) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list products")
	}
	return products, total, nil
}

// Deactivate pulls a product from the catalog. Only the owning
// manufacturer may do so, and the operation is idempotent in effect but
// rejected on an already-inactive product to surface double submissions.
func (s *ProductService) Deactivate(ctx context.Context, manufacturerOrgID, productID string, req DeactivateProductRequest) (*models.Product, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid deactivation payload")
	}
	note := strings.TrimSpace(req.Note)
	if req.Reason == models.DeactivationOther && note == "" {
		return nil, appErrors.Clone(appErrors.ErrReasonRequired, "a note is required for OTHER deactivations")
	}

	product, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.ManufacturerOrgID != manufacturerOrgID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "product belongs to another manufacturer")
	}
	if !product.IsActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "product is already deactivated")
	}

	var notePtr *string
	if note != "" {
		notePtr = &note
	}
	if err := s.products.Deactivate(ctx, productID, req.Reason, notePtr); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate product")
	}

	product.IsActive = false
	product.DeactivationReason = &req.Reason
	product.DeactivationNote = notePtr
	s.logger.Sugar().Infow("product deactivated", "product_id", productID, "reason", req.Reason)
	return product, nil
}
