package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

const (
	maxLotQuantity = 10000
	lotDateLayout  = "2006-01-02"
)

type lotWriter interface {
	FindByID(ctx context.Context, id string) (*models.Lot, error)
	List(ctx context.Context, filter models.LotFilter) ([]models.LotDetail, int, error)
	CreateWithCodes(ctx context.Context, numberPrefix string, lot *models.Lot, codes []models.VirtualCode, batch *models.TransferBatch) error
}

type lotMetrics interface {
	IncLedgerEvents(action string, n int)
}

// RegisterLotRequest registers one manufacturing lot and mints a virtual
// code per unit.
type RegisterLotRequest struct {
	ProductID       string `json:"product_id" validate:"required"`
	Quantity        int    `json:"quantity" validate:"required"`
	ManufactureDate string `json:"manufacture_date" validate:"required"`
	ExpiryDate      string `json:"expiry_date" validate:"required"`
}

// LotService handles production registration: the only operation that
// creates inventory. Lot, codes, and PRODUCED events commit in one
// transaction so a lot can never exist partially minted.
type LotService struct {
	lots      lotWriter
	products  productReader
	orgs      organizationReader
	inventory inventoryInvalidator
	metrics   lotMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLotService constructs LotService.
func NewLotService(
	lots lotWriter,
	products productReader,
	orgs organizationReader,
	inventory inventoryInvalidator,
	metrics lotMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
) *LotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LotService{
		lots:      lots,
		products:  products,
		orgs:      orgs,
		inventory: inventory,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Register creates the lot, mints quantity codes owned by the manufacturer
// with status IN_STOCK, and writes one PRODUCED event per code.
func (s *LotService) Register(ctx context.Context, manufacturerOrgID string, req RegisterLotRequest) (*models.Lot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lot payload")
	}
	if req.Quantity <= 0 || req.Quantity > maxLotQuantity {
		return nil, appErrors.ErrInvalidQuantity
	}

	manufactureDate, err := time.Parse(lotDateLayout, req.ManufactureDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "manufacture_date must be YYYY-MM-DD")
	}
	expiryDate, err := time.Parse(lotDateLayout, req.ExpiryDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiry_date must be YYYY-MM-DD")
	}
	if !expiryDate.After(manufactureDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiry_date must be after manufacture_date")
	}

	product, err := s.loadProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.ManufacturerOrgID != manufacturerOrgID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "product belongs to another manufacturer")
	}
	if !product.IsActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "product is deactivated")
	}

	org, err := s.loadOrganization(ctx, manufacturerOrgID)
	if err != nil {
		return nil, err
	}

	prefix, err := lotNumberPrefix(org, manufactureDate)
	if err != nil {
		return nil, err
	}

	lot := &models.Lot{
		ProductID:       req.ProductID,
		ManufactureDate: manufactureDate,
		ExpiryDate:      expiryDate,
		Quantity:        req.Quantity,
	}

	// Code tokens embed the lot number, which is only fixed inside the
	// registration transaction; the repository mints them there.
	codes := make([]models.VirtualCode, req.Quantity)
	for i := range codes {
		codes[i] = models.VirtualCode{
			CurrentOwnerID: manufacturerOrgID,
			CurrentStatus:  models.CodeStatusInStock,
		}
	}

	batch := &models.TransferBatch{
		BatchType:     models.BatchTypeProduction,
		ToOrgID:       &manufacturerOrgID,
		TotalQuantity: req.Quantity,
		EventTime:     time.Now().UTC(),
	}

	if err := s.lots.CreateWithCodes(ctx, prefix, lot, codes, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register lot")
	}

	s.inventory.Invalidate(ctx, req.ProductID, manufacturerOrgID)
	if s.metrics != nil {
		s.metrics.IncLedgerEvents(string(models.ActionProduced), req.Quantity)
	}
	s.logger.Sugar().Infow("lot registered", "lot_id", lot.ID, "lot_number", lot.LotNumber, "product_id", req.ProductID, "quantity", req.Quantity)
	return lot, nil
}

// Get returns one lot by ID.
func (s *LotService) Get(ctx context.Context, id string) (*models.Lot, error) {
	lot, err := s.lots.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "lot not found", "failed to load lot")
	}
	return lot, nil
}

// List returns lots matching the filter with product details.
func (s *LotService) List(ctx context.Context, filter models.LotFilter) ([]models.LotDetail, int, error) {
	lots, total, err := s.lots.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lots")
	}
	return lots, total, nil
}

// lotNumberPrefix derives the PREFIX-YYYYMMDD- part of the lot number;
// the sequence component is assigned by the repository under lock.
func lotNumberPrefix(org *models.Organization, manufactureDate time.Time) (string, error) {
	if org.CodePrefix == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "organization has no code prefix")
	}
	return fmt.Sprintf("%s-%s-", org.CodePrefix, manufactureDate.Format("20060102")), nil
}

func (s *LotService) loadProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "product not found", "failed to load product")
	}
	return product, nil
}

func (s *LotService) loadOrganization(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.orgs.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "organization not found", "failed to load organization")
	}
	return org, nil
}
