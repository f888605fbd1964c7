package service

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/pkg/config"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type transferAllocator interface {
	Allocate(ctx context.Context, req AllocationRequest) (*models.AllocationResult, error)
}

type transferLedger interface {
	CommitTransfer(ctx context.Context, plan *models.TransferPlan) (*models.TransferReceipt, error)
}

type transferCodeReader interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.VirtualCode, error)
}

type transferLotReader interface {
	FindByID(ctx context.Context, id string) (*models.Lot, error)
}

type organizationReader interface {
	FindByID(ctx context.Context, id string) (*models.Organization, error)
}

type productReader interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

type inventoryInvalidator interface {
	Invalidate(ctx context.Context, productID string, orgIDs ...string)
}

type treatmentNotifier interface {
	EnqueueTreatment(batchID, contact string, payload map[string]interface{})
}

type transferMetrics interface {
	IncLedgerEvents(action string, n int)
	IncAllocationConflict()
}

// ShipmentRequest moves IN_STOCK units to another organization. Either
// quantity-based allocation (lot pinned or FIFO) or an explicit code list.
type ShipmentRequest struct {
	ProductID string   `json:"product_id" validate:"required"`
	LotID     string   `json:"lot_id"`
	CodeIDs   []string `json:"code_ids"`
	Quantity  int      `json:"quantity"`
	ToOrgID   string   `json:"to_org_id" validate:"required"`
}

// TreatmentRequest applies units to a patient; the patient contact becomes
// the terminal owner reference.
type TreatmentRequest struct {
	ProductID      string `json:"product_id" validate:"required"`
	LotID          string `json:"lot_id"`
	Quantity       int    `json:"quantity"`
	PatientContact string `json:"patient_contact" validate:"required,min=9,max=20"`
}

// DisposalRequest removes units from circulation.
type DisposalRequest struct {
	ProductID string                `json:"product_id" validate:"required"`
	LotID     string                `json:"lot_id"`
	CodeIDs   []string              `json:"code_ids"`
	Quantity  int                   `json:"quantity"`
	Reason    models.DisposalReason `json:"reason" validate:"required,oneof=LOSS EXPIRED DEFECTIVE OTHER"`
	Note      string                `json:"note"`
}

// TransferService orchestrates shipment, treatment, and disposal: it
// validates the request, asks the allocation engine for concrete units,
// and hands the ledger a single atomic plan. All units in one call commit
// together or not at all.
type TransferService struct {
	allocator transferAllocator
	ledger    transferLedger
	codes     transferCodeReader
	lots      transferLotReader
	orgs      organizationReader
	products  productReader
	inventory inventoryInvalidator
	notifier  treatmentNotifier
	metrics   transferMetrics
	cfg       config.AllocationConfig
	reasonMax int
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTransferService constructs TransferService.
func NewTransferService(
	allocator transferAllocator,
	ledger transferLedger,
	codes transferCodeReader,
	lots transferLotReader,
	orgs organizationReader,
	products productReader,
	inventory inventoryInvalidator,
	notifier treatmentNotifier,
	metrics transferMetrics,
	cfg config.AllocationConfig,
	recallCfg config.RecallConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *TransferService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	cfg.MaxRetries = maxRetries
	reasonMax := recallCfg.ReasonMaxLen
	if reasonMax <= 0 {
		reasonMax = 500
	}
	return &TransferService{
		allocator: allocator,
		ledger:    ledger,
		codes:     codes,
		lots:      lots,
		orgs:      orgs,
		products:  products,
		inventory: inventory,
		notifier:  notifier,
		metrics:   metrics,
		cfg:       cfg,
		reasonMax: reasonMax,
		validator: validate,
		logger:    logger,
	}
}

// Ship transfers units to the destination organization. SHIPPED and
// RECEIVED are written together in one batch: this domain has no separate
// acceptance step, so custody passes atomically.
func (s *TransferService) Ship(ctx context.Context, fromOrgID string, req ShipmentRequest) (*models.TransferReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid shipment payload")
	}
	quantity, err := s.effectiveQuantity(req.Quantity, req.CodeIDs)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadProduct(ctx, req.ProductID); err != nil {
		return nil, err
	}
	dest, err := s.loadOrganization(ctx, req.ToOrgID)
	if err != nil {
		return nil, err
	}
	if dest.ID == fromOrgID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot ship to own organization")
	}
	if dest.Status != models.OrgStatusActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "destination organization not active")
	}
	if dest.OrgType == models.OrgTypeAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "destination cannot hold inventory")
	}

	from := fromOrgID
	to := dest.ID
	receipt, err := s.commitWithRetry(ctx, fromOrgID, req.ProductID, req.LotID, req.CodeIDs, quantity, func(selections []models.CodeSelection, now time.Time) *models.TransferPlan {
		events := make([]models.EventSpec, 0, len(selections)*2)
		for _, sel := range selections {
			events = append(events,
				models.EventSpec{Action: models.ActionShipped, VirtualCodeID: sel.VirtualCodeID, FromOwnerID: &from, ToOwnerID: &to},
				models.EventSpec{Action: models.ActionReceived, VirtualCodeID: sel.VirtualCodeID, FromOwnerID: &from, ToOwnerID: &to},
			)
		}
		return &models.TransferPlan{
			Batch: models.TransferBatch{
				BatchType:     models.BatchTypeShipment,
				FromOrgID:     &from,
				ToOrgID:       &to,
				TotalQuantity: len(selections),
				EventTime:     now,
			},
			Events:          events,
			CodeIDs:         selectionIDs(selections),
			ExpectedOwnerID: fromOrgID,
			ExpectedStatus:  models.CodeStatusInStock,
			NewOwnerID:      to,
			NewStatus:       models.CodeStatusInStock,
		}
	})
	if err != nil {
		return nil, err
	}

	s.inventory.Invalidate(ctx, req.ProductID, fromOrgID, to)
	if s.metrics != nil {
		s.metrics.IncLedgerEvents(string(models.ActionShipped), quantity)
		s.metrics.IncLedgerEvents(string(models.ActionReceived), quantity)
	}
	s.logger.Sugar().Infow("shipment committed", "batch_id", receipt.BatchID, "from", fromOrgID, "to", to, "quantity", quantity)
	return receipt, nil
}

// Treat marks units as used on a patient. The patient contact is stored as
// the terminal owner reference; the treatment notification is enqueued only
// after the ledger commit succeeds.
func (s *TransferService) Treat(ctx context.Context, hospitalOrgID string, req TreatmentRequest) (*models.TransferReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid treatment payload")
	}
	if req.Quantity <= 0 {
		return nil, appErrors.ErrInvalidQuantity
	}
	product, err := s.loadProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	from := hospitalOrgID
	patient := req.PatientContact
	receipt, err := s.commitWithRetry(ctx, hospitalOrgID, req.ProductID, req.LotID, nil, req.Quantity, func(selections []models.CodeSelection, now time.Time) *models.TransferPlan {
		events := make([]models.EventSpec, 0, len(selections))
		for _, sel := range selections {
			events = append(events, models.EventSpec{Action: models.ActionTreated, VirtualCodeID: sel.VirtualCodeID, FromOwnerID: &from, ToOwnerID: &patient})
		}
		return &models.TransferPlan{
			Batch: models.TransferBatch{
				BatchType:      models.BatchTypeTreatment,
				FromOrgID:      &from,
				PatientContact: &patient,
				TotalQuantity:  len(selections),
				EventTime:      now,
			},
			Events:          events,
			CodeIDs:         selectionIDs(selections),
			ExpectedOwnerID: hospitalOrgID,
			ExpectedStatus:  models.CodeStatusInStock,
			NewOwnerID:      patient,
			NewStatus:       models.CodeStatusUsed,
		}
	})
	if err != nil {
		return nil, err
	}

	s.inventory.Invalidate(ctx, req.ProductID, hospitalOrgID)
	if s.metrics != nil {
		s.metrics.IncLedgerEvents(string(models.ActionTreated), req.Quantity)
	}
	if s.notifier != nil {
		s.notifier.EnqueueTreatment(receipt.BatchID, patient, map[string]interface{}{
			"product_model": product.ModelName,
			"quantity":      req.Quantity,
		})
	}
	s.logger.Sugar().Infow("treatment committed", "batch_id", receipt.BatchID, "hospital", hospitalOrgID, "quantity", req.Quantity)
	return receipt, nil
}

// Dispose removes units from circulation. Reason is mandatory; OTHER
// requires a free-text note.
func (s *TransferService) Dispose(ctx context.Context, orgID string, req DisposalRequest) (*models.TransferReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid disposal payload")
	}
	quantity, err := s.effectiveQuantity(req.Quantity, req.CodeIDs)
	if err != nil {
		return nil, err
	}
	reason, err := s.disposalReason(req.Reason, req.Note)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadProduct(ctx, req.ProductID); err != nil {
		return nil, err
	}

	from := orgID
	receipt, err := s.commitWithRetry(ctx, orgID, req.ProductID, req.LotID, req.CodeIDs, quantity, func(selections []models.CodeSelection, now time.Time) *models.TransferPlan {
		events := make([]models.EventSpec, 0, len(selections))
		for _, sel := range selections {
			events = append(events, models.EventSpec{Action: models.ActionDisposed, VirtualCodeID: sel.VirtualCodeID, FromOwnerID: &from, Reason: &reason})
		}
		return &models.TransferPlan{
			Batch: models.TransferBatch{
				BatchType:     models.BatchTypeDisposal,
				FromOrgID:     &from,
				TotalQuantity: len(selections),
				Reason:        &reason,
				EventTime:     now,
			},
			Events:          events,
			CodeIDs:         selectionIDs(selections),
			ExpectedOwnerID: orgID,
			ExpectedStatus:  models.CodeStatusInStock,
			NewOwnerID:      orgID,
			NewStatus:       models.CodeStatusDisposed,
		}
	})
	if err != nil {
		return nil, err
	}

	s.inventory.Invalidate(ctx, req.ProductID, orgID)
	if s.metrics != nil {
		s.metrics.IncLedgerEvents(string(models.ActionDisposed), quantity)
	}
	s.logger.Sugar().Infow("disposal committed", "batch_id", receipt.BatchID, "org", orgID, "quantity", quantity, "reason", reason)
	return receipt, nil
}

// commitWithRetry runs the allocate-then-commit cycle. A commit that loses
// the row-lock race re-allocates from fresh state; after the retry budget
// the failure surfaces as insufficient inventory, which is what the race
// means from the caller's perspective.
func (s *TransferService) commitWithRetry(
	ctx context.Context,
	orgID, productID, lotID string,
	explicitCodeIDs []string,
	quantity int,
	buildPlan func([]models.CodeSelection, time.Time) *models.TransferPlan,
) (*models.TransferReceipt, error) {
	explicit := len(explicitCodeIDs) > 0
	attempts := s.cfg.MaxRetries
	if explicit {
		attempts = 1
	}

	if lotID != "" && !explicit {
		if err := s.checkLotBelongsToProduct(ctx, lotID, productID); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < attempts; attempt++ {
		var selections []models.CodeSelection
		var err error
		if explicit {
			selections, err = s.resolveExplicit(ctx, orgID, explicitCodeIDs)
		} else {
			selections, err = s.resolveAllocated(ctx, orgID, productID, lotID, quantity)
		}
		if err != nil {
			return nil, err
		}

		receipt, err := s.ledger.CommitTransfer(ctx, buildPlan(selections, time.Now().UTC()))
		if err == nil {
			return receipt, nil
		}
		if !appErrors.Is(err, appErrors.ErrAllocationConflict) {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.IncAllocationConflict()
		}
		if explicit {
			return nil, appErrors.Clone(appErrors.ErrNotOwner, "codes changed ownership during commit")
		}
		s.logger.Sugar().Warnw("allocation conflict, retrying", "org", orgID, "product", productID, "attempt", attempt+1)
	}

	return nil, appErrors.WithDetails(appErrors.ErrInsufficientInventory, map[string]interface{}{"requested": quantity})
}

func (s *TransferService) resolveAllocated(ctx context.Context, orgID, productID, lotID string, quantity int) ([]models.CodeSelection, error) {
	result, err := s.allocator.Allocate(ctx, AllocationRequest{
		ProductID:      productID,
		OrganizationID: orgID,
		LotID:          lotID,
		Quantity:       quantity,
	})
	if err != nil {
		return nil, err
	}
	if result.Shortfall > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrInsufficientInventory, map[string]interface{}{
			"requested": quantity,
			"shortfall": result.Shortfall,
		})
	}
	return result.Selections, nil
}

func (s *TransferService) resolveExplicit(ctx context.Context, orgID string, codeIDs []string) ([]models.CodeSelection, error) {
	codes, err := s.codes.FindByIDs(ctx, codeIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load codes")
	}
	if len(codes) != len(codeIDs) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "one or more codes not found")
	}
	selections := make([]models.CodeSelection, 0, len(codes))
	for _, code := range codes {
		if code.CurrentOwnerID != orgID || code.CurrentStatus != models.CodeStatusInStock {
			return nil, appErrors.ErrNotOwner
		}
		selections = append(selections, models.CodeSelection{VirtualCodeID: code.ID, Code: code.Code, LotID: code.LotID})
	}
	return selections, nil
}

func (s *TransferService) effectiveQuantity(quantity int, codeIDs []string) (int, error) {
	if len(codeIDs) > 0 {
		return len(codeIDs), nil
	}
	if quantity <= 0 {
		return 0, appErrors.ErrInvalidQuantity
	}
	return quantity, nil
}

// checkLotBelongsToProduct rejects pinned-lot requests naming a lot of a
// different product. The availability projection joins lot to product, so
// without this check the allocator and the projection would disagree about
// the same (product, lot) pair.
func (s *TransferService) checkLotBelongsToProduct(ctx context.Context, lotID, productID string) error {
	lot, err := s.lots.FindByID(ctx, lotID)
	if err != nil {
		return mapNotFound(err, "lot not found", "failed to load lot")
	}
	if lot.ProductID != productID {
		return appErrors.Clone(appErrors.ErrValidation, "lot does not belong to the requested product")
	}
	return nil
}

func (s *TransferService) disposalReason(reason models.DisposalReason, note string) (string, error) {
	note = strings.TrimSpace(note)
	if reason == models.DisposalOther && note == "" {
		return "", appErrors.Clone(appErrors.ErrReasonRequired, "a note is required for OTHER disposals")
	}
	if utf8.RuneCountInString(note) > s.reasonMax {
		return "", appErrors.ErrReasonTooLong
	}
	text := string(reason)
	if note != "" {
		text += ": " + note
	}
	return text, nil
}

func (s *TransferService) loadProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	return product, nil
}

func (s *TransferService) loadOrganization(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.orgs.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	return org, nil
}

func selectionIDs(selections []models.CodeSelection) []string {
	ids := make([]string, len(selections))
	for i, sel := range selections {
		ids[i] = sel.VirtualCodeID
	}
	return ids
}
