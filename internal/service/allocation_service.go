package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type allocationCodeSelector interface {
	SelectAvailable(ctx context.Context, lotID, orgID string, limit int) ([]models.CodeSelection, error)
}

type allocationInventoryReader interface {
	AvailableByLot(ctx context.Context, productID, orgID string) ([]models.LotAvailability, error)
}

// AllocationRequest asks for quantity units of a product held by an
// organization. LotID pins the selection to one lot; when empty the engine
// walks lots oldest-first.
type AllocationRequest struct {
	ProductID      string
	OrganizationID string
	LotID          string
	Quantity       int
}

// AllocationService selects the concrete units that satisfy a requested
// quantity. Selection is advisory: the ledger re-verifies every selected
// row under lock at commit time, so a stale selection costs a retry, never
// an oversell.
type AllocationService struct {
	codes     allocationCodeSelector
	inventory allocationInventoryReader
	logger    *zap.Logger
}

// NewAllocationService constructs AllocationService.
func NewAllocationService(codes allocationCodeSelector, inventory allocationInventoryReader, logger *zap.Logger) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{codes: codes, inventory: inventory, logger: logger}
}

// Allocate returns the selected units and the shortfall, if any. A
// non-zero shortfall means the caller must reject the whole operation;
// partial batches are never committed.
func (s *AllocationService) Allocate(ctx context.Context, req AllocationRequest) (*models.AllocationResult, error) {
	if req.Quantity <= 0 {
		return nil, appErrors.ErrInvalidQuantity
	}

	if req.LotID != "" {
		return s.allocateFromLot(ctx, req)
	}
	return s.allocateFIFO(ctx, req)
}

// allocateFromLot selects up to quantity units from the pinned lot,
// ordered by code ascending for determinism.
func (s *AllocationService) allocateFromLot(ctx context.Context, req AllocationRequest) (*models.AllocationResult, error) {
	selections, err := s.codes.SelectAvailable(ctx, req.LotID, req.OrganizationID, req.Quantity)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to select lot units")
	}
	return &models.AllocationResult{
		Selections: selections,
		Shortfall:  req.Quantity - len(selections),
	}, nil
}

// allocateFIFO walks candidate lots ordered by manufacture date ascending,
// ties broken by lot ID, consuming available units until the quantity is
// satisfied or lots are exhausted.
func (s *AllocationService) allocateFIFO(ctx context.Context, req AllocationRequest) (*models.AllocationResult, error) {
	lots, err := s.inventory.AvailableByLot(ctx, req.ProductID, req.OrganizationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list candidate lots")
	}

	remaining := req.Quantity
	selections := make([]models.CodeSelection, 0, req.Quantity)
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		take := remaining
		if lot.Available < take {
			take = lot.Available
		}
		picked, err := s.codes.SelectAvailable(ctx, lot.LotID, req.OrganizationID, take)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to select lot units")
		}
		selections = append(selections, picked...)
		remaining -= len(picked)
	}

	return &models.AllocationResult{Selections: selections, Shortfall: remaining}, nil
}
