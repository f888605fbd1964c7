package service

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/pkg/config"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type reversalLedger interface {
	FindBatch(ctx context.Context, id string) (*models.TransferBatch, error)
	CommitReversal(ctx context.Context, plan *models.ReversalPlan) (*models.TransferReceipt, error)
}

type reversalCodeLister interface {
	ListByBatch(ctx context.Context, batchID string) ([]models.VirtualCode, error)
}

type reversalLotReader interface {
	FindByID(ctx context.Context, id string) (*models.Lot, error)
}

type recallNotifier interface {
	EnqueueRecall(batchID, contact string, payload map[string]interface{})
}

type reversalMetrics interface {
	IncLedgerEvents(action string, n int)
}

// ReversalService undoes committed batches with compensating ledger
// entries. The two kinds are deliberately asymmetric: recall is
// originator-driven and time-boxed, return is receiver-driven and
// unbounded but requires unbroken custody.
type ReversalService struct {
	ledger    reversalLedger
	codes     reversalCodeLister
	lots      reversalLotReader
	inventory inventoryInvalidator
	notifier  recallNotifier
	metrics   reversalMetrics
	cfg       config.RecallConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewReversalService constructs ReversalService.
func NewReversalService(
	ledger reversalLedger,
	codes reversalCodeLister,
	lots reversalLotReader,
	inventory inventoryInvalidator,
	notifier recallNotifier,
	metrics reversalMetrics,
	cfg config.RecallConfig,
	logger *zap.Logger,
) *ReversalService {
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = 24 * time.Hour
	}
	if cfg.ReasonMaxLen <= 0 {
		cfg.ReasonMaxLen = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReversalService{
		ledger:    ledger,
		codes:     codes,
		lots:      lots,
		inventory: inventory,
		notifier:  notifier,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Recall reverses a treatment batch. Only the hospital that performed the
// treatment may recall it, and only within the configured window of the
// original event time. Codes revert to IN_STOCK under the hospital and the
// affected patient is notified after commit.
func (s *ReversalService) Recall(ctx context.Context, orgID, batchID, reason string) (*models.TransferReceipt, error) {
	reason, err := s.checkReason(reason)
	if err != nil {
		return nil, err
	}

	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.BatchType != models.BatchTypeTreatment {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch is not a treatment")
	}
	if batch.FromOrgID == nil || *batch.FromOrgID != orgID {
		return nil, appErrors.Clone(appErrors.ErrNotOwner, "only the treating hospital may recall")
	}
	if batch.PatientContact == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "treatment batch missing patient reference")
	}
	if s.now().UTC().Sub(batch.EventTime) > s.cfg.TimeLimit {
		return nil, appErrors.ErrTimeWindowExceeded
	}
	if batch.IsReversed {
		return nil, appErrors.ErrAlreadyReversed
	}

	codes, err := s.codes.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch codes")
	}
	if len(codes) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch has no codes")
	}

	patient := *batch.PatientContact
	hospital := orgID
	events := make([]models.EventSpec, 0, len(codes))
	codeIDs := make([]string, 0, len(codes))
	for _, code := range codes {
		events = append(events, models.EventSpec{Action: models.ActionRecalled, VirtualCodeID: code.ID, FromOwnerID: &patient, ToOwnerID: &hospital, Reason: &reason})
		codeIDs = append(codeIDs, code.ID)
	}

	receipt, err := s.ledger.CommitReversal(ctx, &models.ReversalPlan{
		BatchID:         batchID,
		ReversalReason:  reason,
		GuardActions:    []models.ActionType{models.ActionRecalled},
		Events:          events,
		CodeIDs:         codeIDs,
		ExpectedOwnerID: patient,
		ExpectedStatus:  models.CodeStatusUsed,
		NewOwnerID:      hospital,
		NewStatus:       models.CodeStatusInStock,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateForCodes(ctx, codes, hospital)
	if s.metrics != nil {
		s.metrics.IncLedgerEvents(string(models.ActionRecalled), len(codes))
	}
	if s.notifier != nil {
		s.notifier.EnqueueRecall(batchID, patient, map[string]interface{}{
			"reason":   reason,
			"quantity": len(codes),
		})
	}
	s.logger.Sugar().Infow("treatment recalled", "batch_id", batchID, "hospital", hospital, "quantity", len(codes))
	return receipt, nil
}

// Return reverses a shipment batch. Only the receiving organization may
// initiate it, with no time limit, but only while it still holds every
// code in the batch. Codes revert to IN_STOCK under the original sender.
func (s *ReversalService) Return(ctx context.Context, orgID, batchID, reason string) (*models.TransferReceipt, error) {
	reason, err := s.checkReason(reason)
	if err != nil {
		return nil, err
	}

	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.BatchType != models.BatchTypeShipment {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch is not a shipment")
	}
	if batch.ToOrgID == nil || *batch.ToOrgID != orgID {
		return nil, appErrors.Clone(appErrors.ErrNotOwner, "only the receiving organization may return")
	}
	if batch.FromOrgID == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "shipment batch missing sender")
	}
	if batch.IsReversed {
		return nil, appErrors.ErrAlreadyReversed
	}

	codes, err := s.codes.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch codes")
	}
	if len(codes) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch has no codes")
	}
	for _, code := range codes {
		if code.CurrentOwnerID != orgID || code.CurrentStatus != models.CodeStatusInStock {
			return nil, appErrors.ErrCodesNotOwned
		}
	}

	receiver := orgID
	sender := *batch.FromOrgID
	events := make([]models.EventSpec, 0, len(codes)*2)
	codeIDs := make([]string, 0, len(codes))
	for _, code := range codes {
		events = append(events,
			models.EventSpec{Action: models.ActionReturnSent, VirtualCodeID: code.ID, FromOwnerID: &receiver, ToOwnerID: &sender, Reason: &reason},
			models.EventSpec{Action: models.ActionReturnReceived, VirtualCodeID: code.ID, FromOwnerID: &receiver, ToOwnerID: &sender, Reason: &reason},
		)
		codeIDs = append(codeIDs, code.ID)
	}

	receipt, err := s.ledger.CommitReversal(ctx, &models.ReversalPlan{
		BatchID:         batchID,
		ReversalReason:  reason,
		GuardActions:    []models.ActionType{models.ActionReturnSent, models.ActionReturnReceived},
		Events:          events,
		CodeIDs:         codeIDs,
		ExpectedOwnerID: receiver,
		ExpectedStatus:  models.CodeStatusInStock,
		NewOwnerID:      sender,
		NewStatus:       models.CodeStatusInStock,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateForCodes(ctx, codes, receiver, sender)
	if s.metrics != nil {
		s.metrics.IncLedgerEvents(string(models.ActionReturnSent), len(codes))
		s.metrics.IncLedgerEvents(string(models.ActionReturnReceived), len(codes))
	}
	s.logger.Sugar().Infow("shipment returned", "batch_id", batchID, "receiver", receiver, "sender", sender, "quantity", len(codes))
	return receipt, nil
}

func (s *ReversalService) checkReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", appErrors.ErrReasonRequired
	}
	if utf8.RuneCountInString(reason) > s.cfg.ReasonMaxLen {
		return "", appErrors.ErrReasonTooLong
	}
	return reason, nil
}

func (s *ReversalService) loadBatch(ctx context.Context, id string) (*models.TransferBatch, error) {
	batch, err := s.ledger.FindBatch(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// invalidateForCodes resolves the products behind the reversed codes and
// drops the cached availability for each affected organization.
func (s *ReversalService) invalidateForCodes(ctx context.Context, codes []models.VirtualCode, orgIDs ...string) {
	seen := make(map[string]struct{})
	for _, code := range codes {
		if _, ok := seen[code.LotID]; ok {
			continue
		}
		seen[code.LotID] = struct{}{}
		lot, err := s.lots.FindByID(ctx, code.LotID)
		if err != nil {
			s.logger.Sugar().Warnw("failed to resolve lot for cache invalidation", "lot_id", code.LotID, "error", err)
			continue
		}
		s.inventory.Invalidate(ctx, lot.ProductID, orgIDs...)
	}
}
