package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/pkg/config"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type mockAllocator struct {
	result *models.AllocationResult
	err    error
	calls  int
}

func (m *mockAllocator) Allocate(ctx context.Context, req AllocationRequest) (*models.AllocationResult, error) {
	m.calls++
	return m.result, m.err
}

type mockLedger struct {
	receipt *models.TransferReceipt
	errs    []error
	plans   []*models.TransferPlan
}

func (m *mockLedger) CommitTransfer(ctx context.Context, plan *models.TransferPlan) (*models.TransferReceipt, error) {
	m.plans = append(m.plans, plan)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.receipt, nil
}

type mockCodeReader struct {
	codes []models.VirtualCode
}

func (m *mockCodeReader) FindByIDs(ctx context.Context, ids []string) ([]models.VirtualCode, error) {
	return m.codes, nil
}

type mockOrgReader struct {
	orgs map[string]*models.Organization
}

func (m *mockOrgReader) FindByID(ctx context.Context, id string) (*models.Organization, error) {
	if org, ok := m.orgs[id]; ok {
		cp := *org
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockProductReader struct {
	products map[string]*models.Product
}

func (m *mockProductReader) FindByID(ctx context.Context, id string) (*models.Product, error) {
	if product, ok := m.products[id]; ok {
		cp := *product
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockInvalidator struct {
	products []string
	orgs     [][]string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, productID string, orgIDs ...string) {
	m.products = append(m.products, productID)
	m.orgs = append(m.orgs, orgIDs)
}

type mockNotifier struct {
	treatments []string
	recalls    []string
	contacts   []string
}

func (m *mockNotifier) EnqueueTreatment(batchID, contact string, payload map[string]interface{}) {
	m.treatments = append(m.treatments, batchID)
	m.contacts = append(m.contacts, contact)
}

func (m *mockNotifier) EnqueueRecall(batchID, contact string, payload map[string]interface{}) {
	m.recalls = append(m.recalls, batchID)
	m.contacts = append(m.contacts, contact)
}

type mockMetricsRecorder struct {
	events    map[string]int
	conflicts int
}

func (m *mockMetricsRecorder) IncLedgerEvents(action string, n int) {
	if m.events == nil {
		m.events = make(map[string]int)
	}
	m.events[action] += n
}

func (m *mockMetricsRecorder) IncAllocationConflict() {
	m.conflicts++
}

func testOrgs() *mockOrgReader {
	return &mockOrgReader{orgs: map[string]*models.Organization{
		"org-m": {ID: "org-m", OrgType: models.OrgTypeManufacturer, Status: models.OrgStatusActive},
		"org-d": {ID: "org-d", OrgType: models.OrgTypeDistributor, Status: models.OrgStatusActive},
		"org-h": {ID: "org-h", OrgType: models.OrgTypeHospital, Status: models.OrgStatusActive},
		"org-x": {ID: "org-x", OrgType: models.OrgTypeDistributor, Status: models.OrgStatusPendingApproval},
	}}
}

func testProducts() *mockProductReader {
	return &mockProductReader{products: map[string]*models.Product{
		"p1": {ID: "p1", ManufacturerOrgID: "org-m", ModelName: "Stent X", IsActive: true},
		"p2": {ID: "p2", ManufacturerOrgID: "org-m", ModelName: "Valve Y", IsActive: true},
	}}
}

func testLots() *mockLotReader {
	return &mockLotReader{lots: map[string]*models.Lot{
		"lot-a": {ID: "lot-a", ProductID: "p1"},
	}}
}

func newTransferService(allocator *mockAllocator, ledger *mockLedger, codes *mockCodeReader, notifier *mockNotifier, metrics *mockMetricsRecorder, invalidator *mockInvalidator) *TransferService {
	return NewTransferService(
		allocator, ledger, codes, testLots(), testOrgs(), testProducts(), invalidator, notifier, metrics,
		config.AllocationConfig{MaxRetries: 3},
		config.RecallConfig{ReasonMaxLen: 500},
		validator.New(), zap.NewNop(),
	)
}

func TestShipWritesPairedEvents(t *testing.T) {
	allocator := &mockAllocator{result: &models.AllocationResult{Selections: selections("lot-a", 2)}}
	ledger := &mockLedger{receipt: &models.TransferReceipt{BatchID: "b1"}}
	invalidator := &mockInvalidator{}
	svc := newTransferService(allocator, ledger, &mockCodeReader{}, &mockNotifier{}, &mockMetricsRecorder{}, invalidator)

	receipt, err := svc.Ship(context.Background(), "org-m", ShipmentRequest{
		ProductID: "p1",
		Quantity:  2,
		ToOrgID:   "org-d",
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", receipt.BatchID)

	require.Len(t, ledger.plans, 1)
	plan := ledger.plans[0]
	assert.Equal(t, models.BatchTypeShipment, plan.Batch.BatchType)
	assert.Len(t, plan.Events, 4)
	assert.Equal(t, models.ActionShipped, plan.Events[0].Action)
	assert.Equal(t, models.ActionReceived, plan.Events[1].Action)
	assert.Equal(t, "org-m", plan.ExpectedOwnerID)
	assert.Equal(t, "org-d", plan.NewOwnerID)
	assert.Equal(t, models.CodeStatusInStock, plan.NewStatus)

	require.Len(t, invalidator.orgs, 1)
	assert.ElementsMatch(t, []string{"org-m", "org-d"}, invalidator.orgs[0])
}

func TestShipRejectsSelfAndInactiveDestination(t *testing.T) {
	allocator := &mockAllocator{result: &models.AllocationResult{Selections: selections("lot-a", 1)}}
	svc := newTransferService(allocator, &mockLedger{}, &mockCodeReader{}, &mockNotifier{}, &mockMetricsRecorder{}, &mockInvalidator{})

	_, err := svc.Ship(context.Background(), "org-m", ShipmentRequest{ProductID: "p1", Quantity: 1, ToOrgID: "org-m"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Ship(context.Background(), "org-m", ShipmentRequest{ProductID: "p1", Quantity: 1, ToOrgID: "org-x"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestShipExhaustsRetriesOnConflict(t *testing.T) {
	allocator := &mockAllocator{result: &models.AllocationResult{Selections: selections("lot-a", 1)}}
	ledger := &mockLedger{errs: []error{
		appErrors.ErrAllocationConflict,
		appErrors.ErrAllocationConflict,
		appErrors.ErrAllocationConflict,
	}}
	metrics := &mockMetricsRecorder{}
	svc := newTransferService(allocator, ledger, &mockCodeReader{}, &mockNotifier{}, metrics, &mockInvalidator{})

	_, err := svc.Ship(context.Background(), "org-m", ShipmentRequest{ProductID: "p1", Quantity: 1, ToOrgID: "org-d"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInsufficientInventory))
	assert.Equal(t, 3, allocator.calls)
	assert.Equal(t, 3, metrics.conflicts)
}

func TestShipRecoversAfterSingleConflict(t *testing.T) {
	allocator := &mockAllocator{result: &models.AllocationResult{Selections: selections("lot-a", 1)}}
	ledger := &mockLedger{
		receipt: &models.TransferReceipt{BatchID: "b2"},
		errs:    []error{appErrors.ErrAllocationConflict, nil},
	}
	svc := newTransferService(allocator, ledger, &mockCodeReader{}, &mockNotifier{}, &mockMetricsRecorder{}, &mockInvalidator{})

	receipt, err := svc.Ship(context.Background(), "org-m", ShipmentRequest{ProductID: "p1", Quantity: 1, ToOrgID: "org-d"})
	require.NoError(t, err)
	assert.Equal(t, "b2", receipt.BatchID)
	assert.Equal(t, 2, allocator.calls)
}

func TestShipPinnedLotMustMatchProduct(t *testing.T) {
	allocator := &mockAllocator{result: &models.AllocationResult{Selections: selections("lot-a", 2)}}
	ledger := &mockLedger{receipt: &models.TransferReceipt{BatchID: "b9"}}
	svc := newTransferService(allocator, ledger, &mockCodeReader{}, &mockNotifier{}, &mockMetricsRecorder{}, &mockInvalidator{})

	// lot-a belongs to p1; pinning it for p2 must fail before allocation.
	_, err := svc.Ship(context.Background(), "org-m", ShipmentRequest{
		ProductID: "p2",
		LotID:     "lot-a",
		Quantity:  2,
		ToOrgID:   "org-d",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Zero(t, allocator.calls)
	assert.Empty(t, ledger.plans)

	_, err = svc.Ship(context.Background(), "org-m", ShipmentRequest{
		ProductID: "p1",
		LotID:     "lot-missing",
		Quantity:  2,
		ToOrgID:   "org-d",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestShipExplicitCodesRequireOwnership(t *testing.T) {
	codes := &mockCodeReader{codes: []models.VirtualCode{
		{ID: "c1", Code: "L-00001", LotID: "lot-a", CurrentOwnerID: "org-d", CurrentStatus: models.CodeStatusInStock},
	}}
	svc := newTransferService(&mockAllocator{}, &mockLedger{}, codes, &mockNotifier{}, &mockMetricsRecorder{}, &mockInvalidator{})

	_, err := svc.Ship(context.Background(), "org-m", ShipmentRequest{ProductID: "p1", CodeIDs: []string{"c1"}, ToOrgID: "org-d"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotOwner))
}

func TestShipExplicitCodesNoRetryOnConflict(t *testing.T) {
	codes := &mockCodeReader{codes: []models.VirtualCode{
		{ID: "c1", Code: "L-00001", LotID: "lot-a", CurrentOwnerID: "org-m", CurrentStatus: models.CodeStatusInStock},
	}}
	ledger := &mockLedger{errs: []error{appErrors.ErrAllocationConflict}}
	svc := newTransferService(&mockAllocator{}, ledger, codes, &mockNotifier{}, &mockMetricsRecorder{}, &mockInvalidator{})

	_, err := svc.Ship(context.Background(), "org-m", ShipmentRequest{ProductID: "p1", CodeIDs: []string{"c1"}, ToOrgID: "org-d"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotOwner))
	assert.Len(t, ledger.plans, 1)
}

func TestShipInsufficientInventoryCarriesShortfall(t *testing.T) {
	allocator := &mockAllocator{result: &models.AllocationResult{Selections: selections("lot-a", 2), Shortfall: 3}}
	svc := newTransferService(allocator, &mockLedger{}, &mockCodeReader{}, &mockNotifier{}, &mockMetricsRecorder{}, &mockInvalidator{})

	_, err := svc.Ship(context.Background(), "org-m", ShipmentRequest{ProductID: "p1", Quantity: 5, ToOrgID: "org-d"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInsufficientInventory))
	appErr := appErrors.FromError(err)
	assert.Equal(t, 3, appErr.Details["shortfall"])
}

func TestTreatMarksUsedAndNotifies(t *testing.T) {
	allocator := &mockAllocator{result: &models.AllocationResult{Selections: selections("lot-a", 1)}}
	ledger := &mockLedger{receipt: &models.TransferReceipt{BatchID: "b3"}}
	notifier := &mockNotifier{}
	svc := newTransferService(allocator, ledger, &mockCodeReader{}, notifier, &mockMetricsRecorder{}, &mockInvalidator{})

	receipt, err := svc.Treat(context.Background(), "org-h", TreatmentRequest{
		ProductID:      "p1",
		Quantity:       1,
		PatientContact: "0812345678",
	})
	require.NoError(t, err)

	require.Len(t, ledger.plans, 1)
	plan := ledger.plans[0]
	assert.Equal(t, models.BatchTypeTreatment, plan.Batch.BatchType)
	assert.Equal(t, models.CodeStatusUsed, plan.NewStatus)
	assert.Equal(t, "0812345678", plan.NewOwnerID)
	require.NotNil(t, plan.Batch.PatientContact)
	assert.Equal(t, "0812345678", *plan.Batch.PatientContact)

	assert.Equal(t, []string{receipt.BatchID}, notifier.treatments)
}

func TestTreatFailureSkipsNotification(t *testing.T) {
	allocator := &mockAllocator{result: &models.AllocationResult{Selections: selections("lot-a", 1), Shortfall: 1}}
	notifier := &mockNotifier{}
	svc := newTransferService(allocator, &mockLedger{}, &mockCodeReader{}, notifier, &mockMetricsRecorder{}, &mockInvalidator{})

	_, err := svc.Treat(context.Background(), "org-h", TreatmentRequest{ProductID: "p1", Quantity: 2, PatientContact: "0812345678"})
	require.Error(t, err)
	assert.Empty(t, notifier.treatments)
}

func TestTreatRejectsZeroQuantity(t *testing.T) {
	svc := newTransferService(&mockAllocator{}, &mockLedger{}, &mockCodeReader{}, &mockNotifier{}, &mockMetricsRecorder{}, &mockInvalidator{})

	_, err := svc.Treat(context.Background(), "org-h", TreatmentRequest{
		ProductID:      "p1",
		Quantity:       0,
		PatientContact: "0812345678",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidQuantity))
}

func TestDisposeReasonRules(t *testing.T) {
	allocator := &mockAllocator{result: &models.AllocationResult{Selections: selections("lot-a", 1)}}
	ledger := &mockLedger{receipt: &models.TransferReceipt{BatchID: "b4"}}
	svc := newTransferService(allocator, ledger, &mockCodeReader{}, &mockNotifier{}, &mockMetricsRecorder{}, &mockInvalidator{})

	_, err := svc.Dispose(context.Background(), "org-d", DisposalRequest{ProductID: "p1", Quantity: 1, Reason: models.DisposalOther})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrReasonRequired))

	_, err = svc.Dispose(context.Background(), "org-d", DisposalRequest{
		ProductID: "p1", Quantity: 1, Reason: models.DisposalOther, Note: strings.Repeat("x", 501),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrReasonTooLong))

	receipt, err := svc.Dispose(context.Background(), "org-d", DisposalRequest{
		ProductID: "p1", Quantity: 1, Reason: models.DisposalExpired,
	})
	require.NoError(t, err)
	assert.Equal(t, "b4", receipt.BatchID)

	plan := ledger.plans[0]
	assert.Equal(t, models.BatchTypeDisposal, plan.Batch.BatchType)
	assert.Equal(t, models.CodeStatusDisposed, plan.NewStatus)
	assert.Equal(t, "org-d", plan.NewOwnerID)
	require.NotNil(t, plan.Batch.Reason)
	assert.Equal(t, "EXPIRED", *plan.Batch.Reason)
}
