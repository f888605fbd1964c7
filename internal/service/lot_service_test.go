package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type mockLotWriter struct {
	existing int
	prefix   string
	lot      *models.Lot
	codes    []models.VirtualCode
	batch    *models.TransferBatch
}

func (m *mockLotWriter) FindByID(ctx context.Context, id string) (*models.Lot, error) {
	if m.lot == nil {
		return nil, sql.ErrNoRows
	}
	return m.lot, nil
}

func (m *mockLotWriter) List(ctx context.Context, filter models.LotFilter) ([]models.LotDetail, int, error) {
	return nil, 0, nil
}

// CreateWithCodes mirrors the repository contract: the lot number and the
// code tokens are minted from the prefix inside the call.
func (m *mockLotWriter) CreateWithCodes(ctx context.Context, numberPrefix string, lot *models.Lot, codes []models.VirtualCode, batch *models.TransferBatch) error {
	m.prefix = numberPrefix
	lot.ID = "lot-1"
	lot.LotNumber = fmt.Sprintf("%s%03d", numberPrefix, m.existing+1)
	for i := range codes {
		codes[i].Code = fmt.Sprintf("%s-%05d", lot.LotNumber, i+1)
		codes[i].LotID = lot.ID
	}
	m.lot = lot
	m.codes = codes
	m.batch = batch
	return nil
}

func newLotService(lots *mockLotWriter, invalidator *mockInvalidator) *LotService {
	orgs := &mockOrgReader{orgs: map[string]*models.Organization{
		"org-m": {ID: "org-m", OrgType: models.OrgTypeManufacturer, Status: models.OrgStatusActive, CodePrefix: "ACME"},
		"org-p": {ID: "org-p", OrgType: models.OrgTypeManufacturer, Status: models.OrgStatusActive},
	}}
	products := &mockProductReader{products: map[string]*models.Product{
		"p1": {ID: "p1", ManufacturerOrgID: "org-m", ModelName: "Stent X", IsActive: true},
		"p2": {ID: "p2", ManufacturerOrgID: "org-m", ModelName: "Stent Y", IsActive: false},
		"p3": {ID: "p3", ManufacturerOrgID: "org-p", ModelName: "Valve Z", IsActive: true},
	}}
	return NewLotService(lots, products, orgs, invalidator, &mockMetricsRecorder{}, validator.New(), zap.NewNop())
}

func TestRegisterMintsCodes(t *testing.T) {
	lots := &mockLotWriter{}
	invalidator := &mockInvalidator{}
	svc := newLotService(lots, invalidator)

	lot, err := svc.Register(context.Background(), "org-m", RegisterLotRequest{
		ProductID:       "p1",
		Quantity:        3,
		ManufactureDate: "2026-05-01",
		ExpiryDate:      "2028-05-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "ACME-20260501-001", lot.LotNumber)
	assert.Equal(t, "ACME-20260501-", lots.prefix)

	require.Len(t, lots.codes, 3)
	assert.Equal(t, "ACME-20260501-001-00001", lots.codes[0].Code)
	assert.Equal(t, "ACME-20260501-001-00003", lots.codes[2].Code)
	for _, code := range lots.codes {
		assert.Equal(t, "org-m", code.CurrentOwnerID)
		assert.Equal(t, models.CodeStatusInStock, code.CurrentStatus)
	}

	require.NotNil(t, lots.batch)
	assert.Equal(t, models.BatchTypeProduction, lots.batch.BatchType)
	require.NotNil(t, lots.batch.ToOrgID)
	assert.Equal(t, "org-m", *lots.batch.ToOrgID)
	assert.Equal(t, 3, lots.batch.TotalQuantity)

	assert.Equal(t, []string{"p1"}, invalidator.products)
}

func TestRegisterLotNumberSequence(t *testing.T) {
	lots := &mockLotWriter{existing: 41}
	svc := newLotService(lots, &mockInvalidator{})

	lot, err := svc.Register(context.Background(), "org-m", RegisterLotRequest{
		ProductID:       "p1",
		Quantity:        1,
		ManufactureDate: "2026-05-01",
		ExpiryDate:      "2028-05-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "ACME-20260501-042", lot.LotNumber)
}

func TestRegisterQuantityBounds(t *testing.T) {
	svc := newLotService(&mockLotWriter{}, &mockInvalidator{})

	_, err := svc.Register(context.Background(), "org-m", RegisterLotRequest{
		ProductID: "p1", Quantity: -1, ManufactureDate: "2026-05-01", ExpiryDate: "2028-05-01",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidQuantity))

	_, err = svc.Register(context.Background(), "org-m", RegisterLotRequest{
		ProductID: "p1", Quantity: 10001, ManufactureDate: "2026-05-01", ExpiryDate: "2028-05-01",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidQuantity))
}

func TestRegisterRejectsForeignProduct(t *testing.T) {
	svc := newLotService(&mockLotWriter{}, &mockInvalidator{})

	_, err := svc.Register(context.Background(), "org-m", RegisterLotRequest{
		ProductID: "p3", Quantity: 1, ManufactureDate: "2026-05-01", ExpiryDate: "2028-05-01",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestRegisterRejectsInactiveProduct(t *testing.T) {
	svc := newLotService(&mockLotWriter{}, &mockInvalidator{})

	_, err := svc.Register(context.Background(), "org-m", RegisterLotRequest{
		ProductID: "p2", Quantity: 1, ManufactureDate: "2026-05-01", ExpiryDate: "2028-05-01",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRegisterRejectsExpiryBeforeManufacture(t *testing.T) {
	svc := newLotService(&mockLotWriter{}, &mockInvalidator{})

	_, err := svc.Register(context.Background(), "org-m", RegisterLotRequest{
		ProductID: "p1", Quantity: 1, ManufactureDate: "2026-05-01", ExpiryDate: "2026-05-01",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRegisterRequiresCodePrefix(t *testing.T) {
	svc := newLotService(&mockLotWriter{}, &mockInvalidator{})

	_, err := svc.Register(context.Background(), "org-p", RegisterLotRequest{
		ProductID: "p3", Quantity: 1, ManufactureDate: "2026-05-01", ExpiryDate: "2028-05-01",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
