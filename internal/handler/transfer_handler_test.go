package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrace/meditrace-api/internal/middleware"
	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/internal/service"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type transferServiceMock struct {
	receipt     *models.TransferReceipt
	shipErr     error
	treatErr    error
	disposeErr  error
	shipOrg     string
	shipReq     service.ShipmentRequest
	shipCalled  bool
	treatCalled bool
}

func (m *transferServiceMock) Ship(ctx context.Context, fromOrgID string, req service.ShipmentRequest) (*models.TransferReceipt, error) {
	m.shipCalled = true
	m.shipOrg = fromOrgID
	m.shipReq = req
	return m.receipt, m.shipErr
}

func (m *transferServiceMock) Treat(ctx context.Context, hospitalOrgID string, req service.TreatmentRequest) (*models.TransferReceipt, error) {
	m.treatCalled = true
	return m.receipt, m.treatErr
}

func (m *transferServiceMock) Dispose(ctx context.Context, orgID string, req service.DisposalRequest) (*models.TransferReceipt, error) {
	return m.receipt, m.disposeErr
}

func postContext(t *testing.T, w *httptest.ResponseRecorder, path string, payload interface{}) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(w)
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c
}

func TestTransferHandlerShip(t *testing.T) {
	mockSvc := &transferServiceMock{receipt: &models.TransferReceipt{BatchID: "b1"}}
	handler := NewTransferHandler(mockSvc)

	w := httptest.NewRecorder()
	c := postContext(t, w, "/transfers/shipments", service.ShipmentRequest{
		ProductID: "p1", Quantity: 2, ToOrgID: "org-d",
	})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{OrganizationID: "org-m", OrgType: models.OrgTypeManufacturer})

	handler.Ship(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.shipCalled)
	assert.Equal(t, "org-m", mockSvc.shipOrg)
	assert.Equal(t, "org-d", mockSvc.shipReq.ToOrgID)
}

func TestTransferHandlerShipMissingClaims(t *testing.T) {
	mockSvc := &transferServiceMock{}
	handler := NewTransferHandler(mockSvc)

	w := httptest.NewRecorder()
	c := postContext(t, w, "/transfers/shipments", service.ShipmentRequest{ProductID: "p1", Quantity: 1, ToOrgID: "org-d"})

	handler.Ship(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, mockSvc.shipCalled)
}

func TestTransferHandlerShipInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTransferHandler(&transferServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/transfers/shipments", bytes.NewBufferString(`{"product_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{OrganizationID: "org-m"})

	handler.Ship(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransferHandlerTreatServiceError(t *testing.T) {
	mockSvc := &transferServiceMock{treatErr: appErrors.ErrInsufficientInventory}
	handler := NewTransferHandler(mockSvc)

	w := httptest.NewRecorder()
	c := postContext(t, w, "/transfers/treatments", service.TreatmentRequest{
		ProductID: "p1", Quantity: 1, PatientContact: "0812345678",
	})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{OrganizationID: "org-h", OrgType: models.OrgTypeHospital})

	handler.Treat(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, mockSvc.treatCalled)
}
