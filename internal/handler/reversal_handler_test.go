package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrace/meditrace-api/internal/middleware"
	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type reversalServiceMock struct {
	receipt      *models.TransferReceipt
	recallErr    error
	returnErr    error
	recallBatch  string
	recallReason string
	returnCalled bool
}

func (m *reversalServiceMock) Recall(ctx context.Context, orgID, batchID, reason string) (*models.TransferReceipt, error) {
	m.recallBatch = batchID
	m.recallReason = reason
	return m.receipt, m.recallErr
}

func (m *reversalServiceMock) Return(ctx context.Context, orgID, batchID, reason string) (*models.TransferReceipt, error) {
	m.returnCalled = true
	return m.receipt, m.returnErr
}

func TestReversalHandlerRecall(t *testing.T) {
	mockSvc := &reversalServiceMock{receipt: &models.TransferReceipt{BatchID: "rev-1"}}
	handler := NewReversalHandler(mockSvc)

	w := httptest.NewRecorder()
	c := postContext(t, w, "/recalls/b1", reversalRequest{Reason: "wrong patient"})
	c.Params = gin.Params{{Key: "batchId", Value: "b1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{OrganizationID: "org-h", OrgType: models.OrgTypeHospital})

	handler.Recall(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b1", mockSvc.recallBatch)
	assert.Equal(t, "wrong patient", mockSvc.recallReason)
}

func TestReversalHandlerRecallWindowExpired(t *testing.T) {
	mockSvc := &reversalServiceMock{recallErr: appErrors.ErrTimeWindowExceeded}
	handler := NewReversalHandler(mockSvc)

	w := httptest.NewRecorder()
	c := postContext(t, w, "/recalls/b1", reversalRequest{Reason: "too late"})
	c.Params = gin.Params{{Key: "batchId", Value: "b1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{OrganizationID: "org-h", OrgType: models.OrgTypeHospital})

	handler.Recall(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestReversalHandlerReturnMissingClaims(t *testing.T) {
	mockSvc := &reversalServiceMock{}
	handler := NewReversalHandler(mockSvc)

	w := httptest.NewRecorder()
	c := postContext(t, w, "/returns/b1", reversalRequest{Reason: "damaged"})
	c.Params = gin.Params{{Key: "batchId", Value: "b1"}}

	handler.Return(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, mockSvc.returnCalled)
}
