package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/internal/service"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
	"github.com/meditrace/meditrace-api/pkg/response"
)

type transferService interface {
	Ship(ctx context.Context, fromOrgID string, req service.ShipmentRequest) (*models.TransferReceipt, error)
	Treat(ctx context.Context, hospitalOrgID string, req service.TreatmentRequest) (*models.TransferReceipt, error)
	Dispose(ctx context.Context, orgID string, req service.DisposalRequest) (*models.TransferReceipt, error)
}

// TransferHandler handles custody transfer endpoints.
type TransferHandler struct {
	service transferService
}

// NewTransferHandler constructs a transfer handler.
func NewTransferHandler(svc transferService) *TransferHandler {
	return &TransferHandler{service: svc}
}

// Ship godoc
// @Summary Ship units to another organization
// @Tags Transfers
// @Accept json
// @Produce json
// @Param payload body service.ShipmentRequest true "Shipment payload"
// @Success 201 {object} response.Envelope
// @Router /transfers/shipments [post]
func (h *TransferHandler) Ship(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	receipt, err := h.service.Ship(c.Request.Context(), claims.OrganizationID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}

// Treat godoc
// @Summary Apply units to a patient
// @Tags Transfers
// @Accept json
// @Produce json
// @Param payload body service.TreatmentRequest true "Treatment payload"
// @Success 201 {object} response.Envelope
// @Router /transfers/treatments [post]
func (h *TransferHandler) Treat(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.TreatmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	receipt, err := h.service.Treat(c.Request.Context(), claims.OrganizationID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}

// Dispose godoc
// @Summary Remove units from circulation
// @Tags Transfers
// @Accept json
// @Produce json
// @Param payload body service.DisposalRequest true "Disposal payload"
// @Success 201 {object} response.Envelope
// @Router /transfers/disposals [post]
func (h *TransferHandler) Dispose(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.DisposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	receipt, err := h.service.Dispose(c.Request.Context(), claims.OrganizationID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}
