package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type organizationRepo interface {
	FindByID(ctx context.Context, id string) (*models.Organization, error)
	List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, int, error)
	UpdateStatus(ctx context.Context, id string, status models.OrgStatus) error
}

// OrganizationService exposes the organization directory and the admin
// approval workflow.
type OrganizationService struct {
	orgs   organizationRepo
	logger *zap.Logger
}

// NewOrganizationService constructs OrganizationService.
func NewOrganizationService(orgs organizationRepo, logger *zap.Logger) *OrganizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationService{orgs: orgs, logger: logger}
}

// Get returns one organization.
func (s *OrganizationService) Get(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.orgs.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "organization not found", "failed to load organization")
	}
	return org, nil
}

// List returns organizations matching the filter.
func (s *OrganizationService) List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, int, error) {
	orgs, total, err := s.orgs.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list organizations")
	}
	return orgs, total, nil
}

// SetStatus applies an approval decision. Allowed transitions:
// PENDING_APPROVAL to ACTIVE or INACTIVE, ACTIVE to INACTIVE and back.
// DELETED is terminal.
func (s *OrganizationService) SetStatus(ctx context.Context, id string, status models.OrgStatus) (*models.Organization, error) {
	switch status {
	case models.OrgStatusActive, models.OrgStatusInactive, models.OrgStatusDeleted:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported status transition")
	}

	org, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if org.Status == models.OrgStatusDeleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "organization has been deleted")
	}
	if org.Status == status {
		return org, nil
	}

	if err := s.orgs.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update organization status")
	}

	org.Status = status
	s.logger.Sugar().Infow("organization status updated", "org_id", id, "status", status)
	return org, nil
}
